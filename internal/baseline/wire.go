package baseline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flarebyte/aegis/internal/record"
)

// wireRecord accepts the current record shape as well as the older
// {path, hash, size, mtime, mode, uid, gid, type, error} line shape.
type wireRecord struct {
	Path         string   `json:"path"`
	Kind         string   `json:"kind"`
	ContentHash  *string  `json:"contentHash"`
	Size         *int64   `json:"size"`
	ModifiedTime *float64 `json:"modifiedTime"`
	Permissions  *int64   `json:"permissions"`
	OwnerID      *int64   `json:"ownerId"`
	GroupID      *int64   `json:"groupId"`
	ErrorMessage *string  `json:"errorMessage"`

	Hash  *string  `json:"hash"`
	Type  string   `json:"type"`
	Mtime *float64 `json:"mtime"`
	Mode  *int64   `json:"mode"`
	UID   *int64   `json:"uid"`
	GID   *int64   `json:"gid"`
	Error *string  `json:"error"`
}

func (w wireRecord) toRecord(path string) (record.Record, error) {
	if path == "" {
		path = w.Path
	}
	if path == "" {
		return record.Record{}, record.ErrEmptyPath
	}
	if w.Kind != "" {
		r := record.Record{
			Path:         path,
			Kind:         record.Kind(w.Kind),
			ContentHash:  w.ContentHash,
			Size:         w.Size,
			ModifiedTime: w.ModifiedTime,
			Permissions:  w.Permissions,
			OwnerID:      w.OwnerID,
			GroupID:      w.GroupID,
			ErrorMessage: w.ErrorMessage,
		}
		return r, r.Validate()
	}

	m := record.Meta{Size: w.Size, ModifiedTime: firstFloat(w.ModifiedTime, w.Mtime),
		Permissions: firstInt(w.Permissions, w.Mode), OwnerID: firstInt(w.OwnerID, w.UID), GroupID: firstInt(w.GroupID, w.GID)}
	if msg := firstString(w.ErrorMessage, w.Error); msg != nil {
		return record.Failed(path, *msg, m), nil
	}
	if h := firstString(w.ContentHash, w.Hash); h != nil {
		return record.File(path, *h, m), nil
	}
	switch w.Type {
	case "file":
		return record.Failed(path, "hash unavailable", m), nil
	case "dir", "directory":
		return record.Entry(path, record.KindDirectory, m), nil
	case "symlink", "link":
		return record.Entry(path, record.KindSymlink, m), nil
	case "":
		return record.Record{}, errors.New("entry carries neither kind nor hash")
	}
	return record.Entry(path, record.KindOther, m), nil
}

func firstString(a, b *string) *string {
	if a != nil {
		return a
	}
	return b
}

func firstInt(a, b *int64) *int64 {
	if a != nil {
		return a
	}
	return b
}

func firstFloat(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}

// decodeEntry reads one value of a path-keyed map: a bare digest string or a
// record object.
func decodeEntry(path string, raw json.RawMessage) (record.Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return record.Record{}, fmt.Errorf("entry %q is empty", path)
	}
	switch trimmed[0] {
	case '"':
		var digest string
		if err := json.Unmarshal(trimmed, &digest); err != nil {
			return record.Record{}, err
		}
		return record.File(path, digest, record.Meta{}), nil
	case '{':
		var w wireRecord
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return record.Record{}, fmt.Errorf("entry %q: %w", path, err)
		}
		r, err := w.toRecord(path)
		if err != nil {
			return record.Record{}, fmt.Errorf("entry %q: %w", path, err)
		}
		return r, nil
	}
	return record.Record{}, fmt.Errorf("entry %q is neither a digest string nor an object", path)
}

// encodeJSONCompact writes v without HTML escaping so paths stay readable.
func encodeJSONCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
