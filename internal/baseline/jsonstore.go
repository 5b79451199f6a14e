package baseline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/function61/gokit/atomicfilewrite"

	"github.com/flarebyte/aegis/internal/record"
	"github.com/flarebyte/aegis/internal/snapshot"
)

// document is the aggregate JSON baseline.
type document struct {
	FormatVersion string                   `json:"formatVersion"`
	Algorithm     string                   `json:"algorithm"`
	Records       map[string]record.Record `json:"records"`
}

type jsonStore struct {
	path string
}

func (s *jsonStore) Path() string   { return s.path }
func (s *jsonStore) Format() string { return FormatJSON }

func (s *jsonStore) Load(ctx context.Context) (snapshot.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return snapshot.Snapshot{}, false, err
	}
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return snapshot.Empty(""), false, nil
	}
	if err != nil {
		return snapshot.Snapshot{}, false, err
	}
	snap, err := decodeJSON(raw)
	if err != nil {
		return snapshot.Snapshot{}, false, corrupt(s.path, err)
	}
	return snap, true, nil
}

// decodeJSON accepts the aggregate document and the older flat
// {path: digest} / {path: {hash: ...}} maps.
func decodeJSON(raw []byte) (snapshot.Snapshot, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return snapshot.Snapshot{}, err
	}
	if top == nil {
		return snapshot.Snapshot{}, errors.New("baseline is not a JSON object")
	}
	_, hasVersion := top["formatVersion"]
	_, hasRecords := top["records"]
	if hasVersion && hasRecords {
		var doc struct {
			FormatVersion string                     `json:"formatVersion"`
			Algorithm     string                     `json:"algorithm"`
			Records       map[string]json.RawMessage `json:"records"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return snapshot.Snapshot{}, err
		}
		if doc.FormatVersion != formatVersion {
			return snapshot.Snapshot{}, errors.New("unsupported formatVersion " + doc.FormatVersion)
		}
		if doc.Records == nil {
			return snapshot.Snapshot{}, errors.New("records must be an object")
		}
		return buildFromMap(doc.Algorithm, doc.Records)
	}
	return buildFromMap("", top)
}

func buildFromMap(algorithm string, entries map[string]json.RawMessage) (snapshot.Snapshot, error) {
	b := snapshot.NewBuilder(algorithm)
	for p, v := range entries {
		r, err := decodeEntry(p, v)
		if err != nil {
			return snapshot.Snapshot{}, err
		}
		if err := b.Add(r); err != nil {
			return snapshot.Snapshot{}, err
		}
	}
	return b.Build(), nil
}

func (s *jsonStore) Save(ctx context.Context, snap snapshot.Snapshot) error {
	if err := prepareSave(ctx, s.path); err != nil {
		return err
	}
	doc := document{FormatVersion: formatVersion, Algorithm: snap.Algorithm(), Records: map[string]record.Record{}}
	for _, r := range snap.Records() {
		doc.Records[r.Path] = r
	}
	return atomicfilewrite.Write(s.path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	})
}
