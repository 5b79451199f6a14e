package record

import (
	"errors"
	"fmt"
)

// Kind classifies an observed filesystem object.
type Kind string

const (
	KindFile      Kind = "FILE"
	KindDirectory Kind = "DIRECTORY"
	KindSymlink   Kind = "SYMLINK"
	KindOther     Kind = "OTHER"
	KindError     Kind = "ERROR"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindFile, KindDirectory, KindSymlink, KindOther, KindError:
		return true
	}
	return false
}

// Meta is the stat-derived part of a record. Every field is optional.
type Meta struct {
	Size         *int64
	ModifiedTime *float64
	Permissions  *int64
	OwnerID      *int64
	GroupID      *int64
}

// Record is one entry per observed filesystem object.
// Using a struct with fixed field order keeps the JSON deterministic; absent
// values are encoded as null rather than omitted.
type Record struct {
	Path         string   `json:"path"`
	Kind         Kind     `json:"kind"`
	ContentHash  *string  `json:"contentHash"`
	Size         *int64   `json:"size"`
	ModifiedTime *float64 `json:"modifiedTime"`
	Permissions  *int64   `json:"permissions"`
	OwnerID      *int64   `json:"ownerId"`
	GroupID      *int64   `json:"groupId"`
	ErrorMessage *string  `json:"errorMessage"`
}

// File builds a hashed FILE record.
func File(path, digest string, m Meta) Record {
	r := withMeta(Record{Path: path, Kind: KindFile}, m)
	r.ContentHash = &digest
	return r
}

// Failed builds an ERROR record. Metadata captured before the failure is kept.
func Failed(path, msg string, m Meta) Record {
	r := withMeta(Record{Path: path, Kind: KindError}, m)
	r.ErrorMessage = &msg
	return r
}

// Entry builds a non-hashed record (DIRECTORY, SYMLINK or OTHER).
func Entry(path string, kind Kind, m Meta) Record {
	return withMeta(Record{Path: path, Kind: kind}, m)
}

func withMeta(r Record, m Meta) Record {
	r.Size = m.Size
	r.ModifiedTime = m.ModifiedTime
	r.Permissions = m.Permissions
	r.OwnerID = m.OwnerID
	r.GroupID = m.GroupID
	return r
}

// Digest returns the content hash when present.
func (r Record) Digest() (string, bool) {
	if r.ContentHash == nil {
		return "", false
	}
	return *r.ContentHash, true
}

// Meta returns the stat-derived fields of the record.
func (r Record) Meta() Meta {
	return Meta{
		Size:         r.Size,
		ModifiedTime: r.ModifiedTime,
		Permissions:  r.Permissions,
		OwnerID:      r.OwnerID,
		GroupID:      r.GroupID,
	}
}

// MetadataFingerprint renders the stat-derived fields into a comparable string.
func (r Record) MetadataFingerprint() string {
	return fmt.Sprintf("size=%s mtime=%s perm=%s uid=%s gid=%s",
		fmtInt(r.Size), fmtFloat(r.ModifiedTime), fmtInt(r.Permissions), fmtInt(r.OwnerID), fmtInt(r.GroupID))
}

func fmtInt(p *int64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *p)
}

func fmtFloat(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.9f", *p)
}

var (
	ErrEmptyPath   = errors.New("record: empty path")
	ErrUnknownKind = errors.New("record: unknown kind")
	ErrShape       = errors.New("record: invalid shape")
)

// Validate checks the hash/error/kind invariant: a FILE record carries a hash,
// an ERROR record carries a message, and no record carries both.
func (r Record) Validate() error {
	if r.Path == "" {
		return ErrEmptyPath
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}
	hasHash := r.ContentHash != nil
	hasErr := r.ErrorMessage != nil
	switch r.Kind {
	case KindFile:
		if !hasHash || hasErr {
			return fmt.Errorf("%w: %s: FILE record needs a hash and no error", ErrShape, r.Path)
		}
	case KindError:
		if hasHash || !hasErr {
			return fmt.Errorf("%w: %s: ERROR record needs an error and no hash", ErrShape, r.Path)
		}
	default:
		if hasHash || hasErr {
			return fmt.Errorf("%w: %s: %s record must carry neither hash nor error", ErrShape, r.Path, r.Kind)
		}
	}
	return nil
}
