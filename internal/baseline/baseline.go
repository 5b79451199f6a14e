// Package baseline persists snapshots. A missing baseline loads as an empty
// snapshot; an unreadable one fails with ErrCorruptBaseline.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flarebyte/aegis/internal/snapshot"
)

const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatBolt  = "bolt"

	formatVersion = "1"
)

var (
	ErrCorruptBaseline = errors.New("corrupt baseline")
	ErrUnknownFormat   = errors.New("unknown baseline format")
)

// Store loads and replaces one persisted snapshot.
type Store interface {
	Path() string
	Format() string
	// Load reports found=false, with an empty snapshot, when nothing has been
	// persisted yet.
	Load(ctx context.Context) (s snapshot.Snapshot, found bool, err error)
	// Save replaces the persisted snapshot as a whole.
	Save(ctx context.Context, s snapshot.Snapshot) error
}

// DetectFormat infers the format from the file extension, defaulting to json.
func DetectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return FormatJSONL
	case ".db", ".bolt":
		return FormatBolt
	}
	return FormatJSON
}

// Open returns the store for path. An empty format is inferred from the
// extension.
func Open(path, format string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("baseline path is empty")
	}
	if format == "" {
		format = DetectFormat(path)
	}
	switch strings.ToLower(format) {
	case FormatJSON:
		return &jsonStore{path: path}, nil
	case FormatJSONL, "ndjson", "lines":
		return &jsonlStore{path: path}, nil
	case FormatBolt, "bbolt":
		return &boltStore{path: path}, nil
	}
	return nil, fmt.Errorf("%w: %q (allowed: json|jsonl|bolt)", ErrUnknownFormat, format)
}

func corrupt(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCorruptBaseline, path, err)
}

// prepareSave checks ctx and creates the parent directory of path.
func prepareSave(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("baseline: %w", err)
		}
	}
	return nil
}
