// Package snapshot holds the immutable path-keyed record set produced by a
// scan, and the engine that produces it.
package snapshot

import (
	"errors"
	"fmt"
	"sort"

	"github.com/flarebyte/aegis/internal/integrity"
	"github.com/flarebyte/aegis/internal/record"
)

var ErrDuplicatePath = errors.New("duplicate path in snapshot")

// Snapshot maps paths to records. The zero value is an empty snapshot.
type Snapshot struct {
	algorithm string
	records   map[string]record.Record
}

// Stats summarizes a snapshot.
type Stats struct {
	Records int   `json:"records"`
	Files   int   `json:"files"`
	Errors  int   `json:"errors"`
	Bytes   int64 `json:"bytes"`
}

// Empty returns a snapshot without records.
func Empty(algorithm string) Snapshot {
	return Snapshot{algorithm: algorithm}
}

func (s Snapshot) Algorithm() string { return s.algorithm }

func (s Snapshot) Len() int { return len(s.records) }

func (s Snapshot) Get(path string) (record.Record, bool) {
	r, ok := s.records[path]
	return r, ok
}

// Paths returns the record paths sorted ascending.
func (s Snapshot) Paths() []string {
	out := make([]string, 0, len(s.records))
	for p := range s.records {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Records returns the records sorted by path.
func (s Snapshot) Records() []record.Record {
	out := make([]record.Record, 0, len(s.records))
	for _, p := range s.Paths() {
		out = append(out, s.records[p])
	}
	return out
}

// Comparables exposes the snapshot to the diff engine.
func (s Snapshot) Comparables() map[string]integrity.Comparable {
	out := make(map[string]integrity.Comparable, len(s.records))
	for p, r := range s.records {
		out[p] = r
	}
	return out
}

func (s Snapshot) Stats() Stats {
	st := Stats{Records: len(s.records)}
	for _, r := range s.records {
		switch r.Kind {
		case record.KindFile:
			st.Files++
			if r.Size != nil {
				st.Bytes += *r.Size
			}
		case record.KindError:
			st.Errors++
		}
	}
	return st
}

// Builder accumulates records for one snapshot. It is not safe for
// concurrent use; the engine feeds it from a single collector.
type Builder struct {
	algorithm string
	records   map[string]record.Record
}

func NewBuilder(algorithm string) *Builder {
	return &Builder{algorithm: algorithm, records: map[string]record.Record{}}
}

// Add validates r and stores it. A path can be added once.
func (b *Builder) Add(r record.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, ok := b.records[r.Path]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, r.Path)
	}
	b.records[r.Path] = r
	return nil
}

func (b *Builder) Len() int { return len(b.records) }

// Build returns the snapshot. Later Adds do not affect it.
func (b *Builder) Build() Snapshot {
	m := make(map[string]record.Record, len(b.records))
	for p, r := range b.records {
		m[p] = r
	}
	return Snapshot{algorithm: b.algorithm, records: m}
}
