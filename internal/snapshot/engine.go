package snapshot

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/flarebyte/aegis/internal/discovery"
	"github.com/flarebyte/aegis/internal/hasher"
	"github.com/flarebyte/aegis/internal/record"
)

// MaxWorkers caps the hashing pool.
const MaxWorkers = 32

// ErrRecordFailed aborts a fail-fast run at the first ERROR record.
var ErrRecordFailed = errors.New("file could not be hashed")

// Config describes one scan.
type Config struct {
	Algorithm        string
	Workers          int
	FollowSymlinks   bool
	Exclude          []string
	MinSize          int64
	RespectGitignore bool
	// Filter is applied to every discovered candidate after the built-in
	// filters.
	Filter func(discovery.Candidate) bool
	// Progress is called after each hashed file with a strictly increasing
	// completed count.
	Progress func(completed, total int)
	// OnSkip is told about entries discovery could not read.
	OnSkip   func(path string, err error)
	FailFast bool
	// Skip lists exact paths never scanned, such as the baseline itself.
	Skip []string
}

// DefaultWorkers returns min(NumCPU, MaxWorkers).
func DefaultWorkers() int {
	return clampWorkers(runtime.NumCPU())
}

func clampWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}

// Engine produces snapshots.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Workers returns the pool size a Take will use.
func (e *Engine) Workers() int {
	if e.cfg.Workers <= 0 {
		return DefaultWorkers()
	}
	return clampWorkers(e.cfg.Workers)
}

// Discover resolves roots and materializes the candidate list.
func (e *Engine) Discover(ctx context.Context, roots []string) ([]string, []discovery.Candidate, error) {
	resolved, err := discovery.ResolveRoots(roots)
	if err != nil {
		return nil, nil, err
	}
	w := discovery.New(resolved, discovery.Options{
		Exclude:          e.cfg.Exclude,
		FollowSymlinks:   e.cfg.FollowSymlinks,
		MinSize:          e.cfg.MinSize,
		RespectGitignore: e.cfg.RespectGitignore,
		Filter:           e.cfg.Filter,
		OnSkip:           e.cfg.OnSkip,
		Skip:             e.cfg.Skip,
	})
	var cands []discovery.Candidate
	for c := range w.Paths(ctx) {
		cands = append(cands, c)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("discovery cancelled: %w", err)
	}
	return resolved, cands, nil
}

// Take scans roots and returns the snapshot. Per-file failures become ERROR
// records; configuration problems and cancellation are returned as errors.
func (e *Engine) Take(ctx context.Context, roots []string) (Snapshot, error) {
	algo, err := hasher.Canonical(e.cfg.Algorithm)
	if err != nil {
		return Snapshot{}, err
	}
	resolved, cands, err := e.Discover(ctx, roots)
	if err != nil {
		return Snapshot{}, err
	}
	return e.hash(ctx, algo, resolved, cands)
}

// Hash snapshots candidates produced by an earlier Discover over resolved.
func (e *Engine) Hash(ctx context.Context, resolved []string, cands []discovery.Candidate) (Snapshot, error) {
	algo, err := hasher.Canonical(e.cfg.Algorithm)
	if err != nil {
		return Snapshot{}, err
	}
	return e.hash(ctx, algo, resolved, cands)
}

func (e *Engine) hash(ctx context.Context, algo string, resolved []string, cands []discovery.Candidate) (Snapshot, error) {
	if len(cands) == 0 {
		return e.describeRoots(resolved, algo)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := NewBuilder(algo)
	total := len(cands)
	completed := 0
	var firstErr error
	hash := func(i int) record.Record {
		return hasher.Hash(cands[i].Path, algo)
	}
	collect := func(r record.Record) {
		completed++
		if err := b.Add(r); err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
		if e.cfg.FailFast && r.Kind == record.KindError && firstErr == nil {
			firstErr = fmt.Errorf("%w: %s: %s", ErrRecordFailed, r.Path, *r.ErrorMessage)
			cancel()
		}
		if e.cfg.Progress != nil {
			e.cfg.Progress(completed, total)
		}
	}

	if workers := e.Workers(); workers == 1 {
		runIndexedSequential(runCtx, total, hash, collect)
	} else {
		runIndexedParallel(runCtx, total, workers, hash, collect)
	}

	if firstErr != nil {
		return Snapshot{}, firstErr
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot cancelled after %d of %d files: %w", completed, total, err)
	}
	return b.Build(), nil
}

// describeRoots covers the case where discovery found no regular file: the
// roots themselves are recorded so an empty tree still yields records.
// Excluded or skipped roots stay out, and file roots are never hashed here:
// a file root that reaches this point was dropped by a filter.
func (e *Engine) describeRoots(roots []string, algo string) (Snapshot, error) {
	b := NewBuilder(algo)
	for _, r := range roots {
		if discovery.Excluded(r, e.cfg.Exclude) || discovery.Skipped(r, e.cfg.Skip) {
			continue
		}
		rec, ok := hasher.Describe(r)
		if !ok {
			continue
		}
		if err := b.Add(rec); err != nil {
			return Snapshot{}, err
		}
	}
	return b.Build(), nil
}
