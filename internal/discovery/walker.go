// Package discovery enumerates candidate files below a set of roots.
package discovery

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoRoots is returned when none of the configured roots exists.
var ErrNoRoots = errors.New("no valid roots")

// Candidate is a regular file selected for hashing.
type Candidate struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Options controls which files a Walker yields.
type Options struct {
	// Exclude holds substrings matched against the full path. A matching
	// directory prunes its whole subtree.
	Exclude          []string
	FollowSymlinks   bool
	MinSize          int64
	RespectGitignore bool
	// Filter, when set, is consulted last; returning false drops the file.
	Filter func(Candidate) bool
	// OnSkip is told about entries dropped because they could not be read.
	OnSkip func(path string, err error)
	// Skip lists exact file paths that are never yielded.
	Skip []string
}

// Walker is a lazy, single-pass enumeration of regular files.
type Walker struct {
	roots []string
	opts  Options
}

// New returns a walker over roots.
func New(roots []string, opts Options) *Walker {
	return &Walker{roots: append([]string(nil), roots...), opts: opts}
}

// Excluded reports whether path contains any of the patterns.
func Excluded(path string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(path, p) {
			return true
		}
	}
	return false
}

// ResolveRoots keeps the roots that exist, cleaned and de-duplicated in input
// order.
func ResolveRoots(roots []string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range roots {
		if strings.TrimSpace(r) == "" {
			continue
		}
		c := filepath.Clean(r)
		if _, ok := seen[c]; ok {
			continue
		}
		if _, err := os.Lstat(c); err != nil {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, ErrNoRoots
	}
	return out, nil
}

type walk struct {
	opts    Options
	skipSet map[string]struct{}
	ctx     context.Context
	yield   func(Candidate) bool
	seen    map[string]struct{}
	visited map[string]struct{}
	stopped bool
}

// Paths yields every selected regular file once. Iteration ends early when
// ctx is cancelled or the consumer stops.
func (w *Walker) Paths(ctx context.Context) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		st := &walk{
			opts:    w.opts,
			ctx:     ctx,
			yield:   yield,
			seen:    map[string]struct{}{},
			visited: map[string]struct{}{},
			skipSet: skipSet(w.opts.Skip),
		}
		for _, root := range w.roots {
			if st.stopped {
				return
			}
			st.root(filepath.Clean(root))
		}
	}
}

func absClean(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func skipSet(paths []string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, p := range paths {
		if strings.TrimSpace(p) != "" {
			set[absClean(p)] = struct{}{}
		}
	}
	return set
}

// Skipped reports whether path is one of the exact paths in skip.
func Skipped(path string, skip []string) bool {
	_, ok := skipSet(skip)[absClean(path)]
	return ok
}

func (st *walk) skip(path string, err error) {
	if st.opts.OnSkip != nil {
		st.opts.OnSkip(path, err)
	}
}

func (st *walk) done() bool {
	if st.stopped {
		return true
	}
	if st.ctx.Err() != nil {
		st.stopped = true
	}
	return st.stopped
}

func (st *walk) root(root string) {
	if Excluded(root, st.opts.Exclude) {
		return
	}
	info, err := os.Lstat(root)
	if err != nil {
		st.skip(root, err)
		return
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		if !st.opts.FollowSymlinks {
			return
		}
		if info, err = os.Stat(root); err != nil {
			st.skip(root, err)
			return
		}
	}
	if info.IsDir() {
		var ign *ignoreSet
		if st.opts.RespectGitignore {
			ign = newIgnoreSet(root)
		}
		st.dir(root, root, ign)
		return
	}
	st.emit(root, info)
}

func (st *walk) dir(root, dirPath string, ign *ignoreSet) {
	if st.done() {
		return
	}
	canon, err := filepath.EvalSymlinks(dirPath)
	if err != nil {
		st.skip(dirPath, err)
		return
	}
	if _, ok := st.visited[canon]; ok {
		return
	}
	st.visited[canon] = struct{}{}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		st.skip(dirPath, err)
		return
	}
	for _, ent := range entries {
		if st.done() {
			return
		}
		child := filepath.Join(dirPath, ent.Name())
		if Excluded(child, st.opts.Exclude) {
			continue
		}
		info, err := os.Lstat(child)
		if err != nil {
			st.skip(child, err)
			continue
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			if !st.opts.FollowSymlinks {
				continue
			}
			if info, err = os.Stat(child); err != nil {
				st.skip(child, err)
				continue
			}
		}
		if ign != nil {
			if rel, err := filepath.Rel(root, child); err == nil && ign.match(rel, info.IsDir()) {
				continue
			}
		}
		if info.IsDir() {
			st.dir(root, child, ign)
			continue
		}
		st.emit(child, info)
	}
}

func (st *walk) emit(path string, info fs.FileInfo) {
	if !info.Mode().IsRegular() || info.Size() < st.opts.MinSize {
		return
	}
	if _, ok := st.seen[path]; ok {
		return
	}
	if len(st.skipSet) > 0 {
		if _, ok := st.skipSet[absClean(path)]; ok {
			return
		}
	}
	c := Candidate{Path: path, Size: info.Size()}
	if st.opts.Filter != nil && !st.opts.Filter(c) {
		return
	}
	st.seen[path] = struct{}{}
	if !st.yield(c) {
		st.stopped = true
	}
}
