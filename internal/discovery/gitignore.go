package discovery

import (
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// ignoreSet evaluates .gitignore files below one walk root. Pattern lists are
// read once per directory and cached for the lifetime of the walk.
type ignoreSet struct {
	root  string
	cache map[string][]gitignore.Pattern
}

func newIgnoreSet(root string) *ignoreSet {
	return &ignoreSet{root: root, cache: map[string][]gitignore.Pattern{}}
}

// dirsForRel returns the list of directories from "." to the directory of rel.
func dirsForRel(rel string) []string {
	dir := filepath.Dir(rel)
	dirs := []string{"."}
	if dir == "." || dir == "" {
		return dirs
	}
	cur := ""
	for _, part := range strings.Split(dir, string(os.PathSeparator)) {
		cur = filepath.Join(cur, part)
		dirs = append(dirs, cur)
	}
	return dirs
}

func (s *ignoreSet) patternsFor(dir string) []gitignore.Pattern {
	if ps, ok := s.cache[dir]; ok {
		return ps
	}
	var ps []gitignore.Pattern
	b, err := os.ReadFile(filepath.Join(s.root, dir, ".gitignore"))
	if err == nil {
		var base []string
		if dir != "." {
			base = strings.Split(filepath.ToSlash(dir), "/")
		}
		for _, line := range strings.Split(string(b), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			ps = append(ps, gitignore.ParsePattern(line, base))
		}
	}
	s.cache[dir] = ps
	return ps
}

// match reports whether rel (relative to the walk root) is ignored.
func (s *ignoreSet) match(rel string, isDir bool) bool {
	if rel == "." || rel == "" {
		return false
	}
	var patterns []gitignore.Pattern
	for _, d := range dirsForRel(rel) {
		patterns = append(patterns, s.patternsFor(d)...)
	}
	if len(patterns) == 0 {
		return false
	}
	return gitignore.NewMatcher(patterns).Match(strings.Split(rel, string(os.PathSeparator)), isDir)
}
