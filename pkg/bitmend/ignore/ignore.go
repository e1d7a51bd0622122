// Package ignore decides which paths a scan leaves out. It combines
// doublestar glob patterns from flags and config, a gitignore-style file at
// the scan root, and directories that must never be hashed (the baseline
// database itself).
package ignore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/denormal/go-gitignore"
)

// DefaultIgnoreFile is looked up in the scan root.
const DefaultIgnoreFile = ".bitmendignore"

// ErrBadPattern is returned for a glob doublestar cannot parse.
var ErrBadPattern = errors.New("invalid exclude pattern")

// Options configures a Matcher.
type Options struct {
	// Root is the absolute scan root. Patterns match paths relative to it.
	Root string

	// Patterns are doublestar globs, matched against the relative path
	// and against the base name.
	Patterns []string

	// IgnoreFile is the name of a gitignore-style file in Root.
	// Empty disables it; a missing file is not an error.
	IgnoreFile string

	// Skip lists absolute directories excluded with everything below them.
	Skip []string
}

// Matcher reports whether a path is excluded from a scan.
// It is safe for concurrent use.
type Matcher struct {
	root     string
	patterns []string
	file     gitignore.GitIgnore
	skip     []string
}

// NewMatcher validates the patterns and loads the ignore file.
func NewMatcher(opts Options) (*Matcher, error) {
	for _, p := range opts.Patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: %q", ErrBadPattern, p)
		}
	}

	m := &Matcher{
		root:     filepath.Clean(opts.Root),
		patterns: opts.Patterns,
	}

	for _, s := range opts.Skip {
		if s != "" {
			m.skip = append(m.skip, filepath.Clean(s))
		}
	}

	if opts.IgnoreFile != "" {
		m.file = loadIgnoreFile(filepath.Join(m.root, opts.IgnoreFile), m.root)
	}

	return m, nil
}

// Match reports whether path (absolute) is excluded. For a directory, true
// means the whole subtree is skipped.
func (m *Matcher) Match(path string, isDir bool) bool {
	for _, s := range m.skip {
		if path == s || strings.HasPrefix(path, s+string(filepath.Separator)) {
			return true
		}
	}

	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)

	if m.file != nil {
		if match := m.file.Relative(rel, isDir); match != nil && match.Ignore() {
			return true
		}
	}

	base := filepath.Base(path)
	for _, p := range m.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, base); ok {
			return true
		}
	}

	return false
}

func loadIgnoreFile(path, base string) gitignore.GitIgnore {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	return gitignore.New(f, base, nil)
}
