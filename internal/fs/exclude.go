package fs

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreFileName is the per-tree file listing extra exclude patterns.
const IgnoreFileName = ".tvignore"

// defaultExcludePatterns are always applied regardless of config or .tvignore.
var defaultExcludePatterns = []string{IgnoreFileName}

// excludePattern is a parsed exclude pattern with its matching strategy.
type excludePattern struct {
	pattern   string
	matchPath bool // true = match against relative path; false = match against basename only
	dirOnly   bool // pattern ended in '/'
}

// ExcludeMatcher checks relative paths against a set of glob patterns.
// Patterns without '/' match against the basename only.
// Patterns with '/' match against the full relative path from the walk root;
// a leading '/' is ignored and a trailing '/' restricts the pattern to
// directories. '*', '?', '**' and character classes are supported.
type ExcludeMatcher struct {
	patterns []excludePattern
}

// NewExcludeMatcher creates an ExcludeMatcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped. A malformed pattern is
// an error.
func NewExcludeMatcher(rawPatterns []string) (*ExcludeMatcher, error) {
	var patterns []excludePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		p := excludePattern{}
		if strings.HasSuffix(raw, "/") {
			p.dirOnly = true
			raw = strings.TrimRight(raw, "/")
		}
		p.matchPath = strings.Contains(raw, "/")
		p.pattern = strings.TrimPrefix(raw, "/")
		if p.pattern == "" {
			continue
		}
		if !doublestar.ValidatePattern(p.pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", raw)
		}
		patterns = append(patterns, p)
	}
	return &ExcludeMatcher{patterns: patterns}, nil
}

// Match reports whether the given relative path should be excluded.
func (m *ExcludeMatcher) Match(relativePath string, isDir bool) bool {
	if len(m.patterns) == 0 {
		return false
	}

	normalized := filepath.ToSlash(relativePath)
	basename := path.Base(normalized)

	for _, p := range m.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		subject := basename
		if p.matchPath {
			subject = normalized
		}
		// Patterns were validated up front, so Match cannot fail here.
		if ok, _ := doublestar.Match(p.pattern, subject); ok {
			return true
		}
	}
	return false
}

// ValidatePatterns reports the first malformed pattern.
func (m *OSFilesystemManager) ValidatePatterns(patterns []string) error {
	_, err := NewExcludeMatcher(patterns)
	return err
}

// ParseIgnoreFile reads a .tvignore file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
