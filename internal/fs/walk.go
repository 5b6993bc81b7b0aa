package fs

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tv-go/internal/tv"
)

// Walk enumerates the regular files under root.
//
// Hidden entries (leading '.') are skipped unless opts.IncludeHidden is set.
// Exclude patterns from opts and from root's .tvignore apply to files and
// directories; an excluded directory is not descended into. Symlinks and
// special files are skipped. Only a failure to read root itself is returned
// as an error; everything below root is reported in the result.
func (m *OSFilesystemManager) Walk(ctx context.Context, root *tv.Path, opts tv.WalkOptions) (*tv.WalkResult, error) {
	if !root.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root.String())
	}

	filePatterns, err := ParseIgnoreFile(filepath.Join(root.String(), IgnoreFileName))
	if err != nil {
		return nil, err
	}
	patterns := make([]string, 0, len(defaultExcludePatterns)+len(opts.Exclude)+len(filePatterns))
	patterns = append(patterns, defaultExcludePatterns...)
	patterns = append(patterns, opts.Exclude...)
	patterns = append(patterns, filePatterns...)
	matcher, err := NewExcludeMatcher(patterns)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]bool, len(opts.SkipDirs))
	for _, d := range opts.SkipDirs {
		if abs, err := filepath.Abs(d); err == nil {
			skip[abs] = true
		}
	}

	result := &tv.WalkResult{Entries: []*tv.Entry{}, Errors: []tv.FileError{}}
	rootPath := root.String()

	err = filepath.WalkDir(rootPath, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == rootPath {
				return err
			}
			result.Errors = append(result.Errors, walkError(rootPath, p, err))
			return nil
		}
		if p == rootPath {
			return nil
		}

		rel, err := filepath.Rel(rootPath, p)
		if err != nil {
			return fmt.Errorf("relativizing %s: %w", p, err)
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if skip[p] || (!opts.IncludeHidden && isHidden(d.Name())) || matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if (!opts.IncludeHidden && isHidden(d.Name())) || matcher.Match(rel, false) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			result.Errors = append(result.Errors, walkError(rootPath, p, err))
			return nil
		}
		result.Entries = append(result.Entries, &tv.Entry{RelPath: rel, Path: tv.NewPath(p, false, info)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", rootPath, err)
	}

	// WalkDir's lexical order is per directory; callers want plain string order.
	sort.Slice(result.Entries, func(i, j int) bool {
		return result.Entries[i].RelPath < result.Entries[j].RelPath
	})
	return result, nil
}

func walkError(root, p string, err error) tv.FileError {
	rel, relErr := filepath.Rel(root, p)
	if relErr != nil {
		rel = p
	}
	return tv.FileError{
		Path:      filepath.ToSlash(rel),
		Operation: "walk",
		Error:     err.Error(),
		Timestamp: time.Now(),
	}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
