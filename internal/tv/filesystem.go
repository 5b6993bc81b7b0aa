package tv

import (
	"context"
	"io"
	"io/fs"
	"time"
)

// FilesystemManager provides an interface for filesystem operations.
// It abstracts file access so the engine can be exercised with injected faults.
type FilesystemManager interface {
	// Resolve validates a raw path and returns a Path object.
	// It resolves the path to an absolute path, stats it, and validates
	// it's a regular file or directory (not a device, socket, etc.).
	// A missing path yields an error matching fs.ErrNotExist.
	Resolve(rawPath string) (*Path, error)

	// Open opens a file for reading.
	Open(path *Path) (io.ReadCloser, error)

	// Stat returns fresh file info for a path.
	// Unlike path.Info() which returns cached info from when the path was resolved,
	// this always fetches current info from the filesystem.
	Stat(path *Path) (fs.FileInfo, error)

	// Walk enumerates the regular files under root, applying the hidden-file
	// and exclude-pattern filters. Entries are sorted by RelPath. Unreadable
	// entries below the root are reported in WalkResult.Errors; an unreadable
	// root is returned as an error.
	Walk(ctx context.Context, root *Path, opts WalkOptions) (*WalkResult, error)

	// ValidatePatterns reports the first malformed exclude pattern.
	ValidatePatterns(patterns []string) error

	// Hash returns the hex digest of the file's content using algorithm.
	Hash(ctx context.Context, path *Path, algorithm string) (string, error)

	// WriteFile atomically replaces absPath with the bytes read from r,
	// creating parent directories as needed. Returns the number of bytes written.
	WriteFile(ctx context.Context, absPath string, r io.Reader, perm fs.FileMode) (int64, error)

	// CopyFile copies src to absPath using WriteFile, keeping src's permission bits.
	CopyFile(ctx context.Context, src *Path, absPath string) (int64, error)

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(absPath string) error

	// Remove deletes a single file.
	Remove(absPath string) error

	// Chtimes sets the access and modification times of absPath.
	Chtimes(absPath string, atime, mtime time.Time) error

	// Chmod sets the permission bits of absPath.
	Chmod(absPath string, mode fs.FileMode) error

	// ExtractStatData extracts platform-specific stat data from a FileInfo.
	ExtractStatData(info fs.FileInfo) (*StatData, error)

	// DetectMIME sniffs the MIME type of a file's content.
	DetectMIME(path *Path) (string, error)
}

// WalkOptions controls which files a tree walk yields.
type WalkOptions struct {
	// Exclude holds glob patterns. A pattern without '/' matches any path
	// component's basename; a pattern with '/' matches the relative path.
	// Supports '*', '**' and '?'. A matching directory is pruned.
	Exclude []string

	// IncludeHidden keeps files and directories whose name starts with '.'.
	IncludeHidden bool

	// SkipDirs are absolute directory paths pruned from the walk, used to keep
	// a repository from tracking its own history files.
	SkipDirs []string
}

// WalkResult is the outcome of a tree walk.
type WalkResult struct {
	Entries []*Entry
	Errors  []FileError
}

// StatData holds platform-specific file metadata extracted from fs.FileInfo.
type StatData struct {
	UID       int64
	GID       int64
	Atime     time.Time
	Ctime     time.Time
	BirthTime *time.Time
}
