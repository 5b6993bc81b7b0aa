package fs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"tv-go/internal/tv"
)

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
// It performs actual filesystem operations using the os package.
type OSFilesystemManager struct{}

// NewOSFilesystemManager creates a new filesystem manager that operates on the real filesystem.
func NewOSFilesystemManager() *OSFilesystemManager {
	return &OSFilesystemManager{}
}

// Resolve validates a raw path and returns a Path object.
func (m *OSFilesystemManager) Resolve(rawPath string) (*tv.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	// Check for special file types we don't support
	mode := info.Mode()
	if mode&os.ModeDevice != 0 {
		return nil, fmt.Errorf("device files not supported: %s", absPath)
	}
	if mode&os.ModeNamedPipe != 0 {
		return nil, fmt.Errorf("named pipes not supported: %s", absPath)
	}
	if mode&os.ModeSocket != 0 {
		return nil, fmt.Errorf("sockets not supported: %s", absPath)
	}

	return tv.NewPath(absPath, info.IsDir(), info), nil
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path *tv.Path) (io.ReadCloser, error) {
	if path.IsDir() {
		return nil, fmt.Errorf("cannot open directory as file: %s", path.String())
	}
	return os.Open(path.String())
}

// Stat returns fresh file info for a path.
func (m *OSFilesystemManager) Stat(path *tv.Path) (fs.FileInfo, error) {
	return os.Stat(path.String())
}

// Hash returns the hex digest of a file's content.
func (m *OSFilesystemManager) Hash(ctx context.Context, path *tv.Path, algorithm string) (string, error) {
	id, err := m.HashFile(ctx, path, algorithm)
	if err != nil {
		return "", err
	}
	return id.Digest, nil
}

// HashFile computes the content identity of a file.
// The digest is streamed, so large files are never held in memory.
func (m *OSFilesystemManager) HashFile(ctx context.Context, path *tv.Path, algorithm string) (*tv.Identity, error) {
	alg, err := tv.ParseAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}
	f, err := m.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	hex, n, err := tv.DigestReader(ctx, f, string(alg))
	if err != nil {
		return nil, fmt.Errorf("hashing %s: %w", path.String(), err)
	}
	return &tv.Identity{
		Digest:    hex,
		Algorithm: string(alg),
		Size:      n,
		ModTime:   path.Info().ModTime(),
	}, nil
}

// WriteFile writes r to absPath using an atomic write (temp file + rename).
// The temp file lives in the destination directory and is hidden, so walks
// running concurrently never see it.
func (m *OSFilesystemManager) WriteFile(ctx context.Context, absPath string, r io.Reader, perm fs.FileMode) (int64, error) {
	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating parent directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(absPath)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, tv.ContextReader(ctx, r))
	if err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("writing data: %w", err)
	}
	if err := tmpFile.Chmod(perm); err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("setting permissions: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, absPath); err != nil {
		return 0, fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return written, nil
}

// CopyFile copies src to absPath, keeping src's permission bits.
func (m *OSFilesystemManager) CopyFile(ctx context.Context, src *tv.Path, absPath string) (int64, error) {
	f, err := m.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening source: %w", err)
	}
	defer f.Close()
	return m.WriteFile(ctx, absPath, f, src.Info().Mode().Perm())
}

// MkdirAll creates a directory and any missing parents.
func (m *OSFilesystemManager) MkdirAll(absPath string) error {
	return os.MkdirAll(absPath, 0o755)
}

// Remove deletes a single file.
func (m *OSFilesystemManager) Remove(absPath string) error {
	return os.Remove(absPath)
}

// Chtimes sets the access and modification times of absPath.
func (m *OSFilesystemManager) Chtimes(absPath string, atime, mtime time.Time) error {
	return os.Chtimes(absPath, atime, mtime)
}

// Chmod sets the permission bits of absPath.
func (m *OSFilesystemManager) Chmod(absPath string, mode fs.FileMode) error {
	return os.Chmod(absPath, mode)
}

// DetectMIME sniffs the MIME type of a file from its leading bytes.
func (m *OSFilesystemManager) DetectMIME(path *tv.Path) (string, error) {
	mtype, err := mimetype.DetectFile(path.String())
	if err != nil {
		return "", fmt.Errorf("detecting mime type: %w", err)
	}
	return mtype.String(), nil
}

// Compile-time check that OSFilesystemManager implements tv.FilesystemManager interface
var _ tv.FilesystemManager = (*OSFilesystemManager)(nil)
