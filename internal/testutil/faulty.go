package testutil

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"sync"

	"tv-go/internal/tv"
)

// FaultyFilesystem wraps a FilesystemManager and fails reads of chosen files.
// A file is chosen by its base name. Open, Hash and CopyFile of a chosen file
// return an error; every other call passes through.
type FaultyFilesystem struct {
	tv.FilesystemManager

	mu      sync.Mutex
	failing []string
	calls   int
}

// NewFaultyFilesystem wraps inner, failing reads of files named in failing.
func NewFaultyFilesystem(inner tv.FilesystemManager, failing ...string) *FaultyFilesystem {
	return &FaultyFilesystem{FilesystemManager: inner, failing: failing}
}

// Fail adds names to the failing set.
func (f *FaultyFilesystem) Fail(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = append(f.failing, names...)
}

// Injected returns how many calls were failed.
func (f *FaultyFilesystem) Injected() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FaultyFilesystem) fault(op string, p *tv.Path) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !slices.Contains(f.failing, filepath.Base(p.String())) {
		return nil
	}
	f.calls++
	return fmt.Errorf("%s %s: injected fault", op, p)
}

func (f *FaultyFilesystem) Open(p *tv.Path) (io.ReadCloser, error) {
	if err := f.fault("open", p); err != nil {
		return nil, err
	}
	return f.FilesystemManager.Open(p)
}

func (f *FaultyFilesystem) Hash(ctx context.Context, p *tv.Path, algorithm string) (string, error) {
	if err := f.fault("hash", p); err != nil {
		return "", err
	}
	return f.FilesystemManager.Hash(ctx, p, algorithm)
}

func (f *FaultyFilesystem) CopyFile(ctx context.Context, src *tv.Path, absPath string) (int64, error) {
	if err := f.fault("copy", src); err != nil {
		return 0, err
	}
	return f.FilesystemManager.CopyFile(ctx, src, absPath)
}
