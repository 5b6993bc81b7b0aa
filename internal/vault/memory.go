package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"tv-go/internal/tv"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It stores all content and metadata in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	name     string
	content  map[string][]byte // key -> content
	metadata map[string][]byte // "namespace/name" -> document
	mu       sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:     name,
		content:  make(map[string][]byte),
		metadata: make(map[string][]byte),
	}
}

// metadataKey returns the map key for a namespace/name pair.
func metadataKey(namespace, name string) string {
	return namespace + "/" + name
}

// PutContent stores a blob under key.
func (m *MemoryVault) PutContent(ctx context.Context, key string, r io.Reader, size int64) error {
	data, err := readExactly(ctx, r, size)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[key] = data
	return nil
}

// GetContent writes the blob stored under key to w.
func (m *MemoryVault) GetContent(ctx context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.content[key]
	m.mu.RUnlock()
	if !ok {
		return tv.NewError(tv.NotFound, fmt.Sprintf("content not found: %s", key), nil)
	}
	if _, err := io.Copy(w, tv.ContextReader(ctx, bytes.NewReader(data))); err != nil {
		return fmt.Errorf("writing content: %w", err)
	}
	return nil
}

// HasContent reports whether key is stored.
func (m *MemoryVault) HasContent(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.content[key]
	return ok, nil
}

// PutMetadata stores a named document within a namespace.
func (m *MemoryVault) PutMetadata(ctx context.Context, namespace, name string, r io.Reader, size int64) error {
	data, err := readExactly(ctx, r, size)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[metadataKey(namespace, name)] = data
	return nil
}

// GetMetadata writes a named document to w.
func (m *MemoryVault) GetMetadata(ctx context.Context, namespace, name string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.metadata[metadataKey(namespace, name)]
	m.mu.RUnlock()
	if !ok {
		return tv.NewError(tv.NotFound, fmt.Sprintf("metadata not found: %s/%s", namespace, name), nil)
	}
	if _, err := io.Copy(w, tv.ContextReader(ctx, bytes.NewReader(data))); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}

// ValidateSetup always succeeds for in-memory vaults.
func (m *MemoryVault) ValidateSetup(ctx context.Context) error {
	return ctx.Err()
}

// ContentCount returns the number of stored blobs.
func (m *MemoryVault) ContentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.content)
}

// readExactly reads all of r and checks it produced size bytes.
func readExactly(ctx context.Context, r io.Reader, size int64) ([]byte, error) {
	data, err := io.ReadAll(tv.ContextReader(ctx, r))
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}
	return data, nil
}

// Compile-time check that MemoryVault implements tv.Vault interface
var _ tv.Vault = (*MemoryVault)(nil)
