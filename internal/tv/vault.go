package tv

import (
	"context"
	"io"
)

// Vault is an off-site archive for exported snapshots.
// All operations use io.Reader/io.Writer for streaming to support large files
// without loading them entirely into memory.
type Vault interface {
	// PutContent stores a blob under key.
	// Storing the same key twice is safe; keys are derived from content digests.
	// size is the number of bytes that will be read from r.
	PutContent(ctx context.Context, key string, r io.Reader, size int64) error

	// GetContent retrieves a blob by key and writes it to w.
	GetContent(ctx context.Context, key string, w io.Writer) error

	// HasContent reports whether a blob is stored under key.
	HasContent(ctx context.Context, key string) (bool, error)

	// PutMetadata stores a named document within a namespace.
	// The namespace is the repository ID; names look like "snapshot/<id>".
	PutMetadata(ctx context.Context, namespace, name string, r io.Reader, size int64) error

	// GetMetadata retrieves a named document and writes it to w.
	GetMetadata(ctx context.Context, namespace, name string, w io.Writer) error

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}
