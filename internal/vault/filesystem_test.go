package vault

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tv-go/internal/tv"
)

func TestNewFileSystemVault(t *testing.T) {
	t.Run("creates directory structure", func(t *testing.T) {
		tmpDir := t.TempDir()
		root := filepath.Join(tmpDir, "vault")

		v, err := NewFileSystemVault("test", root)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}

		if _, err := os.Stat(filepath.Join(root, "content")); err != nil {
			t.Errorf("content directory not created: %v", err)
		}
		if _, err := os.Stat(filepath.Join(root, "metadata")); err != nil {
			t.Errorf("metadata directory not created: %v", err)
		}

		if v.name != "test" {
			t.Errorf("name = %q, want %q", v.name, "test")
		}
	})

	t.Run("works with existing directory", func(t *testing.T) {
		if _, err := NewFileSystemVault("test", t.TempDir()); err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
	})
}

func TestFileSystemVault_PutContent(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		data    string
		size    int64
		wantErr bool
	}{
		{
			name: "store content successfully",
			key:  "sha256/abc123",
			data: "hello world",
			size: 11,
		},
		{
			name:    "size mismatch",
			key:     "sha256/def456",
			data:    "hello",
			size:    100,
			wantErr: true,
		},
		{
			name: "empty content",
			key:  "sha256/empty",
			data: "",
			size: 0,
		},
		{
			name:    "key escaping the vault",
			key:     "../outside",
			data:    "x",
			size:    1,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewFileSystemVault("test", t.TempDir())
			if err != nil {
				t.Fatalf("NewFileSystemVault() error = %v", err)
			}

			err = v.PutContent(context.Background(), tt.key, strings.NewReader(tt.data), tt.size)
			if (err != nil) != tt.wantErr {
				t.Errorf("PutContent() error = %v, wantErr %v", err, tt.wantErr)
			}

			if !tt.wantErr {
				data, err := os.ReadFile(filepath.Join(v.contentDir, filepath.FromSlash(tt.key)))
				if err != nil {
					t.Fatalf("failed to read content file: %v", err)
				}
				if string(data) != tt.data {
					t.Errorf("content = %q, want %q", string(data), tt.data)
				}
			}
		})
	}
}

func TestFileSystemVault_PutContent_Idempotent(t *testing.T) {
	ctx := context.Background()
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	key := "sha256/abc123"
	data := "hello world"

	if err := v.PutContent(ctx, key, strings.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("first PutContent() error = %v", err)
	}
	if err := v.PutContent(ctx, key, strings.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("second PutContent() error = %v", err)
	}

	var buf bytes.Buffer
	if err := v.GetContent(ctx, key, &buf); err != nil {
		t.Fatalf("GetContent() error = %v", err)
	}
	if buf.String() != data {
		t.Errorf("content = %q, want %q", buf.String(), data)
	}
}

func TestFileSystemVault_GetContent(t *testing.T) {
	ctx := context.Background()
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	t.Run("retrieve existing content", func(t *testing.T) {
		key := "sha256/abc123"
		data := "hello world"

		if err := v.PutContent(ctx, key, strings.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("PutContent() error = %v", err)
		}

		var buf bytes.Buffer
		if err := v.GetContent(ctx, key, &buf); err != nil {
			t.Fatalf("GetContent() error = %v", err)
		}
		if buf.String() != data {
			t.Errorf("content = %q, want %q", buf.String(), data)
		}
	})

	t.Run("content not found", func(t *testing.T) {
		var buf bytes.Buffer
		err := v.GetContent(ctx, "sha256/nonexistent", &buf)
		if !tv.IsKind(err, tv.NotFound) {
			t.Errorf("GetContent() error = %v, want not-found", err)
		}
	})
}

func TestFileSystemVault_HasContent(t *testing.T) {
	ctx := context.Background()
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	if has, err := v.HasContent(ctx, "sha256/abc"); err != nil || has {
		t.Fatalf("HasContent() before put = %v, %v; want false, nil", has, err)
	}
	if err := v.PutContent(ctx, "sha256/abc", strings.NewReader("abc"), 3); err != nil {
		t.Fatalf("PutContent() error = %v", err)
	}
	if has, err := v.HasContent(ctx, "sha256/abc"); err != nil || !has {
		t.Errorf("HasContent() after put = %v, %v; want true, nil", has, err)
	}
}

func TestFileSystemVault_Metadata(t *testing.T) {
	ctx := context.Background()
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	namespace := "repo-123"
	name := "snapshot/snap-1"

	t.Run("stores under namespace", func(t *testing.T) {
		data := "manifest v1"
		if err := v.PutMetadata(ctx, namespace, name, strings.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("PutMetadata() error = %v", err)
		}
		content, err := os.ReadFile(filepath.Join(v.metadataDir, namespace, "snapshot", "snap-1"))
		if err != nil {
			t.Fatalf("failed to read metadata file: %v", err)
		}
		if string(content) != data {
			t.Errorf("metadata = %q, want %q", string(content), data)
		}
	})

	t.Run("overwrites", func(t *testing.T) {
		data := "manifest v2"
		if err := v.PutMetadata(ctx, namespace, name, strings.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("PutMetadata() error = %v", err)
		}
		var buf bytes.Buffer
		if err := v.GetMetadata(ctx, namespace, name, &buf); err != nil {
			t.Fatalf("GetMetadata() error = %v", err)
		}
		if buf.String() != data {
			t.Errorf("metadata = %q, want %q", buf.String(), data)
		}
	})

	t.Run("not found", func(t *testing.T) {
		var buf bytes.Buffer
		err := v.GetMetadata(ctx, "other-repo", name, &buf)
		if !tv.IsKind(err, tv.NotFound) {
			t.Errorf("GetMetadata() error = %v, want not-found", err)
		}
	})

	t.Run("rejects empty namespace", func(t *testing.T) {
		if err := v.PutMetadata(ctx, "", name, strings.NewReader("x"), 1); err == nil {
			t.Error("PutMetadata() expected error for empty namespace")
		}
	})
}

func TestFileSystemVault_ValidateSetup(t *testing.T) {
	t.Run("valid setup", func(t *testing.T) {
		v, err := NewFileSystemVault("test", t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
		if err := v.ValidateSetup(context.Background()); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})

	t.Run("missing root directory", func(t *testing.T) {
		v := &FileSystemVault{
			name:        "test",
			root:        "/nonexistent/path",
			contentDir:  "/nonexistent/path/content",
			metadataDir: "/nonexistent/path/metadata",
		}
		if err := v.ValidateSetup(context.Background()); err == nil {
			t.Error("ValidateSetup() expected error for missing root")
		}
	})
}

func TestFileSystemVault_AtomicWrite(t *testing.T) {
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	data := "hello world"
	if err := v.PutContent(context.Background(), "sha256/abc123", strings.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("PutContent() error = %v", err)
	}
	// A failed write must not leave anything behind either.
	_ = v.PutContent(context.Background(), "sha256/short", strings.NewReader("abc"), 10)

	entries, err := os.ReadDir(filepath.Join(v.contentDir, "sha256"))
	if err != nil {
		t.Fatalf("failed to read content dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".tmp-") || entry.Name() == "short" {
			t.Errorf("leftover file: %s", entry.Name())
		}
	}
}
