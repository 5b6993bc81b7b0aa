package vault

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"tv-go/internal/tv"
)

func TestMemoryVault_PutAndGetContent(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		content string
	}{
		{name: "simple content", key: "sha256/abc123", content: "hello world"},
		{name: "empty content", key: "sha256/empty", content: ""},
		{name: "encrypted key", key: "sha256/abc123.age", content: "ciphertext"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			vault := NewMemoryVault("test-vault")

			if err := vault.PutContent(ctx, tt.key, strings.NewReader(tt.content), int64(len(tt.content))); err != nil {
				t.Fatalf("PutContent() unexpected error: %v", err)
			}

			var buf bytes.Buffer
			if err := vault.GetContent(ctx, tt.key, &buf); err != nil {
				t.Fatalf("GetContent() unexpected error: %v", err)
			}
			if got := buf.String(); got != tt.content {
				t.Errorf("GetContent() = %q, want %q", got, tt.content)
			}
		})
	}
}

func TestMemoryVault_PutContentIdempotent(t *testing.T) {
	ctx := context.Background()
	vault := NewMemoryVault("test-vault")

	content := "test content"
	for i := 0; i < 2; i++ {
		if err := vault.PutContent(ctx, "sha256/k", strings.NewReader(content), int64(len(content))); err != nil {
			t.Fatalf("PutContent() iteration %d error: %v", i+1, err)
		}
	}
	if got := vault.ContentCount(); got != 1 {
		t.Errorf("ContentCount() = %d, want 1", got)
	}
}

func TestMemoryVault_NotFound(t *testing.T) {
	ctx := context.Background()
	vault := NewMemoryVault("test-vault")

	var buf bytes.Buffer
	if err := vault.GetContent(ctx, "sha256/nonexistent", &buf); !tv.IsKind(err, tv.NotFound) {
		t.Errorf("GetContent() error = %v, want not-found", err)
	}
	if err := vault.GetMetadata(ctx, "repo", "snapshot/x", &buf); !tv.IsKind(err, tv.NotFound) {
		t.Errorf("GetMetadata() error = %v, want not-found", err)
	}
	has, err := vault.HasContent(ctx, "sha256/nonexistent")
	if err != nil || has {
		t.Errorf("HasContent() = %v, %v; want false, nil", has, err)
	}
}

func TestMemoryVault_PutContentSizeMismatch(t *testing.T) {
	vault := NewMemoryVault("test-vault")

	content := "test"
	if err := vault.PutContent(context.Background(), "sha256/k", strings.NewReader(content), int64(len(content)+10)); err == nil {
		t.Error("PutContent() expected error for size mismatch, got nil")
	}
	if vault.ContentCount() != 0 {
		t.Error("PutContent() stored content despite size mismatch")
	}
}

func TestMemoryVault_MetadataNamespaces(t *testing.T) {
	ctx := context.Background()
	vault := NewMemoryVault("test-vault")

	for _, ns := range []string{"repo-a", "repo-b"} {
		if err := vault.PutMetadata(ctx, ns, "snapshot/1", strings.NewReader(ns), int64(len(ns))); err != nil {
			t.Fatalf("PutMetadata(%s) error: %v", ns, err)
		}
	}

	for _, ns := range []string{"repo-a", "repo-b"} {
		var buf bytes.Buffer
		if err := vault.GetMetadata(ctx, ns, "snapshot/1", &buf); err != nil {
			t.Fatalf("GetMetadata(%s) error: %v", ns, err)
		}
		if buf.String() != ns {
			t.Errorf("GetMetadata(%s) = %q, want %q", ns, buf.String(), ns)
		}
	}
}

func TestMemoryVault_Concurrent(t *testing.T) {
	ctx := context.Background()
	vault := NewMemoryVault("test-vault")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = vault.PutContent(ctx, "sha256/shared", strings.NewReader("same"), 4)
			_, _ = vault.HasContent(ctx, "sha256/shared")
		}()
	}
	wg.Wait()

	if got := vault.ContentCount(); got != 1 {
		t.Errorf("ContentCount() = %d, want 1", got)
	}
}

func TestMemoryVault_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	vault := NewMemoryVault("test-vault")
	if err := vault.PutContent(ctx, "sha256/k", strings.NewReader("data"), 4); err == nil {
		t.Error("PutContent() expected error for cancelled context")
	}
	if err := vault.ValidateSetup(ctx); err == nil {
		t.Error("ValidateSetup() expected error for cancelled context")
	}
}
