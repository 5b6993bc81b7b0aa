package vault

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"tv-go/internal/tv"
)

// fakeS3 is an in-memory bucket satisfying both s3API and uploader.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads int
	bucket  string
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), bucket: bucket}
}

func (f *fakeS3) Upload(ctx context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	f.uploads++
	return &manager.UploadOutput{Key: in.Key}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if *in.Bucket != f.bucket {
		return nil, &types.NoSuchBucket{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func newTestS3Vault(prefix string) (*S3Vault, *fakeS3) {
	fake := newFakeS3("bucket")
	return newS3Vault("s3", "bucket", prefix, fake, fake), fake
}

func TestS3Vault_ObjectKeys(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{prefix: "", want: "content/sha256/abc"},
		{prefix: "backups", want: "backups/content/sha256/abc"},
		{prefix: "/backups/tv/", want: "backups/tv/content/sha256/abc"},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			v, _ := newTestS3Vault(tt.prefix)
			if got := v.contentKey("sha256/abc"); got != tt.want {
				t.Errorf("contentKey() = %q, want %q", got, tt.want)
			}
		})
	}

	v, _ := newTestS3Vault("p")
	if got, want := v.metadataKey("repo", "snapshot/1"), "p/metadata/repo/snapshot/1"; got != want {
		t.Errorf("metadataKey() = %q, want %q", got, want)
	}
}

func TestS3Vault_Content(t *testing.T) {
	ctx := context.Background()
	v, fake := newTestS3Vault("tv")

	if has, err := v.HasContent(ctx, "sha256/abc"); err != nil || has {
		t.Fatalf("HasContent() before put = %v, %v; want false, nil", has, err)
	}
	if err := v.PutContent(ctx, "sha256/abc", strings.NewReader("hello"), 5); err != nil {
		t.Fatalf("PutContent() error = %v", err)
	}
	if has, err := v.HasContent(ctx, "sha256/abc"); err != nil || !has {
		t.Fatalf("HasContent() after put = %v, %v; want true, nil", has, err)
	}

	// Content-addressed keys are not uploaded twice.
	if err := v.PutContent(ctx, "sha256/abc", strings.NewReader("hello"), 5); err != nil {
		t.Fatalf("second PutContent() error = %v", err)
	}
	if fake.uploads != 1 {
		t.Errorf("uploads = %d, want 1", fake.uploads)
	}

	var buf bytes.Buffer
	if err := v.GetContent(ctx, "sha256/abc", &buf); err != nil {
		t.Fatalf("GetContent() error = %v", err)
	}
	if buf.String() != "hello" {
		t.Errorf("GetContent() = %q, want %q", buf.String(), "hello")
	}

	if err := v.GetContent(ctx, "sha256/missing", &buf); !tv.IsKind(err, tv.NotFound) {
		t.Errorf("GetContent() missing error = %v, want not-found", err)
	}
}

func TestS3Vault_SizeMismatch(t *testing.T) {
	v, _ := newTestS3Vault("")
	if err := v.PutMetadata(context.Background(), "repo", "snapshot/1", strings.NewReader("abc"), 7); err == nil {
		t.Error("PutMetadata() expected size mismatch error")
	}
}

func TestS3Vault_Metadata(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestS3Vault("")

	if err := v.PutMetadata(ctx, "repo", "snapshot/1", strings.NewReader("{}"), 2); err != nil {
		t.Fatalf("PutMetadata() error = %v", err)
	}
	var buf bytes.Buffer
	if err := v.GetMetadata(ctx, "repo", "snapshot/1", &buf); err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}
	if buf.String() != "{}" {
		t.Errorf("GetMetadata() = %q, want %q", buf.String(), "{}")
	}
	if err := v.GetMetadata(ctx, "repo", "snapshot/2", &buf); !tv.IsKind(err, tv.NotFound) {
		t.Errorf("GetMetadata() missing error = %v, want not-found", err)
	}
}

func TestS3Vault_ValidateSetup(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestS3Vault("")
	if err := v.ValidateSetup(ctx); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}

	v.bucket = "other"
	if err := v.ValidateSetup(ctx); err == nil {
		t.Error("ValidateSetup() expected error for missing bucket")
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "no such key", err: &types.NoSuchKey{}, want: true},
		{name: "head not found", err: &types.NotFound{}, want: true},
		{name: "wrapped", err: errors.Join(errors.New("op"), &types.NoSuchKey{}), want: true},
		{name: "string code", err: errors.New("api error NotFound: Not Found"), want: true},
		{name: "other", err: errors.New("access denied"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNotFound(tt.err); got != tt.want {
				t.Errorf("isNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}
