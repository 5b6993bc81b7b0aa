package tv_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tv-go/internal/fs"
	"tv-go/internal/testutil"
	"tv-go/internal/tv"
)

var (
	older = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	newer = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
)

func TestSync_CopiesNewFiles(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	src := filepath.Join(t.TempDir(), "src")
	dst := filepath.Join(t.TempDir(), "dst")
	testutil.WriteTree(t, src, map[string]string{"a.txt": "hello", "b.txt": "world"})

	report, err := h.sync.Sync(context.Background(), src, dst, tv.SyncOptions{})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if report.FilesProcessed != 2 || report.FilesCopied != 2 || report.BytesTransferred != 10 {
		t.Errorf("report = processed %d, copied %d, bytes %d; want 2, 2, 10",
			report.FilesProcessed, report.FilesCopied, report.BytesTransferred)
	}
	if len(report.Errors) != 0 || len(report.Conflicts) != 0 {
		t.Errorf("unexpected errors %v / conflicts %v", report.Errors, report.Conflicts)
	}
	equalTrees(t, testutil.ReadTree(t, dst), map[string]string{"a.txt": "hello", "b.txt": "world"})
}

func TestSync_Idempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	src := filepath.Join(t.TempDir(), "src")
	dst := filepath.Join(t.TempDir(), "dst")
	testutil.WriteTree(t, src, map[string]string{"a.txt": "alpha", "dir/b.txt": "beta", "dir/deep/c.txt": "gamma"})

	ctx := context.Background()
	if _, err := h.sync.Sync(ctx, src, dst, tv.SyncOptions{}); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}
	report, err := h.sync.Sync(ctx, src, dst, tv.SyncOptions{})
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	if report.FilesCopied != 0 || report.FilesSkipped != 3 || report.BytesTransferred != 0 {
		t.Errorf("second pass copied %d, skipped %d, bytes %d; want 0, 3, 0",
			report.FilesCopied, report.FilesSkipped, report.BytesTransferred)
	}
}

func TestSync_DryRunWritesNothing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	src := filepath.Join(t.TempDir(), "src")
	dst := filepath.Join(t.TempDir(), "dst")
	testutil.WriteTree(t, src, map[string]string{"a.txt": "hello", "b.txt": "world"})

	report, err := h.sync.Sync(context.Background(), src, dst, tv.SyncOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if !report.DryRun || report.FilesCopied != 2 || report.BytesTransferred != 10 {
		t.Errorf("dry run report = %+v", report)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Errorf("dry run created the target root: %v", err)
	}
}

func TestSync_DeleteExtraneous(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		dryRun bool
		want   map[string]string
	}{
		{
			name: "deletes",
			want: map[string]string{"keep.txt": "keep"},
		},
		{
			name:   "dry run keeps",
			dryRun: true,
			want:   map[string]string{"keep.txt": "keep", "extra.txt": "extra", "sub/old.txt": "old"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			src := filepath.Join(t.TempDir(), "src")
			dst := filepath.Join(t.TempDir(), "dst")
			testutil.WriteTree(t, src, map[string]string{"keep.txt": "keep"})
			testutil.WriteTree(t, dst, map[string]string{"keep.txt": "keep", "extra.txt": "extra", "sub/old.txt": "old"})

			report, err := h.sync.Sync(context.Background(), src, dst, tv.SyncOptions{DeleteExtraneous: true, DryRun: tt.dryRun})
			if err != nil {
				t.Fatalf("Sync() error = %v", err)
			}
			if report.FilesDeleted != 2 {
				t.Errorf("FilesDeleted = %d, want 2", report.FilesDeleted)
			}
			equalTrees(t, testutil.ReadTree(t, dst), tt.want)
		})
	}
}

func TestSync_ExcludeAndHidden(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"main.go":         "package main",
		"debug.log":       "noise",
		"logs/today.txt":  "noise",
		".env":            "SECRET=1",
		".git/HEAD":       "ref",
		"docs/readme.md":  "docs",
		"docs/build/x.md": "generated",
	}

	tests := []struct {
		name string
		opts tv.SyncOptions
		want []string
	}{
		{
			name: "hidden skipped by default",
			opts: tv.SyncOptions{},
			want: []string{"main.go", "debug.log", "logs/today.txt", "docs/readme.md", "docs/build/x.md"},
		},
		{
			name: "basename and path patterns",
			opts: tv.SyncOptions{ExcludePatterns: []string{"*.log", "logs/", "docs/build"}},
			want: []string{"main.go", "docs/readme.md"},
		},
		{
			name: "include hidden",
			opts: tv.SyncOptions{IncludeHidden: true, ExcludePatterns: []string{".git"}},
			want: []string{"main.go", "debug.log", "logs/today.txt", ".env", "docs/readme.md", "docs/build/x.md"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			src := filepath.Join(t.TempDir(), "src")
			dst := filepath.Join(t.TempDir(), "dst")
			testutil.WriteTree(t, src, files)

			if _, err := h.sync.Sync(context.Background(), src, dst, tt.opts); err != nil {
				t.Fatalf("Sync() error = %v", err)
			}
			want := make(map[string]string)
			for _, rel := range tt.want {
				want[rel] = files[rel]
			}
			equalTrees(t, testutil.ReadTree(t, dst), want)
		})
	}
}

func TestSync_PartialFailure(t *testing.T) {
	t.Parallel()
	faulty := testutil.NewFaultyFilesystem(fs.NewOSFilesystemManager(), "b.txt")
	h := newHarnessWith(t, faulty)
	src := filepath.Join(t.TempDir(), "src")
	dst := filepath.Join(t.TempDir(), "dst")
	testutil.WriteTree(t, src, map[string]string{"a.txt": "hello", "b.txt": "world", "c.txt": "again"})

	report, err := h.sync.Sync(context.Background(), src, dst, tv.SyncOptions{})
	if err != nil {
		t.Fatalf("Sync() error = %v, want a report with one failed file", err)
	}
	if len(report.Errors) != 1 || report.Errors[0].Path != "b.txt" {
		t.Fatalf("Errors = %+v, want exactly b.txt", report.Errors)
	}
	if report.FilesProcessed != 3 || report.FilesCopied != 2 || report.FilesFailed != 1 {
		t.Errorf("processed %d, copied %d, failed %d; want 3, 2, 1", report.FilesProcessed, report.FilesCopied, report.FilesFailed)
	}
	equalTrees(t, testutil.ReadTree(t, dst), map[string]string{"a.txt": "hello", "c.txt": "again"})

	res := tv.ReportResult(report, err)
	if !res.Success {
		t.Errorf("ReportResult().Success = false for partial success: %s", res.Message)
	}
}

func TestSync_AllFilesFail(t *testing.T) {
	t.Parallel()
	faulty := testutil.NewFaultyFilesystem(fs.NewOSFilesystemManager(), "a.txt")
	h := newHarnessWith(t, faulty)
	src := filepath.Join(t.TempDir(), "src")
	testutil.WriteTree(t, src, map[string]string{"a.txt": "hello"})

	report, err := h.sync.Sync(context.Background(), src, filepath.Join(t.TempDir(), "dst"), tv.SyncOptions{})
	res := tv.ReportResult(report, err)
	if res.Success {
		t.Fatal("ReportResult().Success = true when every file failed")
	}
	requireKind(t, res.Error, tv.PartialFailure)
}

func TestSync_ChangeDetection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		srcContent string
		dstContent string
		srcTime    time.Time
		dstTime    time.Time
		policy     tv.ConflictPolicy
		wantCopy   bool
	}{
		{name: "size differs", srcContent: "longer", dstContent: "short", srcTime: older, dstTime: newer, wantCopy: true},
		{name: "source newer", srcContent: "aaaa", dstContent: "aaaa", srcTime: newer, dstTime: older, wantCopy: true},
		{name: "same size older source, content differs", srcContent: "aaaa", dstContent: "bbbb", srcTime: older, dstTime: newer, wantCopy: true},
		{name: "same size older source, identical", srcContent: "aaaa", dstContent: "aaaa", srcTime: older, dstTime: newer, wantCopy: false},
		{name: "source policy trusts the fast path", srcContent: "aaaa", dstContent: "bbbb", srcTime: older, dstTime: newer, policy: tv.PolicySource, wantCopy: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			src := filepath.Join(t.TempDir(), "src")
			dst := filepath.Join(t.TempDir(), "dst")
			testutil.WriteTree(t, src, map[string]string{"f.txt": tt.srcContent})
			testutil.WriteTree(t, dst, map[string]string{"f.txt": tt.dstContent})
			testutil.SetModTime(t, filepath.Join(src, "f.txt"), tt.srcTime)
			testutil.SetModTime(t, filepath.Join(dst, "f.txt"), tt.dstTime)

			report, err := h.sync.Sync(context.Background(), src, dst, tv.SyncOptions{ConflictResolution: tt.policy})
			if err != nil {
				t.Fatalf("Sync() error = %v", err)
			}
			if got := report.FilesCopied == 1; got != tt.wantCopy {
				t.Errorf("copied = %v, want %v", got, tt.wantCopy)
			}
			want := tt.dstContent
			if tt.wantCopy {
				want = tt.srcContent
			}
			equalTrees(t, testutil.ReadTree(t, dst), map[string]string{"f.txt": want})
		})
	}
}

func TestSync_PreserveTimestamps(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	src := filepath.Join(t.TempDir(), "src")
	dst := filepath.Join(t.TempDir(), "dst")
	testutil.WriteTree(t, src, map[string]string{"a.txt": "hello"})
	testutil.SetModTime(t, filepath.Join(src, "a.txt"), older)

	if _, err := h.sync.Sync(context.Background(), src, dst, tv.SyncOptions{PreserveTimestamps: true}); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	info, err := os.Stat(filepath.Join(dst, "a.txt"))
	if err != nil {
		t.Fatalf("stat copied file: %v", err)
	}
	if !info.ModTime().Equal(older) {
		t.Errorf("copied mtime = %v, want %v", info.ModTime(), older)
	}
}

func TestSync_Errors(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string]string{"file.txt": "x", "src/a.txt": "a"})

	tests := []struct {
		name string
		src  string
		dst  string
		opts tv.SyncOptions
		want tv.ErrorKind
	}{
		{name: "missing source", src: filepath.Join(dir, "nope"), dst: filepath.Join(dir, "out"), want: tv.NotFound},
		{name: "source is a file", src: filepath.Join(dir, "file.txt"), dst: filepath.Join(dir, "out"), want: tv.Precondition},
		{name: "target is a file", src: filepath.Join(dir, "src"), dst: filepath.Join(dir, "file.txt"), want: tv.Precondition},
		{name: "bad exclude pattern", src: filepath.Join(dir, "src"), dst: filepath.Join(dir, "out"), opts: tv.SyncOptions{ExcludePatterns: []string{"[unclosed"}}, want: tv.Precondition},
		{name: "bad algorithm", src: filepath.Join(dir, "src"), dst: filepath.Join(dir, "out"), opts: tv.SyncOptions{HashAlgorithm: "md4"}, want: tv.Precondition},
		{name: "bad policy", src: filepath.Join(dir, "src"), dst: filepath.Join(dir, "out"), opts: tv.SyncOptions{ConflictResolution: tv.ConflictPolicy(42)}, want: tv.Precondition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := h.sync.Sync(context.Background(), tt.src, tt.dst, tt.opts)
			if report != nil {
				t.Errorf("Sync() report = %+v, want nil", report)
			}
			requireKind(t, err, tt.want)
		})
	}
}

func TestSync_Cancelled(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	src := filepath.Join(t.TempDir(), "src")
	testutil.WriteTree(t, src, map[string]string{"a.txt": "hello"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.sync.Sync(ctx, src, filepath.Join(t.TempDir(), "dst"), tv.SyncOptions{})
	requireKind(t, err, tv.Cancelled)
}

func TestSync_TargetInsideSource(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	src := filepath.Join(t.TempDir(), "src")
	testutil.WriteTree(t, src, map[string]string{"a.txt": "hello"})
	dst := filepath.Join(src, "mirror")

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		report, err := h.sync.Sync(ctx, src, dst, tv.SyncOptions{})
		if err != nil {
			t.Fatalf("Sync() #%d error = %v", i, err)
		}
		if report.FilesProcessed != 1 {
			t.Errorf("Sync() #%d processed %d files, want 1", i, report.FilesProcessed)
		}
	}
	equalTrees(t, testutil.ReadTree(t, dst), map[string]string{"a.txt": "hello"})
}

func TestSync_BidirectionalDelegates(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	a := filepath.Join(t.TempDir(), "a")
	b := filepath.Join(t.TempDir(), "b")
	testutil.WriteTree(t, a, map[string]string{"from-a.txt": "a"})
	testutil.WriteTree(t, b, map[string]string{"from-b.txt": "b"})

	if _, err := h.sync.Sync(context.Background(), a, b, tv.SyncOptions{Bidirectional: true}); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	want := map[string]string{"from-a.txt": "a", "from-b.txt": "b"}
	equalTrees(t, testutil.ReadTree(t, a), want)
	equalTrees(t, testutil.ReadTree(t, b), want)
}
