package tv

import (
	"cmp"
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"time"

	"tv-go/internal/model"
)

// SnapshotOptions annotates a new snapshot.
type SnapshotOptions struct {
	Name        string // defaults to snapshot-<stamp>
	Description string
	Author      string
	DryRun      bool
}

// SnapshotResult is a created snapshot plus the files that could not be captured.
type SnapshotResult struct {
	Snapshot *model.VersionSnapshot `json:"snapshot"`
	Errors   []FileError            `json:"errors"`
}

// Summary renders a one-line description of the snapshot.
func (r *SnapshotResult) Summary() string {
	return fmt.Sprintf("snapshot %q: %d files captured (%s), %s",
		r.Snapshot.Name, len(r.Snapshot.Files), formatBytes(r.Snapshot.TotalSize), plural(len(r.Errors), "error"))
}

type capture struct {
	file model.FileVersion
	err  error
	op   string
}

// CreateSnapshot records the identity of every included file under basePath.
// An empty basePath selects the repository's base path. When the repository
// duplicates snapshots, each file's bytes are also copied under the snapshot's
// payload directory.
//
// Files that cannot be read are reported in the result and left out of the
// snapshot. If no file could be captured the call fails.
func (m *VersionManager) CreateSnapshot(ctx context.Context, basePath, repositoryPath string, opts SnapshotOptions) (*SnapshotResult, error) {
	store, repo, err := m.openRepository(repositoryPath)
	if err != nil {
		return nil, err
	}
	if basePath == "" {
		basePath = repo.BasePath
	}
	base, err := m.resolveDir(basePath, "base path")
	if err != nil {
		return nil, err
	}

	walk, err := m.fsmgr.Walk(ctx, base, WalkOptions{
		Exclude:       repo.Config.ExcludePatterns,
		IncludeHidden: repo.Config.IncludeHidden,
		SkipDirs:      []string{store.Path()},
	})
	if err != nil {
		return nil, walkError(ctx, "snapshot", fmt.Errorf("reading tree: %w", err))
	}

	now := m.clock.Now()
	snap := &model.VersionSnapshot{
		ID:          m.idgen.New(),
		Name:        opts.Name,
		Description: opts.Description,
		Timestamp:   now,
		BasePath:    base.String(),
		Author:      opts.Author,
		HasPayload:  repo.Config.DuplicateSnapshots,
		Files:       []model.FileVersion{},
	}
	if snap.Name == "" {
		snap.Name = "snapshot-" + stamp(now)
	}
	result := &SnapshotResult{Snapshot: snap, Errors: slices.Clone(walk.Errors)}

	entries := walk.Entries
	captures := make([]capture, len(entries))
	started := forEach(ctx, len(entries), m.workers, func(i int) {
		captures[i] = m.captureFile(ctx, store, repo, snap, entries[i], now, opts.DryRun)
	})
	if err := ctx.Err(); err != nil {
		return nil, NewError(Cancelled, "snapshot cancelled", err)
	}

	for i := 0; i < started; i++ {
		c := captures[i]
		if c.err != nil {
			result.Errors = append(result.Errors, FileError{Path: entries[i].RelPath, Operation: c.op, Error: c.err.Error(), Timestamp: m.clock.Now()})
			continue
		}
		snap.Files = append(snap.Files, c.file)
		snap.TotalSize += c.file.Size
	}
	slices.SortStableFunc(result.Errors, func(a, b FileError) int { return cmp.Compare(a.Path, b.Path) })

	if len(entries) > 0 && len(snap.Files) == 0 {
		return result, NewError(PartialFailure, fmt.Sprintf("no files could be captured (%s)", plural(len(result.Errors), "error")), nil)
	}
	if opts.DryRun {
		return result, nil
	}

	if err := store.PutSnapshot(snap); err != nil {
		return nil, fmt.Errorf("writing snapshot record: %w", err)
	}
	if err := m.updateRepository(store, func(r *model.VersionRepository) {
		t := now
		r.LastSnapshot = &t
	}); err != nil {
		return result, err
	}

	m.logger.Info("snapshot created", "id", snap.ID, "name", snap.Name, "files", len(snap.Files), "errors", len(result.Errors))
	return result, nil
}

// captureFile computes one file's snapshot entry, writing its payload copy
// when the repository duplicates snapshots.
func (m *VersionManager) captureFile(ctx context.Context, store RepositoryStore, repo *model.VersionRepository, snap *model.VersionSnapshot, e *Entry, now time.Time, dryRun bool) capture {
	alg := repo.Config.HashAlgorithm
	fv := model.FileVersion{
		ID:        m.idgen.New(),
		FilePath:  e.RelPath,
		Version:   1,
		Timestamp: now,
		Size:      e.Path.Info().Size(),
		Algorithm: alg,
	}
	if repo.Config.StoreMetadata {
		fv.Metadata = m.fileMetadata(e.Path)
	}

	if !snap.HasPayload || dryRun {
		hex, err := m.fsmgr.Hash(ctx, e.Path, alg)
		if err != nil {
			return capture{op: "hash", err: err}
		}
		fv.ContentHash = hex
		return capture{file: fv}
	}

	f, err := m.fsmgr.Open(e.Path)
	if err != nil {
		return capture{op: "open", err: err}
	}
	defer f.Close()

	d, err := NewDigester(alg)
	if err != nil {
		return capture{op: "hash", err: err}
	}
	n, err := store.WriteSnapshotFile(snap.ID, e.RelPath, teeDigest(ContextReader(ctx, f), d))
	if err != nil {
		return capture{op: "copy", err: err}
	}
	fv.Size = n
	fv.ContentHash = d.Digest().Encoded()
	return capture{file: fv}
}

// ListSnapshots returns every snapshot of the repository, newest first.
func (m *VersionManager) ListSnapshots(repositoryPath string) ([]*model.VersionSnapshot, error) {
	store, _, err := m.openRepository(repositoryPath)
	if err != nil {
		return nil, err
	}
	snaps, err := store.ListSnapshots()
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	slices.SortStableFunc(snaps, func(a, b *model.VersionSnapshot) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return snaps, nil
}

// GetSnapshot returns a snapshot by id.
func (m *VersionManager) GetSnapshot(repositoryPath, snapshotID string) (*model.VersionSnapshot, error) {
	store, _, err := m.openRepository(repositoryPath)
	if err != nil {
		return nil, err
	}
	return m.loadSnapshot(store, snapshotID)
}

func (m *VersionManager) loadSnapshot(store RepositoryStore, snapshotID string) (*model.VersionSnapshot, error) {
	snap, err := store.GetSnapshot(snapshotID)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot record: %w", err)
	}
	if snap == nil {
		return nil, notFoundf("snapshot not found: %s", snapshotID)
	}
	return snap, nil
}

// RestoreSnapshot writes a snapshot's payload into destination, which is
// created if missing. An empty destination selects the snapshot's base path.
// Every restored file is checked against its recorded digest; files that fail
// are reported and the rest are still restored.
func (m *VersionManager) RestoreSnapshot(ctx context.Context, repositoryPath, snapshotID, destination string, dryRun bool) (*SyncReport, error) {
	store, _, err := m.openRepository(repositoryPath)
	if err != nil {
		return nil, err
	}
	snap, err := m.loadSnapshot(store, snapshotID)
	if err != nil {
		return nil, err
	}
	if !snap.HasPayload {
		return nil, preconditionf("snapshot %s has no stored payload to restore from", snapshotID)
	}
	if destination == "" {
		destination = snap.BasePath
	}
	dest, err := filepath.Abs(destination)
	if err != nil {
		return nil, fmt.Errorf("resolving destination: %w", err)
	}
	if !dryRun {
		if err := m.fsmgr.MkdirAll(dest); err != nil {
			return nil, fmt.Errorf("creating destination: %w", err)
		}
	}

	report := newReport("snapshot:"+snap.ID, dest, dryRun, m.clock.Now())
	results := make([]fileResult, len(snap.Files))
	started := forEach(ctx, len(snap.Files), m.workers, func(i int) {
		results[i] = m.restoreSnapshotFile(ctx, store, snap.ID, &snap.Files[i], dest, dryRun)
	})
	for i := 0; i < started; i++ {
		tally(report, snap.Files[i].FilePath, results[i], m.clock.Now())
	}
	report.finish(m.clock.Now())

	if err := ctx.Err(); err != nil {
		return report, NewError(Cancelled, "snapshot restore cancelled", err)
	}
	m.logger.Info("snapshot restored", "id", snap.ID, "destination", dest, "files", report.FilesCopied, "errors", len(report.Errors))
	return report, nil
}

func (m *VersionManager) restoreSnapshotFile(ctx context.Context, store RepositoryStore, snapshotID string, fv *model.FileVersion, dest string, dryRun bool) fileResult {
	if !filepath.IsLocal(filepath.FromSlash(fv.FilePath)) {
		return fileResult{op: "restore", err: fmt.Errorf("unsafe path in snapshot: %s", fv.FilePath)}
	}
	if dryRun {
		return fileResult{copied: true, bytes: fv.Size}
	}

	src, err := store.OpenSnapshotFile(snapshotID, fv.FilePath)
	if err != nil {
		return fileResult{op: "open", err: err}
	}
	defer src.Close()

	vr, err := newVerifyingReader(ContextReader(ctx, src), fv.Algorithm, fv.ContentHash, fv.FilePath)
	if err != nil {
		return fileResult{op: "verify", err: err}
	}
	target := filepath.Join(dest, filepath.FromSlash(fv.FilePath))
	n, err := m.fsmgr.WriteFile(ctx, target, vr, filePerm(fv.Metadata))
	if err != nil {
		return fileResult{op: "write", err: err}
	}
	if err := m.applyMetadata(target, fv.Metadata); err != nil {
		m.logger.Warn("reapplying file metadata failed", "path", target, "error", err)
	}
	return fileResult{copied: true, bytes: n}
}

// filePerm returns the recorded permission bits, or 0644.
func filePerm(md *model.FileMetadata) fs.FileMode {
	if md != nil && md.Mode != 0 {
		return fs.FileMode(md.Mode).Perm()
	}
	return 0o644
}

