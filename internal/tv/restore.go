package tv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"tv-go/internal/model"
)

// RestoreOptions configures RestoreVersion.
type RestoreOptions struct {
	DryRun bool
}

// RestoreResult describes a completed (or, in a dry run, planned) restore.
type RestoreResult struct {
	Version    *model.FileVersion `json:"version"`
	Target     string             `json:"target"`
	BackupPath string             `json:"backupPath,omitempty"` // empty when nothing was backed up
	Bytes      int64              `json:"bytes"`
	DryRun     bool               `json:"dryRun"`
}

// RestoreVersion overwrites a file with a stored version. An empty filePath
// restores to the version's original location.
//
// Whatever currently occupies the target is first copied to
// <target>.backup-<stamp>. The backup is best effort: a failure is logged and
// the restore goes ahead. The stored modification time and mode are
// reapplied when the repository keeps metadata.
func (m *VersionManager) RestoreVersion(ctx context.Context, filePath, repositoryPath, versionID string, opts RestoreOptions) (*RestoreResult, error) {
	store, repo, err := m.openRepository(repositoryPath)
	if err != nil {
		return nil, err
	}
	v, err := m.loadVersion(store, versionID)
	if err != nil {
		return nil, err
	}

	target := filepath.Join(repo.BasePath, filepath.FromSlash(v.FilePath))
	if filePath != "" {
		target = filePath
		if !filepath.IsAbs(target) {
			target = filepath.Join(repo.BasePath, target)
		}
	}
	target = filepath.Clean(target)

	ok, err := store.BlobExists(v.BlobName)
	if err != nil {
		return nil, fmt.Errorf("checking version blob: %w", err)
	}
	if !ok {
		return nil, notFoundf("blob for %s version %d is missing", v.FilePath, v.Version)
	}

	unlock := m.locks.Lock(store.Path() + "\x00" + v.FilePath)
	defer unlock()

	result := &RestoreResult{Version: v, Target: target, Bytes: v.Size, DryRun: opts.DryRun}

	current, err := m.fsmgr.Resolve(target)
	switch {
	case err == nil && current.IsDir():
		return nil, preconditionf("restore target is a directory: %s", target)
	case err == nil:
		result.BackupPath, err = m.nextRestoreBackup(target)
		if err != nil {
			return nil, err
		}
		if !opts.DryRun {
			if _, err := m.fsmgr.CopyFile(ctx, current, result.BackupPath); err != nil {
				m.logger.Warn("pre-restore backup failed", "path", target, "error", err)
				result.BackupPath = ""
			}
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("resolving restore target: %w", err)
	}

	if opts.DryRun {
		return result, nil
	}

	blob, err := store.OpenBlob(v.BlobName)
	if err != nil {
		return nil, fmt.Errorf("opening version blob: %w", err)
	}
	defer blob.Close()

	vr, err := newVerifyingReader(ContextReader(ctx, blob), v.Algorithm, v.ContentHash, v.BlobName)
	if err != nil {
		return nil, err
	}
	n, err := m.fsmgr.WriteFile(ctx, target, vr, filePerm(v.Metadata))
	if err != nil {
		return nil, fmt.Errorf("writing restored file: %w", err)
	}
	result.Bytes = n

	if err := m.applyMetadata(target, v.Metadata); err != nil {
		m.logger.Warn("reapplying file metadata failed", "path", target, "error", err)
	}

	m.logger.Info("version restored", "path", v.FilePath, "version", v.Version, "target", target, "backup", result.BackupPath)
	return result, nil
}

// applyMetadata restores the mode and timestamps recorded with a version.
func (m *VersionManager) applyMetadata(target string, md *model.FileMetadata) error {
	if md == nil {
		return nil
	}
	if md.Mode != 0 {
		if err := m.fsmgr.Chmod(target, fs.FileMode(md.Mode).Perm()); err != nil {
			return fmt.Errorf("setting mode: %w", err)
		}
	}
	if md.ModifiedAt.IsZero() {
		return nil
	}
	atime := md.AccessedAt
	if atime.IsZero() {
		atime = md.ModifiedAt
	}
	if err := m.fsmgr.Chtimes(target, atime, md.ModifiedAt); err != nil {
		return fmt.Errorf("setting timestamps: %w", err)
	}
	return nil
}

// nextRestoreBackup returns <target>.backup-<stamp>, adding a -N suffix so an
// earlier pre-restore copy is never overwritten.
func (m *VersionManager) nextRestoreBackup(target string) (string, error) {
	base := target + ".backup-" + stamp(m.clock.Now())
	for i := 1; ; i++ {
		candidate := base
		if i > 1 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}
		_, err := m.fsmgr.Resolve(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking restore backup path: %w", err)
		}
	}
}
