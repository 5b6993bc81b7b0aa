package tv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
)

// IncrementalBackup copies sourcePath into a fresh timestamped directory under
// backupRoot. Earlier backups are never touched, nor copied when backupRoot
// lies inside sourcePath. The report's Target names the new directory.
func (s *Synchronizer) IncrementalBackup(ctx context.Context, sourcePath, backupRoot string, opts SyncOptions) (*SyncReport, error) {
	// Validate the source before a destination directory is chosen.
	if _, err := s.resolveSourceRoot(sourcePath); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(backupRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving backup root: %w", err)
	}
	dest, err := s.nextBackupDir(root)
	if err != nil {
		return nil, err
	}

	opts.Bidirectional = false
	opts.DeleteExtraneous = false
	opts.skipDirs = append(opts.skipDirs, root)
	s.logger.Info("incremental backup", "source", sourcePath, "destination", dest)
	return s.Sync(ctx, sourcePath, dest, opts)
}

// MirrorBackup keeps dest an exact replica of sourcePath: files missing from
// the source are deleted and the source always wins.
func (s *Synchronizer) MirrorBackup(ctx context.Context, sourcePath, dest string, opts SyncOptions) (*SyncReport, error) {
	opts.Bidirectional = false
	opts.DeleteExtraneous = true
	opts.ConflictResolution = PolicySource
	s.logger.Info("mirror backup", "source", sourcePath, "destination", dest)
	return s.Sync(ctx, sourcePath, dest, opts)
}

// nextBackupDir returns root/backup-<stamp>, adding a -N suffix if a backup
// with the same stamp already exists.
func (s *Synchronizer) nextBackupDir(root string) (string, error) {
	base := "backup-" + stamp(s.clock.Now())
	for i := 1; ; i++ {
		name := base
		if i > 1 {
			name = fmt.Sprintf("%s-%d", base, i)
		}
		candidate := filepath.Join(root, name)
		_, err := s.fsmgr.Resolve(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking backup directory: %w", err)
		}
	}
}
