package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"tv-go/internal/config"
	"tv-go/internal/database"
	"tv-go/internal/encryption"
	"tv-go/internal/fs"
	"tv-go/internal/model"
	"tv-go/internal/repo"
	"tv-go/internal/tv"
	"tv-go/internal/vault"
)

// TVApp is the application layer between the CLI and the engine.
// It constructs all dependencies from config, applies the configured
// operation timeout, and records every engine call in the journal.
type TVApp struct {
	cfg       *config.Config
	journal   tv.Journal
	fsmgr     tv.FilesystemManager
	sync      *tv.Synchronizer
	versions  *tv.VersionManager
	logger    *slog.Logger
	logCloser io.Closer
	clock     tv.Clock
	ids       tv.IDGenerator
}

// NewTVApp creates a fully wired TVApp from the given config. Log lines are
// mirrored to stderr when it is non-nil. The caller must call Close when done.
func NewTVApp(cfg *config.Config, stderr io.Writer) (*TVApp, error) {
	ids := tv.UUIDGenerator{}
	sessionID := ids.New()

	logger, logCloser, err := newLogger(cfg, sessionID[:8], stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	journal, err := database.NewJournalFromConfig(cfg.Journal)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	fsmgr := fs.NewOSFilesystemManager()
	adapter := &slogAdapter{l: logger}
	clock := tv.RealClock{}

	vm := tv.NewVersionManager(fsmgr, repo.Open, adapter, clock, ids)
	vm.SetWorkers(cfg.Engine.Workers)

	return &TVApp{
		cfg:       cfg,
		journal:   journal,
		fsmgr:     fsmgr,
		sync:      tv.NewSynchronizer(fsmgr, adapter, clock),
		versions:  vm,
		logger:    logger,
		logCloser: logCloser,
		clock:     clock,
		ids:       ids,
	}, nil
}

// Close releases the journal and the log file.
func (a *TVApp) Close() error {
	var firstErr error
	if err := a.journal.Close(); err != nil {
		firstErr = fmt.Errorf("closing journal: %w", err)
	}
	if err := a.logCloser.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing log file: %w", err)
	}
	return firstErr
}

// run journals one engine call around fn. fn receives a context bounded by
// the configured operation timeout. Journal failures are logged and never
// fail the call itself.
func run[T any](ctx context.Context, a *TVApp, name string, params any, fn func(ctx context.Context) tv.OperationResult[T]) tv.OperationResult[T] {
	op, err := NewOperation(a.ids.New(), name, params, a.clock.Now())
	if err != nil {
		var zero T
		return tv.Fail("", zero, err)
	}
	if err := a.journal.CreateOperation(op.Record()); err != nil {
		a.logger.Warn("journal write failed", "operation", name, "error", err)
	} else {
		op.persisted = true
	}

	if timeout := a.cfg.Engine.OperationTimeout.Duration; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res := fn(ctx)

	if op.persisted {
		if err := a.journal.FinishOperation(op.ID, finalStatus(res.Success), res.Message, a.clock.Now()); err != nil {
			a.logger.Warn("journal update failed", "operation", name, "id", op.ID, "error", err)
		}
	}
	if !res.Success {
		a.logger.Error("operation failed", "operation", name, "id", op.ID, "error", res.ErrorText())
	}
	return res
}

// result wraps a single-value engine call.
func result[T any](data T, err error, message func(T) string) tv.OperationResult[T] {
	if err != nil {
		var zero T
		return tv.Fail("", zero, err)
	}
	return tv.Succeed(message(data), data)
}

// SyncDefaults returns SyncOptions seeded from the engine config.
func (a *TVApp) SyncDefaults() tv.SyncOptions {
	return tv.SyncOptions{
		ExcludePatterns: append([]string(nil), a.cfg.Engine.Exclude...),
		HashAlgorithm:   a.cfg.Engine.HashAlgorithm,
		Workers:         a.cfg.Engine.Workers,
	}
}

// RepositoryDefaults returns RepositoryOptions seeded from the engine config.
func (a *TVApp) RepositoryDefaults() tv.RepositoryOptions {
	return tv.RepositoryOptions{
		MaxVersions:        a.cfg.Engine.MaxVersions,
		ExcludePatterns:    append([]string(nil), a.cfg.Engine.Exclude...),
		StoreMetadata:      a.cfg.Engine.StoreMetadata,
		DuplicateSnapshots: a.cfg.Engine.DuplicateSnapshots,
		HashAlgorithm:      a.cfg.Engine.HashAlgorithm,
	}
}

func syncParams(source, target string, opts tv.SyncOptions) map[string]any {
	return map[string]any{
		"source":             source,
		"target":             target,
		"bidirectional":      opts.Bidirectional,
		"deleteExtraneous":   opts.DeleteExtraneous,
		"preserveTimestamps": opts.PreserveTimestamps,
		"exclude":            opts.ExcludePatterns,
		"includeHidden":      opts.IncludeHidden,
		"dryRun":             opts.DryRun,
		"conflictResolution": opts.ConflictResolution.String(),
	}
}

// Sync copies source onto target, or reconciles both ways when
// opts.Bidirectional is set.
func (a *TVApp) Sync(ctx context.Context, source, target string, opts tv.SyncOptions) tv.OperationResult[*tv.SyncReport] {
	name := "sync"
	if opts.Bidirectional {
		name = "bisync"
	}
	return run(ctx, a, name, syncParams(source, target, opts), func(ctx context.Context) tv.OperationResult[*tv.SyncReport] {
		return tv.ReportResult(a.sync.Sync(ctx, source, target, opts))
	})
}

// Bisync reconciles two trees under the configured conflict policy.
func (a *TVApp) Bisync(ctx context.Context, pathA, pathB string, opts tv.SyncOptions) tv.OperationResult[*tv.SyncReport] {
	return run(ctx, a, "bisync", syncParams(pathA, pathB, opts), func(ctx context.Context) tv.OperationResult[*tv.SyncReport] {
		return tv.ReportResult(a.sync.Bisync(ctx, pathA, pathB, opts))
	})
}

// IncrementalBackup copies source into a new timestamped directory under backupRoot.
func (a *TVApp) IncrementalBackup(ctx context.Context, source, backupRoot string, opts tv.SyncOptions) tv.OperationResult[*tv.SyncReport] {
	return run(ctx, a, "backup.incremental", syncParams(source, backupRoot, opts), func(ctx context.Context) tv.OperationResult[*tv.SyncReport] {
		return tv.ReportResult(a.sync.IncrementalBackup(ctx, source, backupRoot, opts))
	})
}

// MirrorBackup makes dest an exact replica of source.
func (a *TVApp) MirrorBackup(ctx context.Context, source, dest string, opts tv.SyncOptions) tv.OperationResult[*tv.SyncReport] {
	return run(ctx, a, "backup.mirror", syncParams(source, dest, opts), func(ctx context.Context) tv.OperationResult[*tv.SyncReport] {
		return tv.ReportResult(a.sync.MirrorBackup(ctx, source, dest, opts))
	})
}

// InitRepository creates a repository for basePath.
func (a *TVApp) InitRepository(ctx context.Context, basePath, repositoryPath string, opts tv.RepositoryOptions) tv.OperationResult[*model.VersionRepository] {
	params := map[string]any{"basePath": basePath, "repositoryPath": repositoryPath, "maxVersions": opts.MaxVersions}
	return run(ctx, a, "repo.init", params, func(context.Context) tv.OperationResult[*model.VersionRepository] {
		r, err := a.versions.InitRepository(basePath, repositoryPath, opts)
		return result(r, err, func(r *model.VersionRepository) string {
			return fmt.Sprintf("initialized repository %s for %s (keeping %d versions per file)", r.RepositoryPath, r.BasePath, r.MaxVersions)
		})
	})
}

// RepositoryStats summarizes a repository.
func (a *TVApp) RepositoryStats(ctx context.Context, repositoryPath string) tv.OperationResult[*tv.RepositoryStats] {
	return run(ctx, a, "repo.stats", map[string]any{"repositoryPath": repositoryPath}, func(context.Context) tv.OperationResult[*tv.RepositoryStats] {
		s, err := a.versions.Stats(repositoryPath)
		return result(s, err, func(s *tv.RepositoryStats) string {
			return fmt.Sprintf("%d files tracked, %d versions, %d bytes, %d snapshots", s.TrackedFiles, s.Versions, s.TotalSize, s.Snapshots)
		})
	})
}

// CreateVersion commits the current content of filePath.
func (a *TVApp) CreateVersion(ctx context.Context, filePath, repositoryPath string, opts tv.VersionOptions) tv.OperationResult[*model.FileVersion] {
	params := map[string]any{"filePath": filePath, "repositoryPath": repositoryPath, "comment": opts.Comment, "tags": opts.Tags, "dryRun": opts.DryRun}
	return run(ctx, a, "version.create", params, func(ctx context.Context) tv.OperationResult[*model.FileVersion] {
		v, created, err := a.versions.CreateVersion(ctx, filePath, repositoryPath, opts)
		return result(v, err, func(v *model.FileVersion) string {
			switch {
			case !created:
				return fmt.Sprintf("%s unchanged since version %d", v.FilePath, v.Version)
			case opts.DryRun:
				return fmt.Sprintf("would create version %d of %s [dry run]", v.Version, v.FilePath)
			}
			return fmt.Sprintf("created version %d of %s", v.Version, v.FilePath)
		})
	})
}

// VersionHistory lists the stored versions of filePath, newest first.
func (a *TVApp) VersionHistory(ctx context.Context, filePath, repositoryPath string) tv.OperationResult[[]*model.FileVersion] {
	return run(ctx, a, "version.history", map[string]any{"filePath": filePath, "repositoryPath": repositoryPath}, func(context.Context) tv.OperationResult[[]*model.FileVersion] {
		vs, err := a.versions.GetHistory(filePath, repositoryPath)
		return result(vs, err, func(vs []*model.FileVersion) string {
			return fmt.Sprintf("%d versions of %s", len(vs), filePath)
		})
	})
}

// GetVersion returns a version record by id.
func (a *TVApp) GetVersion(ctx context.Context, repositoryPath, versionID string) tv.OperationResult[*model.FileVersion] {
	return run(ctx, a, "version.show", map[string]any{"repositoryPath": repositoryPath, "versionId": versionID}, func(context.Context) tv.OperationResult[*model.FileVersion] {
		v, err := a.versions.GetVersion(repositoryPath, versionID)
		return result(v, err, func(v *model.FileVersion) string {
			return fmt.Sprintf("%s version %d", v.FilePath, v.Version)
		})
	})
}

// RestoreVersion overwrites a file with a stored version.
func (a *TVApp) RestoreVersion(ctx context.Context, filePath, repositoryPath, versionID string, opts tv.RestoreOptions) tv.OperationResult[*tv.RestoreResult] {
	params := map[string]any{"filePath": filePath, "repositoryPath": repositoryPath, "versionId": versionID, "dryRun": opts.DryRun}
	return run(ctx, a, "version.restore", params, func(ctx context.Context) tv.OperationResult[*tv.RestoreResult] {
		r, err := a.versions.RestoreVersion(ctx, filePath, repositoryPath, versionID, opts)
		return result(r, err, func(r *tv.RestoreResult) string {
			msg := fmt.Sprintf("restored %s version %d to %s", r.Version.FilePath, r.Version.Version, r.Target)
			if r.DryRun {
				msg = fmt.Sprintf("would restore %s version %d to %s", r.Version.FilePath, r.Version.Version, r.Target)
			}
			if r.BackupPath != "" {
				msg += " (previous content saved to " + r.BackupPath + ")"
			}
			return msg
		})
	})
}

// CompareVersions classifies the change between two versions.
func (a *TVApp) CompareVersions(ctx context.Context, repositoryPath, versionID1, versionID2 string) tv.OperationResult[*tv.VersionComparison] {
	params := map[string]any{"repositoryPath": repositoryPath, "from": versionID1, "to": versionID2}
	return run(ctx, a, "version.compare", params, func(context.Context) tv.OperationResult[*tv.VersionComparison] {
		c, err := a.versions.CompareVersions(repositoryPath, versionID1, versionID2)
		return result(c, err, func(c *tv.VersionComparison) string { return c.Summary })
	})
}

// DeleteVersion removes a version and its blob.
func (a *TVApp) DeleteVersion(ctx context.Context, repositoryPath, versionID string) tv.OperationResult[*model.FileVersion] {
	return run(ctx, a, "version.delete", map[string]any{"repositoryPath": repositoryPath, "versionId": versionID}, func(context.Context) tv.OperationResult[*model.FileVersion] {
		v, err := a.versions.DeleteVersion(repositoryPath, versionID)
		return result(v, err, func(v *model.FileVersion) string {
			return fmt.Sprintf("deleted %s version %d", v.FilePath, v.Version)
		})
	})
}

// CreateSnapshot records the identity of every file under basePath. A
// snapshot with some unreadable files still succeeds.
func (a *TVApp) CreateSnapshot(ctx context.Context, basePath, repositoryPath string, opts tv.SnapshotOptions) tv.OperationResult[*tv.SnapshotResult] {
	params := map[string]any{"basePath": basePath, "repositoryPath": repositoryPath, "name": opts.Name, "dryRun": opts.DryRun}
	return run(ctx, a, "snapshot.create", params, func(ctx context.Context) tv.OperationResult[*tv.SnapshotResult] {
		r, err := a.versions.CreateSnapshot(ctx, basePath, repositoryPath, opts)
		if err != nil {
			msg := ""
			if r != nil {
				msg = r.Summary() + " (" + err.Error() + ")"
			}
			return tv.Fail(msg, r, err)
		}
		msg := r.Summary()
		if opts.DryRun {
			msg += " [dry run]"
		}
		return tv.Succeed(msg, r)
	})
}

// ListSnapshots returns every snapshot of a repository, newest first.
func (a *TVApp) ListSnapshots(ctx context.Context, repositoryPath string) tv.OperationResult[[]*model.VersionSnapshot] {
	return run(ctx, a, "snapshot.list", map[string]any{"repositoryPath": repositoryPath}, func(context.Context) tv.OperationResult[[]*model.VersionSnapshot] {
		s, err := a.versions.ListSnapshots(repositoryPath)
		return result(s, err, func(s []*model.VersionSnapshot) string {
			return fmt.Sprintf("%d snapshots", len(s))
		})
	})
}

// GetSnapshot returns a snapshot by id.
func (a *TVApp) GetSnapshot(ctx context.Context, repositoryPath, snapshotID string) tv.OperationResult[*model.VersionSnapshot] {
	return run(ctx, a, "snapshot.show", map[string]any{"repositoryPath": repositoryPath, "snapshotId": snapshotID}, func(context.Context) tv.OperationResult[*model.VersionSnapshot] {
		s, err := a.versions.GetSnapshot(repositoryPath, snapshotID)
		return result(s, err, func(s *model.VersionSnapshot) string {
			return fmt.Sprintf("snapshot %q: %d files", s.Name, len(s.Files))
		})
	})
}

// RestoreSnapshot writes a snapshot's payload into destination.
func (a *TVApp) RestoreSnapshot(ctx context.Context, repositoryPath, snapshotID, destination string, dryRun bool) tv.OperationResult[*tv.SyncReport] {
	params := map[string]any{"repositoryPath": repositoryPath, "snapshotId": snapshotID, "destination": destination, "dryRun": dryRun}
	return run(ctx, a, "snapshot.restore", params, func(ctx context.Context) tv.OperationResult[*tv.SyncReport] {
		return tv.ReportResult(a.versions.RestoreSnapshot(ctx, repositoryPath, snapshotID, destination, dryRun))
	})
}

// openVault builds the named vault, or the first configured one.
func (a *TVApp) openVault(ctx context.Context, name string) (tv.Vault, error) {
	vc, err := a.cfg.Vault(name)
	if err != nil {
		return nil, tv.NewError(tv.Precondition, "selecting vault", err)
	}
	v, err := vault.NewVaultFromConfig(ctx, *vc)
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}
	return v, nil
}

func (a *TVApp) newEncryptor() (tv.Encryptor, error) {
	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	return enc, nil
}

// ValidateVault checks that the named vault is reachable.
func (a *TVApp) ValidateVault(ctx context.Context, vaultName string) tv.OperationResult[string] {
	return run(ctx, a, "vault.validate", map[string]any{"vault": vaultName}, func(ctx context.Context) tv.OperationResult[string] {
		v, err := a.openVault(ctx, vaultName)
		if err == nil {
			err = v.ValidateSetup(ctx)
		}
		return result(vaultName, err, func(string) string { return "vault is reachable" })
	})
}

// ExportSnapshot uploads a snapshot to a vault, encrypting the content when
// encrypt is set.
func (a *TVApp) ExportSnapshot(ctx context.Context, repositoryPath, snapshotID, vaultName string, encrypt bool) tv.OperationResult[*tv.SyncReport] {
	params := map[string]any{"repositoryPath": repositoryPath, "snapshotId": snapshotID, "vault": vaultName, "encrypt": encrypt}
	return run(ctx, a, "snapshot.export", params, func(ctx context.Context) tv.OperationResult[*tv.SyncReport] {
		v, err := a.openVault(ctx, vaultName)
		if err != nil {
			return tv.Fail[*tv.SyncReport]("", nil, err)
		}
		var enc tv.Encryptor
		if encrypt {
			if enc, err = a.newEncryptor(); err != nil {
				return tv.Fail[*tv.SyncReport]("", nil, err)
			}
			if !enc.IsConfigured() {
				return tv.Fail[*tv.SyncReport]("", nil, tv.NewError(tv.Precondition, "encryption keys missing; run `tv encryption init` first", nil))
			}
		}
		return tv.ReportResult(a.versions.ExportSnapshot(ctx, repositoryPath, snapshotID, v, enc))
	})
}

// FetchManifest downloads an exported snapshot's manifest.
func (a *TVApp) FetchManifest(ctx context.Context, vaultName, namespace, snapshotID string) (*model.SnapshotManifest, error) {
	v, err := a.openVault(ctx, vaultName)
	if err != nil {
		return nil, err
	}
	return tv.FetchManifest(ctx, v, namespace, snapshotID)
}

// ImportSnapshot downloads an exported snapshot into destination. A
// non-empty passphrase unlocks the private key for encrypted archives.
func (a *TVApp) ImportSnapshot(ctx context.Context, vaultName, namespace, snapshotID, destination, passphrase string, dryRun bool) tv.OperationResult[*tv.SyncReport] {
	params := map[string]any{"vault": vaultName, "namespace": namespace, "snapshotId": snapshotID, "destination": destination, "dryRun": dryRun}
	return run(ctx, a, "snapshot.import", params, func(ctx context.Context) tv.OperationResult[*tv.SyncReport] {
		v, err := a.openVault(ctx, vaultName)
		if err != nil {
			return tv.Fail[*tv.SyncReport]("", nil, err)
		}
		var dec tv.DecryptionContext
		if passphrase != "" {
			enc, err := a.newEncryptor()
			if err != nil {
				return tv.Fail[*tv.SyncReport]("", nil, err)
			}
			if dec, err = enc.Unlock(passphrase); err != nil {
				return tv.Fail[*tv.SyncReport]("", nil, err)
			}
		}
		return tv.ReportResult(a.versions.ImportSnapshot(ctx, v, namespace, snapshotID, destination, dec, dryRun))
	})
}

// publicKeyer is implemented by encryptors that can print their public key.
type publicKeyer interface {
	PublicKey() (string, error)
}

// InitEncryption generates the archive key pair, sealing the private key
// with passphrase. It returns the public key when the encryptor exposes one.
func (a *TVApp) InitEncryption(ctx context.Context, passphrase string) tv.OperationResult[string] {
	return run(ctx, a, "encryption.init", nil, func(context.Context) tv.OperationResult[string] {
		enc, err := a.newEncryptor()
		if err != nil {
			return tv.Fail("", "", err)
		}
		if err := enc.Setup(passphrase); err != nil {
			return tv.Fail("", "", err)
		}
		pub := ""
		if pk, ok := enc.(publicKeyer); ok {
			if pub, err = pk.PublicKey(); err != nil {
				return tv.Fail("", "", err)
			}
		}
		return tv.Succeed("encryption keys created", pub)
	})
}

// OperationHistory returns the most recent journal records, newest first.
func (a *TVApp) OperationHistory(limit int) ([]*tv.OperationRecord, error) {
	return a.journal.ListOperations(limit)
}
