package tv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"tv-go/internal/model"
)

// manifestName is the vault metadata name of a snapshot's manifest.
func manifestName(snapshotID string) string {
	return "snapshot/" + snapshotID
}

// ExportSnapshot uploads a snapshot to a vault. Each file's content is stored
// under a key derived from its digest, so content the vault already holds is
// not uploaded again. The manifest is written under the repository's ID as
// namespace once every file is in the vault.
//
// Content comes from the snapshot payload when there is one. Otherwise the
// live file is used, provided its digest still matches the snapshot.
// A nil encryptor uploads plaintext.
func (m *VersionManager) ExportSnapshot(ctx context.Context, repositoryPath, snapshotID string, vault Vault, encryptor Encryptor) (*SyncReport, error) {
	store, repo, err := m.openRepository(repositoryPath)
	if err != nil {
		return nil, err
	}
	snap, err := m.loadSnapshot(store, snapshotID)
	if err != nil {
		return nil, err
	}

	report := newReport(store.Path(), "vault:"+repo.ID+"/"+manifestName(snap.ID), false, m.clock.Now())
	results := make([]fileResult, len(snap.Files))
	started := forEach(ctx, len(snap.Files), m.workers, func(i int) {
		results[i] = m.exportFile(ctx, store, snap, &snap.Files[i], vault, encryptor)
	})
	for i := 0; i < started; i++ {
		tally(report, snap.Files[i].FilePath, results[i], m.clock.Now())
	}
	if err := ctx.Err(); err != nil {
		report.finish(m.clock.Now())
		return report, NewError(Cancelled, "snapshot export cancelled", err)
	}
	if report.FilesFailed > 0 {
		report.finish(m.clock.Now())
		return report, NewError(PartialFailure, fmt.Sprintf("manifest not written: %s failed to export", plural(report.FilesFailed, "file")), nil)
	}

	manifest := model.SnapshotManifest{
		RepositoryID: repo.ID,
		Snapshot:     *snap,
		Encrypted:    encryptor != nil,
		ExportedAt:   m.clock.Now(),
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return report, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := vault.PutMetadata(ctx, repo.ID, manifestName(snap.ID), bytes.NewReader(data), int64(len(data))); err != nil {
		return report, fmt.Errorf("uploading manifest: %w", err)
	}
	report.finish(m.clock.Now())

	m.logger.Info("snapshot exported", "id", snap.ID, "namespace", repo.ID, "uploaded", report.FilesCopied, "skipped", report.FilesSkipped, "encrypted", encryptor != nil)
	return report, nil
}

func (m *VersionManager) exportFile(ctx context.Context, store RepositoryStore, snap *model.VersionSnapshot, fv *model.FileVersion, vault Vault, encryptor Encryptor) fileResult {
	key := contentKey(fv.Algorithm, fv.ContentHash, encryptor != nil)
	has, err := vault.HasContent(ctx, key)
	if err != nil {
		return fileResult{op: "stat", err: err}
	}
	if has {
		return fileResult{}
	}

	src, err := m.openSnapshotContent(store, snap, fv)
	if err != nil {
		return fileResult{op: "open", err: err}
	}
	defer src.Close()

	staged, size, err := m.stage(ctx, src, fv, encryptor)
	if err != nil {
		return fileResult{op: "stage", err: err}
	}
	defer func() {
		staged.Close()
		os.Remove(staged.Name())
	}()

	if err := vault.PutContent(ctx, key, staged, size); err != nil {
		return fileResult{op: "upload", err: err}
	}
	return fileResult{copied: true, bytes: size}
}

// openSnapshotContent opens a snapshot file's payload, falling back to the
// live file. The caller checks the digest.
func (m *VersionManager) openSnapshotContent(store RepositoryStore, snap *model.VersionSnapshot, fv *model.FileVersion) (io.ReadCloser, error) {
	if snap.HasPayload {
		return store.OpenSnapshotFile(snap.ID, fv.FilePath)
	}
	if !filepath.IsLocal(filepath.FromSlash(fv.FilePath)) {
		return nil, fmt.Errorf("unsafe path in snapshot: %s", fv.FilePath)
	}
	p, err := m.fsmgr.Resolve(filepath.Join(snap.BasePath, filepath.FromSlash(fv.FilePath)))
	if err != nil {
		return nil, fmt.Errorf("resolving live file: %w", err)
	}
	return m.fsmgr.Open(p)
}

// stage writes the (optionally encrypted) content to a temporary file so its
// final size is known before upload, checking the plaintext digest on the way.
func (m *VersionManager) stage(ctx context.Context, src io.Reader, fv *model.FileVersion, encryptor Encryptor) (*os.File, int64, error) {
	vr, err := newVerifyingReader(ContextReader(ctx, src), fv.Algorithm, fv.ContentHash, fv.FilePath)
	if err != nil {
		return nil, 0, err
	}
	tmp, err := os.CreateTemp("", "tv-export-*")
	if err != nil {
		return nil, 0, fmt.Errorf("creating staging file: %w", err)
	}
	fail := func(err error) (*os.File, int64, error) {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, 0, err
	}

	if encryptor != nil {
		err = encryptor.Encrypt(vr, tmp)
	} else {
		_, err = io.Copy(tmp, vr)
	}
	if err != nil {
		return fail(fmt.Errorf("staging content: %w", err))
	}
	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return fail(fmt.Errorf("sizing staging file: %w", err))
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fail(fmt.Errorf("rewinding staging file: %w", err))
	}
	return tmp, size, nil
}

// FetchManifest downloads and decodes a snapshot manifest.
func FetchManifest(ctx context.Context, vault Vault, namespace, snapshotID string) (*model.SnapshotManifest, error) {
	var buf bytes.Buffer
	if err := vault.GetMetadata(ctx, namespace, manifestName(snapshotID), &buf); err != nil {
		if IsKind(err, NotFound) {
			return nil, NewError(NotFound, fmt.Sprintf("snapshot %s not found in vault namespace %s", snapshotID, namespace), err)
		}
		return nil, fmt.Errorf("downloading manifest: %w", err)
	}
	var manifest model.SnapshotManifest
	if err := json.Unmarshal(buf.Bytes(), &manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return &manifest, nil
}

// ImportSnapshot downloads an exported snapshot from a vault into destination.
// Encrypted archives need a decryptor. Every file is checked against the
// manifest's digest before it replaces anything on disk.
func (m *VersionManager) ImportSnapshot(ctx context.Context, vault Vault, namespace, snapshotID, destination string, decryptor DecryptionContext, dryRun bool) (*SyncReport, error) {
	manifest, err := FetchManifest(ctx, vault, namespace, snapshotID)
	if err != nil {
		return nil, err
	}
	if manifest.Encrypted && decryptor == nil {
		return nil, preconditionf("snapshot %s is encrypted; unlock a private key to import it", snapshotID)
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

	files := manifest.Snapshot.Files
	report := newReport("vault:"+namespace+"/"+manifestName(snapshotID), dest, dryRun, m.clock.Now())
	results := make([]fileResult, len(files))
	started := forEach(ctx, len(files), m.workers, func(i int) {
		results[i] = m.importFile(ctx, vault, &files[i], dest, manifest.Encrypted, decryptor, dryRun)
	})
	for i := 0; i < started; i++ {
		tally(report, files[i].FilePath, results[i], m.clock.Now())
	}
	report.finish(m.clock.Now())

	if err := ctx.Err(); err != nil {
		return report, NewError(Cancelled, "snapshot import cancelled", err)
	}
	m.logger.Info("snapshot imported", "id", snapshotID, "namespace", namespace, "destination", dest, "files", report.FilesCopied, "errors", len(report.Errors))
	return report, nil
}

func (m *VersionManager) importFile(ctx context.Context, vault Vault, fv *model.FileVersion, dest string, encrypted bool, decryptor DecryptionContext, dryRun bool) fileResult {
	if !filepath.IsLocal(filepath.FromSlash(fv.FilePath)) {
		return fileResult{op: "import", err: fmt.Errorf("unsafe path in manifest: %s", fv.FilePath)}
	}
	key := contentKey(fv.Algorithm, fv.ContentHash, encrypted)
	if dryRun {
		has, err := vault.HasContent(ctx, key)
		if err != nil {
			return fileResult{op: "stat", err: err}
		}
		if !has {
			return fileResult{op: "stat", err: notFoundf("content %s missing from vault", key)}
		}
		return fileResult{copied: true, bytes: fv.Size}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var content io.Reader = streamContent(ctx, vault, key)
	if encrypted {
		content = streamDecrypted(ctx, content, decryptor)
	}
	vr, err := newVerifyingReader(content, fv.Algorithm, fv.ContentHash, fv.FilePath)
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

// streamContent pipes a vault download into a reader. The pipe is torn down
// when ctx is done, which also unblocks the download.
func streamContent(ctx context.Context, vault Vault, key string) io.Reader {
	return pipe(ctx, func(w io.Writer) error {
		return vault.GetContent(ctx, key, w)
	})
}

// streamDecrypted pipes r through a decryptor.
func streamDecrypted(ctx context.Context, r io.Reader, decryptor DecryptionContext) io.Reader {
	return pipe(ctx, func(w io.Writer) error {
		if err := decryptor.Decrypt(r, w); err != nil {
			return fmt.Errorf("decrypting content: %w", err)
		}
		return nil
	})
}

func pipe(ctx context.Context, produce func(w io.Writer) error) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(produce(pw))
	}()
	go func() {
		<-ctx.Done()
		pr.CloseWithError(ctx.Err())
	}()
	return pr
}
