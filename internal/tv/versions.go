package tv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"tv-go/internal/model"
)

// DefaultMaxVersions is the retention ceiling used when none is configured.
const DefaultMaxVersions = 10

// DefaultRepositoryDir is the repository directory created under the base
// path when no repository path is given.
const DefaultRepositoryDir = ".tv"

// VersionManager maintains per-file version history and whole-tree snapshots
// inside a repository directory. Repository state is reloaded from the store on
// every call; nothing is cached between calls.
type VersionManager struct {
	fsmgr     FilesystemManager
	openStore StoreOpener
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	workers   int
	locks     *keyedMutex
}

// NewVersionManager creates a VersionManager with the provided dependencies.
func NewVersionManager(fsmgr FilesystemManager, openStore StoreOpener, logger Logger, clock Clock, idgen IDGenerator) *VersionManager {
	return &VersionManager{
		fsmgr:     fsmgr,
		openStore: openStore,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		workers:   runtime.NumCPU(),
		locks:     newKeyedMutex(),
	}
}

// SetWorkers bounds per-file concurrency for snapshot operations.
func (m *VersionManager) SetWorkers(n int) {
	if n > 0 {
		m.workers = n
	}
}

// RepositoryOptions configures a new repository.
type RepositoryOptions struct {
	MaxVersions        int // 0 selects DefaultMaxVersions
	ExcludePatterns    []string
	IncludeHidden      bool
	StoreMetadata      bool
	DuplicateSnapshots bool
	HashAlgorithm      string
}

// VersionOptions annotates a new file version.
type VersionOptions struct {
	Comment string
	Author  string
	Tags    []string
	DryRun  bool
}

// RepositoryStats summarizes a repository, recomputed from its records.
type RepositoryStats struct {
	Repository   *model.VersionRepository `json:"repository"`
	TrackedFiles int                      `json:"trackedFiles"`
	Versions     int                      `json:"versions"`
	TotalSize    int64                    `json:"totalSize"`
	Snapshots    int                      `json:"snapshots"`
}

// InitRepository creates a repository for basePath. An empty repositoryPath
// selects <basePath>/.tv.
func (m *VersionManager) InitRepository(basePath, repositoryPath string, opts RepositoryOptions) (*model.VersionRepository, error) {
	base, err := m.resolveDir(basePath, "base path")
	if err != nil {
		return nil, err
	}
	if repositoryPath == "" {
		repositoryPath = filepath.Join(base.String(), DefaultRepositoryDir)
	}
	repoAbs, err := filepath.Abs(repositoryPath)
	if err != nil {
		return nil, fmt.Errorf("resolving repository path: %w", err)
	}
	if repoAbs == base.String() {
		return nil, preconditionf("repository path must differ from the base path: %s", repoAbs)
	}

	if opts.MaxVersions == 0 {
		opts.MaxVersions = DefaultMaxVersions
	}
	if opts.MaxVersions < 1 {
		return nil, preconditionf("maxVersions must be at least 1, got %d", opts.MaxVersions)
	}
	alg, err := ParseAlgorithm(opts.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	if err := m.fsmgr.ValidatePatterns(opts.ExcludePatterns); err != nil {
		return nil, NewError(Precondition, "invalid exclude pattern", err)
	}

	store, err := m.openStore(repoAbs)
	if err != nil {
		return nil, fmt.Errorf("opening repository store: %w", err)
	}
	exists, err := store.Exists()
	if err != nil {
		return nil, fmt.Errorf("checking for existing repository: %w", err)
	}
	if exists {
		return nil, preconditionf("repository already initialized at %s", repoAbs)
	}

	exclude := slices.Clone(opts.ExcludePatterns)
	if rel, ok := within(base.String(), repoAbs); ok && !slices.Contains(exclude, rel) {
		exclude = append(exclude, rel)
	}

	repo := &model.VersionRepository{
		ID:             m.idgen.New(),
		BasePath:       base.String(),
		RepositoryPath: repoAbs,
		MaxVersions:    opts.MaxVersions,
		Created:        m.clock.Now(),
		Config: model.RepositoryConfig{
			ExcludePatterns:    exclude,
			IncludeHidden:      opts.IncludeHidden,
			StoreMetadata:      opts.StoreMetadata,
			DuplicateSnapshots: opts.DuplicateSnapshots,
			HashAlgorithm:      string(alg),
		},
	}
	if err := store.Init(repo); err != nil {
		return nil, fmt.Errorf("initializing repository: %w", err)
	}

	m.logger.Info("repository initialized", "base", repo.BasePath, "repository", repoAbs, "max_versions", repo.MaxVersions)
	return repo, nil
}

// LoadRepository returns the persisted repository configuration.
func (m *VersionManager) LoadRepository(repositoryPath string) (*model.VersionRepository, error) {
	_, repo, err := m.openRepository(repositoryPath)
	return repo, err
}

// Stats recomputes repository totals from the stored records.
func (m *VersionManager) Stats(repositoryPath string) (*RepositoryStats, error) {
	store, repo, err := m.openRepository(repositoryPath)
	if err != nil {
		return nil, err
	}
	versions, err := store.ListVersions("")
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	snapshots, err := store.ListSnapshots()
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	stats := &RepositoryStats{Repository: repo, Versions: len(versions), Snapshots: len(snapshots)}
	files := make(map[string]bool)
	for _, v := range versions {
		files[v.FilePath] = true
		stats.TotalSize += v.Size
	}
	stats.TrackedFiles = len(files)
	return stats, nil
}

// CreateVersion commits the current content of filePath as a new version.
// filePath may be absolute or relative to the repository's base path.
//
// If the content matches the most recent version, that version is returned
// and created is false. Otherwise the new version is numbered after the most
// recent one and retention prunes the oldest versions beyond maxVersions.
func (m *VersionManager) CreateVersion(ctx context.Context, filePath, repositoryPath string, opts VersionOptions) (v *model.FileVersion, created bool, err error) {
	store, repo, err := m.openRepository(repositoryPath)
	if err != nil {
		return nil, false, err
	}
	absPath, rel, err := trackedPath(repo, filePath)
	if err != nil {
		return nil, false, err
	}
	p, err := m.resolveFile(absPath)
	if err != nil {
		return nil, false, err
	}

	unlock := m.locks.Lock(store.Path() + "\x00" + rel)
	defer unlock()

	versions, err := store.ListVersions(rel)
	if err != nil {
		return nil, false, fmt.Errorf("listing versions: %w", err)
	}
	hex, err := m.fsmgr.Hash(ctx, p, repo.Config.HashAlgorithm)
	if err != nil {
		return nil, false, fmt.Errorf("hashing file: %w", err)
	}

	next := 1
	if n := len(versions); n > 0 {
		last := versions[n-1]
		if last.ContentHash == hex {
			m.logger.Debug("content unchanged, returning latest version", "path", rel, "version", last.Version)
			return last, false, nil
		}
		next = last.Version + 1
	}

	v = &model.FileVersion{
		ID:          m.idgen.New(),
		FilePath:    rel,
		Version:     next,
		Timestamp:   m.clock.Now(),
		Size:        p.Info().Size(),
		ContentHash: hex,
		Algorithm:   repo.Config.HashAlgorithm,
		Comment:     opts.Comment,
		Author:      opts.Author,
		Tags:        model.NormalizeTags(opts.Tags),
		BlobName:    blobName(rel, next),
	}
	if repo.Config.StoreMetadata {
		v.Metadata = m.fileMetadata(p)
	}
	if opts.DryRun {
		return v, true, nil
	}

	n, err := m.writeBlob(ctx, store, p, v)
	if err != nil {
		return nil, false, err
	}
	v.Size = n
	if err := store.PutVersion(v); err != nil {
		_ = store.RemoveBlob(v.BlobName)
		return nil, false, fmt.Errorf("writing version record: %w", err)
	}

	pruned, prunedSize := m.prune(store, append(versions, v), repo.MaxVersions)
	if err := m.updateRepository(store, func(r *model.VersionRepository) {
		r.TotalVersions += 1 - pruned
		r.TotalSize += n - prunedSize
	}); err != nil {
		return v, true, err
	}

	m.logger.Info("version created", "path", rel, "version", v.Version, "size", v.Size, "pruned", pruned)
	return v, true, nil
}

// writeBlob copies the file into the versions area, checking the bytes
// written against the digest computed earlier.
func (m *VersionManager) writeBlob(ctx context.Context, store RepositoryStore, p *Path, v *model.FileVersion) (int64, error) {
	f, err := m.fsmgr.Open(p)
	if err != nil {
		return 0, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	vr, err := newVerifyingReader(ContextReader(ctx, f), v.Algorithm, v.ContentHash, v.FilePath)
	if err != nil {
		return 0, err
	}
	n, err := store.WriteBlob(v.BlobName, vr)
	if err != nil {
		_ = store.RemoveBlob(v.BlobName)
		return 0, fmt.Errorf("storing version blob: %w", err)
	}
	return n, nil
}

// prune deletes the oldest versions beyond maxVersions. versions must be
// ordered by ascending version number. Failures are logged and skipped.
func (m *VersionManager) prune(store RepositoryStore, versions []*model.FileVersion, maxVersions int) (int, int64) {
	excess := len(versions) - maxVersions
	if excess <= 0 {
		return 0, 0
	}
	var pruned int
	var size int64
	for _, old := range versions[:excess] {
		if err := store.DeleteVersion(old.ID); err != nil {
			m.logger.Warn("pruning version record failed", "path", old.FilePath, "version", old.Version, "error", err)
			continue
		}
		if err := store.RemoveBlob(old.BlobName); err != nil {
			m.logger.Warn("pruning version blob failed", "blob", old.BlobName, "error", err)
		}
		pruned++
		size += old.Size
		m.logger.Debug("version pruned", "path", old.FilePath, "version", old.Version)
	}
	return pruned, size
}

// GetHistory returns every stored version of filePath, newest first.
func (m *VersionManager) GetHistory(filePath, repositoryPath string) ([]*model.FileVersion, error) {
	store, repo, err := m.openRepository(repositoryPath)
	if err != nil {
		return nil, err
	}
	_, rel, err := trackedPath(repo, filePath)
	if err != nil {
		return nil, err
	}
	versions, err := store.ListVersions(rel)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	slices.Reverse(versions)
	return versions, nil
}

// GetVersion returns a version record by id.
func (m *VersionManager) GetVersion(repositoryPath, versionID string) (*model.FileVersion, error) {
	store, _, err := m.openRepository(repositoryPath)
	if err != nil {
		return nil, err
	}
	return m.loadVersion(store, versionID)
}

// DeleteVersion removes a version record and its blob. Deleting the only
// version of a file returns the file to untracked.
func (m *VersionManager) DeleteVersion(repositoryPath, versionID string) (*model.FileVersion, error) {
	store, _, err := m.openRepository(repositoryPath)
	if err != nil {
		return nil, err
	}
	v, err := m.loadVersion(store, versionID)
	if err != nil {
		return nil, err
	}

	unlock := m.locks.Lock(store.Path() + "\x00" + v.FilePath)
	defer unlock()

	if err := store.DeleteVersion(v.ID); err != nil {
		return nil, fmt.Errorf("deleting version record: %w", err)
	}
	if err := store.RemoveBlob(v.BlobName); err != nil {
		m.logger.Warn("removing version blob failed", "blob", v.BlobName, "error", err)
	}
	if err := m.updateRepository(store, func(r *model.VersionRepository) {
		r.TotalVersions--
		r.TotalSize -= v.Size
	}); err != nil {
		return v, err
	}

	m.logger.Info("version deleted", "path", v.FilePath, "version", v.Version)
	return v, nil
}

func (m *VersionManager) loadVersion(store RepositoryStore, versionID string) (*model.FileVersion, error) {
	v, err := store.GetVersion(versionID)
	if err != nil {
		return nil, fmt.Errorf("reading version record: %w", err)
	}
	if v == nil {
		return nil, notFoundf("version not found: %s", versionID)
	}
	return v, nil
}

// openRepository binds a store to repositoryPath and loads its configuration.
func (m *VersionManager) openRepository(repositoryPath string) (RepositoryStore, *model.VersionRepository, error) {
	abs, err := filepath.Abs(repositoryPath)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving repository path: %w", err)
	}
	store, err := m.openStore(abs)
	if err != nil {
		return nil, nil, fmt.Errorf("opening repository store: %w", err)
	}
	repo, err := store.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading repository config: %w", err)
	}
	if repo == nil {
		return nil, nil, notFoundf("no repository at %s", abs)
	}
	return store, repo, nil
}

// updateRepository applies fn to a freshly loaded configuration and saves it.
func (m *VersionManager) updateRepository(store RepositoryStore, fn func(*model.VersionRepository)) error {
	unlock := m.locks.Lock(store.Path())
	defer unlock()

	repo, err := store.LoadConfig()
	if err != nil {
		return fmt.Errorf("reloading repository config: %w", err)
	}
	if repo == nil {
		return notFoundf("no repository at %s", store.Path())
	}
	fn(repo)
	if repo.TotalVersions < 0 {
		repo.TotalVersions = 0
	}
	if repo.TotalSize < 0 {
		repo.TotalSize = 0
	}
	if err := store.SaveConfig(repo); err != nil {
		return fmt.Errorf("saving repository config: %w", err)
	}
	return nil
}

// fileMetadata collects the optional stat data kept with a version.
// Fields that cannot be read are left empty.
func (m *VersionManager) fileMetadata(p *Path) *model.FileMetadata {
	info := p.Info()
	md := &model.FileMetadata{
		ModifiedAt: info.ModTime(),
		Mode:       uint32(info.Mode().Perm()),
	}
	if st, err := m.fsmgr.ExtractStatData(info); err == nil {
		md.AccessedAt = st.Atime
		md.CreatedAt = st.Ctime
		if st.BirthTime != nil {
			md.CreatedAt = *st.BirthTime
		}
	} else {
		m.logger.Debug("stat data unavailable", "path", p.String(), "error", err)
	}
	if mime, err := m.fsmgr.DetectMIME(p); err == nil {
		md.MIMEType = mime
	} else {
		m.logger.Debug("mime detection failed", "path", p.String(), "error", err)
	}
	return md
}

func (m *VersionManager) resolveDir(raw, what string) (*Path, error) {
	p, err := m.fsmgr.Resolve(raw)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewError(NotFound, fmt.Sprintf("%s not found: %s", what, raw), err)
		}
		return nil, fmt.Errorf("resolving %s: %w", what, err)
	}
	if !p.IsDir() {
		return nil, preconditionf("%s is not a directory: %s", what, p.String())
	}
	return p, nil
}

func (m *VersionManager) resolveFile(absPath string) (*Path, error) {
	p, err := m.fsmgr.Resolve(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewError(NotFound, fmt.Sprintf("file not found: %s", absPath), err)
		}
		return nil, fmt.Errorf("resolving file: %w", err)
	}
	if p.IsDir() {
		return nil, preconditionf("path is a directory: %s", absPath)
	}
	return p, nil
}

// trackedPath maps filePath onto the repository's base path. It returns the
// absolute path and the slash-separated path relative to the base.
func trackedPath(repo *model.VersionRepository, filePath string) (string, string, error) {
	abs := filePath
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(repo.BasePath, abs)
	}
	abs = filepath.Clean(abs)

	rel, ok := within(repo.BasePath, abs)
	if !ok || rel == "." {
		return "", "", preconditionf("%s is not inside the tracked tree %s", filePath, repo.BasePath)
	}
	if _, inRepo := within(repo.RepositoryPath, abs); inRepo {
		return "", "", preconditionf("%s is inside the repository directory", filePath)
	}
	return abs, rel, nil
}

// within reports whether target is dir or lies below it, returning the
// slash-separated relative path.
func within(dir, target string) (string, bool) {
	rel, err := filepath.Rel(dir, target)
	if err != nil || !filepath.IsLocal(rel) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// blobEscaper flattens a relative path into one file name. Escaping % first
// keeps the mapping reversible, so distinct paths never share a name.
var blobEscaper = strings.NewReplacer("%", "%25", "/", "%2F")

// blobName names the stored copy of a version: the escaped relative path plus
// a .v<N> suffix. Blobs sit directly under versions/, so no blob can occupy a
// directory another blob needs.
func blobName(rel string, version int) string {
	return fmt.Sprintf("%s.v%d", blobEscaper.Replace(path.Clean(rel)), version)
}
