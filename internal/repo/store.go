// Package repo stores a version repository on disk:
//
//	<repository>/
//	  config.json              (the VersionRepository record)
//	  versions/<name>          (version blobs, one flat file per version)
//	  metadata/<id>.json       (one FileVersion record per version)
//	  snapshots/<id>.json      (one VersionSnapshot record per snapshot)
//	  snapshots/<id>/<rel>     (optional snapshot payload)
//
// Every file is written with an atomic temp-file + rename, so readers never
// see a partial record.
package repo

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tv-go/internal/model"
	"tv-go/internal/tv"
)

const (
	configFile   = "config.json"
	versionsDir  = "versions"
	metadataDir  = "metadata"
	snapshotsDir = "snapshots"
)

// FileStore is the filesystem implementation of tv.RepositoryStore.
type FileStore struct {
	root string
}

// NewFileStore binds a store to a repository directory. Nothing is created
// until Init is called.
func NewFileStore(root string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving repository path: %w", err)
	}
	return &FileStore{root: abs}, nil
}

// Open is a tv.StoreOpener for FileStore.
func Open(repositoryPath string) (tv.RepositoryStore, error) {
	return NewFileStore(repositoryPath)
}

// Path returns the absolute repository directory.
func (s *FileStore) Path() string {
	return s.root
}

// Exists reports whether config.json is present.
func (s *FileStore) Exists() (bool, error) {
	_, err := os.Stat(filepath.Join(s.root, configFile))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking repository config: %w", err)
}

// Init creates the directory layout and writes config.json.
func (s *FileStore) Init(repo *model.VersionRepository) error {
	for _, dir := range []string{versionsDir, metadataDir, snapshotsDir} {
		if err := os.MkdirAll(filepath.Join(s.root, dir), 0o755); err != nil {
			return fmt.Errorf("creating %s directory: %w", dir, err)
		}
	}
	return s.SaveConfig(repo)
}

// LoadConfig reads config.json. Returns (nil, nil) when missing.
func (s *FileStore) LoadConfig() (*model.VersionRepository, error) {
	var repo model.VersionRepository
	found, err := readJSON(filepath.Join(s.root, configFile), &repo)
	if err != nil || !found {
		return nil, err
	}
	return &repo, nil
}

// SaveConfig replaces config.json.
func (s *FileStore) SaveConfig(repo *model.VersionRepository) error {
	return writeJSON(filepath.Join(s.root, configFile), repo)
}

// ListVersions scans metadata/ for the records of filePath, or of every file
// when filePath is empty.
func (s *FileStore) ListVersions(filePath string) ([]*model.FileVersion, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, metadataDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading metadata directory: %w", err)
	}

	var versions []*model.FileVersion
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		var v model.FileVersion
		found, err := readJSON(filepath.Join(s.root, metadataDir, e.Name()), &v)
		if err != nil {
			return nil, err
		}
		if !found || (filePath != "" && v.FilePath != filePath) {
			continue
		}
		versions = append(versions, &v)
	}

	sort.Slice(versions, func(i, j int) bool {
		if versions[i].FilePath != versions[j].FilePath {
			return versions[i].FilePath < versions[j].FilePath
		}
		return versions[i].Version < versions[j].Version
	})
	return versions, nil
}

// GetVersion reads metadata/<id>.json. Returns (nil, nil) when missing.
func (s *FileStore) GetVersion(id string) (*model.FileVersion, error) {
	p, err := s.recordPath(metadataDir, id)
	if err != nil {
		return nil, err
	}
	var v model.FileVersion
	found, err := readJSON(p, &v)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

// PutVersion writes metadata/<id>.json.
func (s *FileStore) PutVersion(v *model.FileVersion) error {
	p, err := s.recordPath(metadataDir, v.ID)
	if err != nil {
		return err
	}
	return writeJSON(p, v)
}

// DeleteVersion removes metadata/<id>.json.
func (s *FileStore) DeleteVersion(id string) error {
	p, err := s.recordPath(metadataDir, id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing version record: %w", err)
	}
	return nil
}

// WriteBlob stores r under versions/<name>.
func (s *FileStore) WriteBlob(name string, r io.Reader) (int64, error) {
	p, err := s.nestedPath(versionsDir, name)
	if err != nil {
		return 0, err
	}
	return writeFile(p, r)
}

// OpenBlob opens versions/<name>.
func (s *FileStore) OpenBlob(name string) (io.ReadCloser, error) {
	p, err := s.nestedPath(versionsDir, name)
	if err != nil {
		return nil, err
	}
	return openFile(p, "version blob")
}

// BlobExists reports whether versions/<name> exists.
func (s *FileStore) BlobExists(name string) (bool, error) {
	p, err := s.nestedPath(versionsDir, name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat version blob: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// RemoveBlob deletes versions/<name>. A missing blob is not an error.
func (s *FileStore) RemoveBlob(name string) error {
	p, err := s.nestedPath(versionsDir, name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing version blob: %w", err)
	}
	return nil
}

// PutSnapshot writes snapshots/<id>.json.
func (s *FileStore) PutSnapshot(snap *model.VersionSnapshot) error {
	p, err := s.recordPath(snapshotsDir, snap.ID)
	if err != nil {
		return err
	}
	return writeJSON(p, snap)
}

// GetSnapshot reads snapshots/<id>.json. Returns (nil, nil) when missing.
func (s *FileStore) GetSnapshot(id string) (*model.VersionSnapshot, error) {
	p, err := s.recordPath(snapshotsDir, id)
	if err != nil {
		return nil, err
	}
	var snap model.VersionSnapshot
	found, err := readJSON(p, &snap)
	if err != nil || !found {
		return nil, err
	}
	return &snap, nil
}

// ListSnapshots reads every snapshots/*.json record.
func (s *FileStore) ListSnapshots() ([]*model.VersionSnapshot, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, snapshotsDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshots directory: %w", err)
	}

	var snaps []*model.VersionSnapshot
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		var snap model.VersionSnapshot
		found, err := readJSON(filepath.Join(s.root, snapshotsDir, e.Name()), &snap)
		if err != nil {
			return nil, err
		}
		if found {
			snaps = append(snaps, &snap)
		}
	}
	return snaps, nil
}

// WriteSnapshotFile stores one payload file under snapshots/<id>/<filePath>.
func (s *FileStore) WriteSnapshotFile(snapshotID, filePath string, r io.Reader) (int64, error) {
	p, err := s.payloadPath(snapshotID, filePath)
	if err != nil {
		return 0, err
	}
	return writeFile(p, r)
}

// OpenSnapshotFile opens snapshots/<id>/<filePath>.
func (s *FileStore) OpenSnapshotFile(snapshotID, filePath string) (io.ReadCloser, error) {
	p, err := s.payloadPath(snapshotID, filePath)
	if err != nil {
		return nil, err
	}
	return openFile(p, "snapshot file")
}

// recordPath returns <dir>/<id>.json, rejecting ids that would escape dir.
func (s *FileStore) recordPath(dir, id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid record id %q", id)
	}
	return filepath.Join(s.root, dir, id+".json"), nil
}

// nestedPath maps a slash-separated relative name below dir.
func (s *FileStore) nestedPath(dir, name string) (string, error) {
	local := filepath.FromSlash(name)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("invalid relative path %q", name)
	}
	return filepath.Join(s.root, dir, local), nil
}

func (s *FileStore) payloadPath(snapshotID, filePath string) (string, error) {
	if _, err := s.recordPath(snapshotsDir, snapshotID); err != nil {
		return "", err
	}
	return s.nestedPath(filepath.Join(snapshotsDir, snapshotID), filePath)
}

// Compile-time check that FileStore implements tv.RepositoryStore interface
var _ tv.RepositoryStore = (*FileStore)(nil)
