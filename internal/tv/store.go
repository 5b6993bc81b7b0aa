package tv

import (
	"io"

	"tv-go/internal/model"
)

// RepositoryStore persists a single version repository: its configuration,
// version records, version blobs, snapshots and snapshot payloads.
// Implementations write every file atomically so a crash never leaves a
// half-written record behind. Lookups return (nil, nil) when absent.
type RepositoryStore interface {
	// Path returns the absolute repository directory.
	Path() string

	// Exists reports whether the repository has been initialized.
	Exists() (bool, error)

	// Init creates the repository layout and writes the initial configuration.
	Init(repo *model.VersionRepository) error

	// LoadConfig reads config.json. Returns (nil, nil) when missing.
	LoadConfig() (*model.VersionRepository, error)

	// SaveConfig replaces config.json.
	SaveConfig(repo *model.VersionRepository) error

	// ListVersions returns every version record of filePath, ordered by
	// ascending version number. filePath is relative and slash-separated.
	// An empty filePath lists the records of every file, ordered by path
	// then version.
	ListVersions(filePath string) ([]*model.FileVersion, error)

	// GetVersion returns the version record with the given id.
	GetVersion(id string) (*model.FileVersion, error)

	// PutVersion writes a version record.
	PutVersion(v *model.FileVersion) error

	// DeleteVersion removes a version record. Its blob is left alone.
	DeleteVersion(id string) error

	// WriteBlob stores the bytes read from r under name.
	WriteBlob(name string, r io.Reader) (int64, error)

	// OpenBlob opens a stored blob for reading.
	OpenBlob(name string) (io.ReadCloser, error)

	// BlobExists reports whether a blob is stored under name.
	BlobExists(name string) (bool, error)

	// RemoveBlob deletes a blob. Removing a missing blob is not an error.
	RemoveBlob(name string) error

	// PutSnapshot writes a snapshot record.
	PutSnapshot(s *model.VersionSnapshot) error

	// GetSnapshot returns a snapshot record by id.
	GetSnapshot(id string) (*model.VersionSnapshot, error)

	// ListSnapshots returns every snapshot record in no particular order.
	ListSnapshots() ([]*model.VersionSnapshot, error)

	// WriteSnapshotFile stores one file of a snapshot payload.
	WriteSnapshotFile(snapshotID, filePath string, r io.Reader) (int64, error)

	// OpenSnapshotFile opens one file of a snapshot payload.
	OpenSnapshotFile(snapshotID, filePath string) (io.ReadCloser, error)
}

// StoreOpener binds a RepositoryStore to a repository directory.
type StoreOpener func(repositoryPath string) (RepositoryStore, error)
