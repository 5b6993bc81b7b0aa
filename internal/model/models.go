package model

import (
	"sort"
	"time"
)

// FileMetadata is the optional stat data retained alongside a version when the
// repository is configured with StoreMetadata.
type FileMetadata struct {
	CreatedAt  time.Time `json:"createdAt,omitempty"` // birth time if known, otherwise ctime
	ModifiedAt time.Time `json:"modifiedAt"`
	AccessedAt time.Time `json:"accessedAt,omitempty"`
	Mode       uint32    `json:"mode"`
	MIMEType   string    `json:"mimeType,omitempty"`
}

// FileVersion is one committed revision of a single file.
// Records are append-only: once written they are only ever deleted, never updated.
type FileVersion struct {
	ID          string        `json:"id"`       // UUID
	FilePath    string        `json:"filePath"` // slash-separated, relative to the repository base path
	Version     int           `json:"version"`  // 1-based, unique per FilePath
	Timestamp   time.Time     `json:"timestamp"`
	Size        int64         `json:"size"`
	ContentHash string        `json:"contentHash"` // hex digest
	Algorithm   string        `json:"algorithm,omitempty"`
	Comment     string        `json:"comment,omitempty"`
	Author      string        `json:"author,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	Metadata    *FileMetadata `json:"metadata,omitempty"`
	BlobName    string        `json:"blobName,omitempty"` // relative to versions/; empty for snapshot entries
}

// RepositoryConfig holds the tracking policy of a repository.
type RepositoryConfig struct {
	ExcludePatterns    []string `json:"excludePatterns"`
	IncludeHidden      bool     `json:"includeHidden"`
	StoreMetadata      bool     `json:"storeMetadata"`
	DuplicateSnapshots bool     `json:"duplicateSnapshots"`
	HashAlgorithm      string   `json:"hashAlgorithm"`
}

// VersionRepository is the durable root of a tracked tree's history.
// It is persisted as config.json and reloaded on every operation.
type VersionRepository struct {
	ID             string           `json:"id"` // UUID, used as the archive namespace
	BasePath       string           `json:"basePath"`
	RepositoryPath string           `json:"repositoryPath"`
	MaxVersions    int              `json:"maxVersions"`
	TotalVersions  int              `json:"totalVersions"`
	TotalSize      int64            `json:"totalSize"`
	Created        time.Time        `json:"created"`
	LastSnapshot   *time.Time       `json:"lastSnapshot,omitempty"`
	Config         RepositoryConfig `json:"config"`
}

// VersionSnapshot is an immutable point-in-time capture of a whole tree.
// Files carry Version 1; they do not take part in per-file version chains.
type VersionSnapshot struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	BasePath    string        `json:"basePath"`
	Files       []FileVersion `json:"files"`
	TotalSize   int64         `json:"totalSize"`
	Author      string        `json:"author,omitempty"`
	HasPayload  bool          `json:"hasPayload"` // file bytes mirrored under snapshots/<id>/
}

// SnapshotManifest is the document uploaded to a vault when a snapshot is exported.
type SnapshotManifest struct {
	RepositoryID string          `json:"repositoryId"`
	Snapshot     VersionSnapshot `json:"snapshot"`
	Encrypted    bool            `json:"encrypted"`
	ExportedAt   time.Time       `json:"exportedAt"`
}

// NormalizeTags returns tags as a sorted set with empty entries dropped.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
