package tv

import (
	"fmt"
	"time"

	"tv-go/internal/model"
)

// ChangeKind classifies the difference between two versions.
type ChangeKind string

const (
	Unchanged      ChangeKind = "unchanged"
	SizeChanged    ChangeKind = "size-changed"
	ContentChanged ChangeKind = "content-changed" // same size, different digest
)

// VersionComparison is a metadata-level comparison of two versions.
// No byte or line diff is produced.
type VersionComparison struct {
	From      *model.FileVersion `json:"from"`
	To        *model.FileVersion `json:"to"`
	Kind      ChangeKind         `json:"kind"`
	SizeDelta int64              `json:"sizeDelta"` // To.Size - From.Size
	TimeDelta time.Duration      `json:"timeDelta"` // To.Timestamp - From.Timestamp
	Summary   string             `json:"summary"`
}

// CompareVersions classifies the change from versionID1 to versionID2.
func (m *VersionManager) CompareVersions(repositoryPath, versionID1, versionID2 string) (*VersionComparison, error) {
	store, _, err := m.openRepository(repositoryPath)
	if err != nil {
		return nil, err
	}
	from, err := m.loadVersion(store, versionID1)
	if err != nil {
		return nil, err
	}
	to, err := m.loadVersion(store, versionID2)
	if err != nil {
		return nil, err
	}
	return compareVersions(from, to), nil
}

func compareVersions(from, to *model.FileVersion) *VersionComparison {
	c := &VersionComparison{
		From:      from,
		To:        to,
		SizeDelta: to.Size - from.Size,
		TimeDelta: to.Timestamp.Sub(from.Timestamp),
	}

	label := fmt.Sprintf("%s v%d vs v%d", from.FilePath, from.Version, to.Version)
	if from.FilePath != to.FilePath {
		label = fmt.Sprintf("%s v%d vs %s v%d", from.FilePath, from.Version, to.FilePath, to.Version)
	}

	switch {
	case from.ContentHash == to.ContentHash && from.Algorithm == to.Algorithm:
		c.Kind = Unchanged
		c.Summary = label + ": identical content"
	case c.SizeDelta != 0:
		c.Kind = SizeChanged
		c.Summary = fmt.Sprintf("%s: size changed by %+d bytes (%d -> %d)", label, c.SizeDelta, from.Size, to.Size)
	default:
		c.Kind = ContentChanged
		c.Summary = fmt.Sprintf("%s: content changed, size unchanged (%d bytes)", label, to.Size)
	}
	return c
}
