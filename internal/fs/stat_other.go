//go:build !linux && !darwin

package fs

import (
	"fmt"
	"io/fs"

	"tv-go/internal/tv"
)

// ExtractStatData is not supported on this platform.
func (m *OSFilesystemManager) ExtractStatData(info fs.FileInfo) (*tv.StatData, error) {
	return nil, fmt.Errorf("stat data not supported on this platform")
}
