//go:build darwin

package fs

import (
	"fmt"
	"io/fs"
	"syscall"
	"time"

	"tv-go/internal/tv"
)

// ExtractStatData extracts Darwin-specific stat data from a FileInfo.
func (m *OSFilesystemManager) ExtractStatData(info fs.FileInfo) (*tv.StatData, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, fmt.Errorf("cannot extract stat data: expected *syscall.Stat_t, got %T", info.Sys())
	}

	birth := time.Unix(stat.Birthtimespec.Sec, stat.Birthtimespec.Nsec)
	return &tv.StatData{
		UID:       int64(stat.Uid),
		GID:       int64(stat.Gid),
		Atime:     time.Unix(stat.Atimespec.Sec, stat.Atimespec.Nsec),
		Ctime:     time.Unix(stat.Ctimespec.Sec, stat.Ctimespec.Nsec),
		BirthTime: &birth,
	}, nil
}
