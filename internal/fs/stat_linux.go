//go:build linux

package fs

import (
	"fmt"
	"io/fs"
	"syscall"
	"time"

	"tv-go/internal/tv"
)

// ExtractStatData extracts Linux-specific stat data from a FileInfo.
func (m *OSFilesystemManager) ExtractStatData(info fs.FileInfo) (*tv.StatData, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, fmt.Errorf("cannot extract stat data: expected *syscall.Stat_t, got %T", info.Sys())
	}

	return &tv.StatData{
		UID:   int64(stat.Uid),
		GID:   int64(stat.Gid),
		Atime: time.Unix(stat.Atim.Sec, stat.Atim.Nsec),
		Ctime: time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec),
		// statx would be needed for birth time; Stat_t does not carry it.
		BirthTime: nil,
	}, nil
}
