//go:build !linux

package local

import (
	"io/fs"
	"syscall"

	"github.com/marmos91/godfs/pkg/backend"
)

func fillSys(*backend.FileInfo, fs.FileInfo) {}

func statFs(string) (backend.FsStats, error) {
	return backend.FsStats{}, syscall.ENOTSUP
}
