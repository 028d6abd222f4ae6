//go:build linux

package local

import (
	"io/fs"
	"os/user"
	"strconv"
	"syscall"
	"time"

	"github.com/marmos91/godfs/pkg/backend"
	"golang.org/x/sys/unix"
)

// fillSys copies access time, ownership and block size from the raw stat.
func fillSys(out *backend.FileInfo, fi fs.FileInfo) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}

	sec, nsec := st.Atim.Unix()
	out.AccessTime = time.Unix(sec, nsec)
	out.BlockSize = int64(st.Blksize)
	out.Owner = userName(st.Uid)
	out.Group = groupName(st.Gid)
}

func userName(uid uint32) string {
	id := strconv.FormatUint(uint64(uid), 10)
	if u, err := user.LookupId(id); err == nil {
		return u.Username
	}
	return id
}

func groupName(gid uint32) string {
	id := strconv.FormatUint(uint64(gid), 10)
	if g, err := user.LookupGroupId(id); err == nil {
		return g.Name
	}
	return id
}

func statFs(path string) (backend.FsStats, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return backend.FsStats{}, err
	}

	bsize := int64(st.Bsize)
	capacity := int64(st.Blocks) * bsize
	free := int64(st.Bfree) * bsize
	return backend.FsStats{
		Capacity:  capacity,
		Used:      capacity - free,
		Remaining: int64(st.Bavail) * bsize,
	}, nil
}
