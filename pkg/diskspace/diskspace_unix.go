//go:build linux || darwin || freebsd

package diskspace

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func statVolume(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, fmt.Errorf("statfs %s: %w", path, err)
	}

	bsize := int64(st.Bsize)
	return Usage{
		Capacity: int64(st.Blocks) * bsize,
		Free:     int64(st.Bavail) * bsize,
	}, nil
}
