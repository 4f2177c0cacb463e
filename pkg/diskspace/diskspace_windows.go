//go:build windows

package diskspace

import (
	"fmt"

	"golang.org/x/sys/windows"
)

func statVolume(path string) (Usage, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return Usage{}, fmt.Errorf("encode path %s: %w", path, err)
	}

	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return Usage{}, fmt.Errorf("GetDiskFreeSpaceEx %s: %w", path, err)
	}

	return Usage{Capacity: int64(total), Free: int64(free)}, nil
}
