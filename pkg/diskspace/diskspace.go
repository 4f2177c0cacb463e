// Package diskspace reports capacity and free space of the volume holding a
// directory.
package diskspace

import "errors"

// ErrUnsupported is returned on platforms without a volume statistics call.
var ErrUnsupported = errors.New("disk space query not supported on this platform")

// Usage describes a volume in bytes.
type Usage struct {
	Capacity int64
	Free     int64 // available to unprivileged users
}

// Used returns Capacity minus Free.
func (u Usage) Used() int64 {
	return u.Capacity - u.Free
}

// Of returns the usage of the volume holding path.
func Of(path string) (Usage, error) {
	return statVolume(path)
}
