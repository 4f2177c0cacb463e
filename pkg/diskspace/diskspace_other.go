//go:build !linux && !darwin && !freebsd && !windows

package diskspace

func statVolume(string) (Usage, error) {
	return Usage{}, ErrUnsupported
}
