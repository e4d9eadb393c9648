//go:build !linux

package rt

import "runtime"

func lockThread() {
	runtime.LockOSThread()
}

// Apply ...
func Apply(priority int) error {
	return ErrUnsupported
}
