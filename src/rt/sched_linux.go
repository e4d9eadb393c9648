//go:build linux

package rt

import (
	"runtime"

	"golang.org/x/sys/unix"
)

func lockThread() {
	runtime.LockOSThread()
}

// Apply switches the calling thread to SCHED_RR at priority.
// The caller should hold runtime.LockOSThread.
func Apply(priority int) error {
	attr := unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_RR,
		Priority: uint32(priority),
	}
	return unix.SchedSetAttr(0, &attr, 0)
}
