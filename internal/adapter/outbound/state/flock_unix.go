//go:build !windows

package state

import "syscall"

// flockLock blocks until an exclusive flock on fd is held, so two villagehub
// processes never interleave writes to the same session file.
func flockLock(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_EX)
}

// flockUnlock releases the flock taken by flockLock.
func flockUnlock(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_UN)
}
