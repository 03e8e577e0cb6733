//go:build windows

package state

import "golang.org/x/sys/windows"

// flockLock blocks until an exclusive LockFileEx lock on fd is held,
// matching the Unix flock behavior.
func flockLock(fd uintptr) error {
	var ol windows.Overlapped
	return windows.LockFileEx(windows.Handle(fd), windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, &ol)
}

// flockUnlock releases the lock taken by flockLock.
func flockUnlock(fd uintptr) error {
	var ol windows.Overlapped
	return windows.UnlockFileEx(windows.Handle(fd), 0, 1, 0, &ol)
}
