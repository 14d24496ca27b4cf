//go:build !windows

package adapters

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func lockFile(file *os.File) error {
	err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return errLockBusy
	}
	return err
}

func unlockFile(file *os.File) error {
	return unix.Flock(int(file.Fd()), unix.LOCK_UN)
}

// closeLockFile unlinks the path while the lock is still held so a waiter
// that wins the lock afterwards sees a different file and retries.
func closeLockFile(file *os.File, path string) error {
	removeErr := os.Remove(path)
	if os.IsNotExist(removeErr) {
		removeErr = nil
	}
	unlockErr := unlockFile(file)
	closeErr := file.Close()
	return errors.Join(removeErr, unlockErr, closeErr)
}
