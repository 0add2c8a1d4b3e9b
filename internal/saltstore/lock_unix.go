//go:build unix

package saltstore

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockPath takes an exclusive flock on path, creating it if needed. The
// lock file is left in place; removing it would let a waiter lock a stale
// inode.
func lockPath(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}
