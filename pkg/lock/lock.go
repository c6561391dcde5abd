// Package lock provides advisory, whole-file locks (flock(2)) used to
// serialise deployments against one target, and appends to a shared
// log, across processes.
//
// Locks are released when the holding file is closed or the process
// exits, so a crashed deployment never leaves a target locked.
package lock

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Suffix is appended to a path to name its lock file.
const Suffix = ".lock"

const retryInterval = 100 * time.Millisecond

var ErrLocked = errors.New("locked by another process")

// FileLock is a held lock. The zero value is not useful; obtain one
// with Acquire or TryAcquire.
type FileLock struct {
	file *os.File
}

// PathFor returns the lock file path used to guard target.
func PathFor(target string) string {
	return target + Suffix
}

// TryAcquire takes the lock at path without waiting, returning
// ErrLocked if someone else has it.
func TryAcquire(path string) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "opening lock file")
	}
	if err := Exclusive(f, false); err != nil {
		f.Close()
		return nil, err
	}
	return &FileLock{file: f}, nil
}

// Acquire takes the lock at path, trying until it succeeds or the
// context is done.
func Acquire(ctx context.Context, path string) (*FileLock, error) {
	for {
		l, err := TryAcquire(path)
		if err != ErrLocked {
			return l, err
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ErrLocked, "waiting for %s: %s", path, ctx.Err())
		case <-time.After(retryInterval):
		}
	}
}

// Release gives up the lock. It is safe to call more than once.
func (l *FileLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	if err := Unlock(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Exclusive places an exclusive lock on an open file. If wait is
// false and the lock is held elsewhere, it returns ErrLocked.
func Exclusive(f *os.File, wait bool) error {
	how := unix.LOCK_EX
	if !wait {
		how |= unix.LOCK_NB
	}
	for {
		err := unix.Flock(int(f.Fd()), how)
		switch err {
		case nil:
			return nil
		case unix.EINTR:
			continue
		case unix.EWOULDBLOCK:
			return ErrLocked
		default:
			return errors.Wrap(err, "flock")
		}
	}
}

// Unlock releases a lock placed with Exclusive.
func Unlock(f *os.File) error {
	return errors.Wrap(unix.Flock(int(f.Fd()), unix.LOCK_UN), "releasing flock")
}
