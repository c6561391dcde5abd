package audit

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/laconorg/deployer/pkg/lock"
)

// FileLog appends entries, one line each, to a file. The file is
// opened for each entry, so it can be rotated underneath us; several
// processes may append at once, since each line goes out in a single
// write under an exclusive lock.
type FileLog struct {
	Path string
}

var _ Writer = &FileLog{}

func (l *FileLog) Append(e Entry) error {
	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "opening audit log")
	}
	defer f.Close()

	if err := lock.Exclusive(f, true); err != nil {
		return errors.Wrap(err, "locking audit log")
	}
	defer lock.Unlock(f)

	line := []byte(e.String() + "\n")
	n, err := f.Write(line)
	if err == nil && n < len(line) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return errors.Wrapf(err, "appending to audit log %s", l.Path)
	}
	return nil
}

func (l *FileLog) String() string {
	return l.Path
}
