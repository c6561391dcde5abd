package state

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/laconorg/deployer/pkg/version"
)

// EnvFile keeps the current version in a file of KEY=value lines,
// the same file handed to `docker compose --env-file`. Everything
// other than the assignment to Key is left as found.
type EnvFile struct {
	Path string
	Key  string
}

var _ State = &EnvFile{}

func NewEnvFile(path, key string) *EnvFile {
	if key == "" {
		key = DefaultKey
	}
	return &EnvFile{Path: path, Key: key}
}

func (s *EnvFile) String() string {
	return "file " + s.Path + " (" + s.Key + ")"
}

// Current returns the value assigned to Key. A missing or empty file,
// or one without the assignment, is not an error; it means nothing has
// been deployed yet.
func (s *EnvFile) Current(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	content, err := ioutil.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "reading %s", s.Path)
	}
	value, _ := lookup(content, s.Key)
	return value, nil
}

// Record sets Key to the image tag for the short identifier given. The
// new content is staged next to the live file and renamed over it, so
// readers see either the old or the new record, never a partial one.
func (s *EnvFile) Record(ctx context.Context, short string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	content, err := ioutil.ReadFile(s.Path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "reading %s", s.Path)
	}
	updated := rewrite(content, s.Key, version.Tag(short))
	if err == nil && bytes.Equal(content, updated) {
		return nil
	}
	return writeAtomic(s.Path, updated)
}

// lookup finds the first uncommented assignment to key.
func lookup(content []byte, key string) (string, bool) {
	for _, line := range strings.Split(string(content), "\n") {
		if v, ok := assignment(line, key); ok {
			return v, true
		}
	}
	return "", false
}

// assignment reports whether line assigns to key, and the value
// assigned if so.
func assignment(line, key string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	trimmed = strings.TrimPrefix(trimmed, "export ")
	eq := strings.Index(trimmed, "=")
	if eq < 0 || strings.TrimSpace(trimmed[:eq]) != key {
		return "", false
	}
	value := strings.TrimSpace(trimmed[eq+1:])
	if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
		value = value[1 : len(value)-1]
	}
	return value, true
}

// rewrite returns content with the first assignment to key replaced by
// key=value and any further assignments to key removed. If there was
// no assignment, one is appended.
func rewrite(content []byte, key, value string) []byte {
	line := key + "=" + value
	if len(content) == 0 {
		return []byte(line + "\n")
	}

	text := string(content)
	trailingNewline := strings.HasSuffix(text, "\n")
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	out := make([]string, 0, len(lines)+1)
	found := false
	for _, l := range lines {
		if _, ok := assignment(l, key); ok {
			if !found {
				out = append(out, line)
				found = true
			}
			continue
		}
		out = append(out, l)
	}
	if !found {
		out = append(out, line)
		trailingNewline = true
	}

	result := strings.Join(out, "\n")
	if trailingNewline {
		result += "\n"
	}
	return []byte(result)
}

// writeAtomic replaces path with data. The permissions and ownership
// of the file being replaced are carried over; they are applied to the
// staged file before the rename and again afterwards, in case the
// rename itself disturbed them.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	meta, err := readMetadata(path)
	if err != nil {
		return err
	}

	tmp, err := ioutil.TempFile(dir, "."+filepath.Base(path)+".")
	if err != nil {
		return errors.Wrap(err, "staging version record")
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing staged version record")
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "syncing staged version record")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "closing staged version record")
	}

	if err = meta.applyTo(tmp.Name()); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "moving version record into place at %s", path)
	}
	if err = meta.applyTo(path); err != nil {
		return err
	}
	syncDir(dir)
	return nil
}

// metadata is the part of a file's inode we promise to keep across a
// rewrite.
type metadata struct {
	mode     os.FileMode
	uid, gid uint32
	set      bool // false for files that didn't exist
}

var newFileMetadata = &metadata{mode: 0644}

// readMetadata captures the mode and owner of the file at path. If
// there is no such file, new files get mode 0644 and whoever we are as
// owner.
func readMetadata(path string) (*metadata, error) {
	var st unix.Stat_t
	err := unix.Stat(path, &st)
	if err == unix.ENOENT {
		return newFileMetadata, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	return &metadata{
		mode: os.FileMode(st.Mode & 0777),
		uid:  st.Uid,
		gid:  st.Gid,
		set:  true,
	}, nil
}

// applyTo sets the mode, and the owner if it differs, so unprivileged
// users can still rewrite their own files.
func (m *metadata) applyTo(path string) error {
	if err := os.Chmod(path, m.mode); err != nil {
		return errors.Wrapf(err, "setting mode of %s", path)
	}
	if !m.set {
		return nil
	}
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return errors.Wrapf(err, "stat %s", path)
	}
	if st.Uid == m.uid && st.Gid == m.gid {
		return nil
	}
	if err := unix.Chown(path, int(m.uid), int(m.gid)); err != nil {
		return errors.Wrapf(err, "setting owner of %s", path)
	}
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
