package recordfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// File is a Table stored in a single local file. Saves are atomic: the new
// document is written beside the target, flushed and renamed over it, so a
// crash leaves either the old or the new table.
type File struct {
	path string
}

// NewFile returns a table stored at path. Nothing is touched until Load or Save.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the local file backing the table.
func (f *File) Path() string { return f.path }

func (f *File) Name() string { return filepath.Base(f.path) }

// Load reads the table, creating and persisting an empty one when the file
// does not exist.
func (f *File) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		empty := Snapshot{}
		if err := f.Save(ctx, empty); err != nil {
			return Snapshot{}, fmt.Errorf("initialize %s: %w", f.path, err)
		}
		return empty, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %s: %w", f.path, err)
	}
	snap, err := Decode(b)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%s: %w", f.path, err)
	}
	return snap, nil
}

// Save atomically replaces the file with the encoded snapshot. The temporary
// file is removed on every failure path.
func (f *File) Save(ctx context.Context, s Snapshot) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := Encode(s)
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err = syncFile(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}

// isolated so tests can force the late failure paths.
var (
	syncFile = func(f *os.File) error { return f.Sync() }
	rename   = os.Rename
)
