package replica

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"chemledger/internal/blob"
)

// Mirror is a local directory standing in for the remote store. It offers the
// same whole-object status, read and overwrite operations. Names are reduced
// to their base name, so every replicated file lands directly in the
// directory.
type Mirror struct {
	store *blob.FilesystemStore
}

// NewMirror creates dir when missing and returns a mirror rooted there.
// Construction failure is meant to be fatal at startup.
func NewMirror(dir string) (*Mirror, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("fallback directory required")
	}
	st, err := blob.NewFilesystem(dir)
	if err != nil {
		return nil, fmt.Errorf("create fallback directory %s: %w", dir, err)
	}
	if err := st.Probe(context.Background()); err != nil {
		return nil, fmt.Errorf("fallback directory %s: %w", dir, err)
	}
	return &Mirror{store: st}, nil
}

// Dir returns the mirror directory.
func (m *Mirror) Dir() string { return m.store.Root() }

// Key maps a destination path to the mirror key: its base name.
func (m *Mirror) Key(name string) string {
	return path.Base(filepath.ToSlash(name))
}

// Path returns the local file a name is mirrored to.
func (m *Mirror) Path(name string) string {
	return filepath.Join(m.store.Root(), m.Key(name))
}

// Exists reports whether name is present in the mirror.
func (m *Mirror) Exists(ctx context.Context, name string) (bool, error) {
	return blob.Exists(ctx, m.store, m.Key(name))
}

// ReadAll returns the mirrored content of name. A missing file is an
// ErrFallbackRead like any other failure; callers decide whether that means
// "no content".
func (m *Mirror) ReadAll(ctx context.Context, name string) ([]byte, error) {
	b, err := blob.ReadAll(ctx, m.store, m.Key(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFallbackRead, m.Key(name), err)
	}
	return b, nil
}

// WriteAll replaces the mirrored content of name.
func (m *Mirror) WriteAll(ctx context.Context, name string, data []byte, contentType string) error {
	if _, err := blob.WriteAll(ctx, m.store, m.Key(name), data, contentType); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFallbackWrite, m.Key(name), err)
	}
	return nil
}

// List returns every file in the mirror, ordered by name.
func (m *Mirror) List(ctx context.Context) ([]blob.Info, error) {
	infos, err := m.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrFallbackRead, err)
	}
	return infos, nil
}

// IsMissing reports whether a mirror read failed only because the file does
// not exist.
func IsMissing(err error) bool {
	return errors.Is(err, blob.ErrNotFound)
}
