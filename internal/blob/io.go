package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// Exists reports whether key is present. A missing key is (false, nil); any
// other failure (connectivity, credentials) is returned as an error.
func Exists(ctx context.Context, store Store, key string) (bool, error) {
	_, err := store.Head(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ReadAll returns the whole content stored at key.
func ReadAll(ctx context.Context, store Store, key string) ([]byte, error) {
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return b, nil
}

// WriteAll replaces whatever is stored at key with data.
func WriteAll(ctx context.Context, store Store, key string, data []byte, contentType string) (Info, error) {
	return store.Put(ctx, key, bytes.NewReader(data), PutOptions{ContentType: contentType})
}

// Probe runs the store's connectivity probe when it has one. Stores without a
// probe are assumed reachable.
func Probe(ctx context.Context, store Store) error {
	if p, ok := store.(Prober); ok {
		return p.Probe(ctx)
	}
	return nil
}

// MakeDir creates dir, with its parents, on stores that have directories.
// Object stores without directories succeed without doing anything.
func MakeDir(ctx context.Context, store Store, dir string) error {
	if d, ok := store.(DirMaker); ok {
		return d.MakeDir(ctx, dir)
	}
	return nil
}
