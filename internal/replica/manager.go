// Package replica keeps copies of local files on a remote store, falling back
// to a local mirror directory whenever the remote store is absent or a remote
// operation fails.
package replica

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"chemledger/internal/blob"
)

// ClientFactory builds a remote store handle. It is invoked lazily, once per
// attempt unless reprobing is disabled.
type ClientFactory func(ctx context.Context) (blob.Store, error)

// Option configures a Manager.
type Option func(*Manager)

// WithClientFactory enables the remote store. Without it every operation goes
// straight to the mirror.
func WithClientFactory(f ClientFactory) Option {
	return func(m *Manager) { m.factory = f }
}

// WithRemoteDir sets the remote directory names are resolved under.
func WithRemoteDir(dir string) Option {
	return func(m *Manager) { m.remoteDir = dir }
}

// WithLogger sets the logger used for demotion warnings.
func WithLogger(l Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithReprobe controls whether the factory and liveness probe run on every
// attempt (true, the default) or only until the first healthy client, which
// is then reused.
func WithReprobe(enabled bool) Option {
	return func(m *Manager) { m.reprobe = enabled }
}

// Manager decides, per persistence event, whether data goes to the remote
// store or the fallback mirror. Remote failures are logged and demoted;
// only mirror failures reach the caller.
type Manager struct {
	mirror    *Mirror
	factory   ClientFactory
	remoteDir string
	logger    Logger
	reprobe   bool

	mu       sync.Mutex
	cached   blob.Store
	dirReady bool
}

// NewManager returns a manager writing to mirror when the remote store is
// unavailable.
func NewManager(mirror *Mirror, opts ...Option) *Manager {
	m := &Manager{mirror: mirror, logger: noopLogger{}, reprobe: true}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mirror returns the fallback mirror.
func (m *Manager) Mirror() *Mirror { return m.mirror }

// RemoteEnabled reports whether a client factory is configured.
func (m *Manager) RemoteEnabled() bool { return m.factory != nil }

// RemoteKey maps a name to its key on the remote store.
func (m *Manager) RemoteKey(name string) string {
	return strings.TrimPrefix(path.Join(m.remoteDir, path.Base(name)), "/")
}

type writeStrategy struct {
	target Target
	write  func(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

func (m *Manager) strategies() []writeStrategy {
	return []writeStrategy{
		{target: TargetRemote, write: m.writeRemote},
		{target: TargetFallback, write: m.writeFallback},
	}
}

// Write replaces name with data on the first location that accepts it,
// trying the remote store then the mirror. The error is non-nil only when the
// mirror write failed too; it wraps ErrFallbackWrite.
func (m *Manager) Write(ctx context.Context, name string, data []byte) (Outcome, error) {
	return m.write(ctx, name, data, "")
}

// WriteWithType is Write with an explicit content type for the stored object.
func (m *Manager) WriteWithType(ctx context.Context, name string, data []byte, contentType string) (Outcome, error) {
	return m.write(ctx, name, data, contentType)
}

func (m *Manager) write(ctx context.Context, name string, data []byte, contentType string) (Outcome, error) {
	var last error
	for _, s := range m.strategies() {
		loc, err := s.write(ctx, name, data, contentType)
		if err == nil {
			return Outcome{Target: s.target, Location: loc, Err: last}, nil
		}
		last = err
		if s.target == TargetRemote {
			if m.factory != nil {
				m.logger.Warn("remote write failed; using fallback", "name", name, "error", err)
			}
			continue
		}
		m.logger.Error("fallback write failed", "name", name, "error", err)
	}
	return Outcome{Target: TargetNone, Err: last}, last
}

// SyncFile replicates the local file at localPath under name.
func (m *Manager) SyncFile(ctx context.Context, localPath, name string) (Outcome, error) {
	data, err := readLocal(localPath)
	if err != nil {
		return Outcome{Target: TargetNone, Err: err}, err
	}
	return m.write(ctx, name, data, "")
}

func readLocal(localPath string) ([]byte, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", localPath, err)
	}
	return b, nil
}

// Read returns the content of name from the remote store, else from the
// mirror, else empty. It never fails: the outcome says where the bytes came
// from, with TargetNone meaning no content was found.
func (m *Manager) Read(ctx context.Context, name string) ([]byte, Outcome) {
	var remoteErr error
	if store, err := m.remote(ctx); err == nil {
		key := m.RemoteKey(name)
		b, err := blob.ReadAll(ctx, store, key)
		if err == nil {
			return b, Outcome{Target: TargetRemote, Location: key}
		}
		remoteErr = fmt.Errorf("%w: %s: %w", ErrRemoteRead, key, err)
		if !errors.Is(err, blob.ErrNotFound) {
			m.logger.Warn("remote read failed; using fallback", "name", name, "error", remoteErr)
		}
	} else {
		remoteErr = err
	}
	b, err := m.mirror.ReadAll(ctx, name)
	if err == nil {
		return b, Outcome{Target: TargetFallback, Location: m.mirror.Path(name), Err: remoteErr}
	}
	if !IsMissing(err) {
		m.logger.Warn("fallback read failed; treating as empty", "name", name, "error", err)
	}
	return nil, Outcome{Target: TargetNone, Err: err}
}

// Exists reports whether name is present, and where. The remote store is
// consulted first; any remote failure falls through to the mirror.
func (m *Manager) Exists(ctx context.Context, name string) (bool, Target) {
	if store, err := m.remote(ctx); err == nil {
		ok, err := blob.Exists(ctx, store, m.RemoteKey(name))
		if err == nil && ok {
			return true, TargetRemote
		}
		if err != nil {
			m.logger.Warn("remote status failed", "name", name, "error", err)
		}
	}
	ok, err := m.mirror.Exists(ctx, name)
	if err == nil && ok {
		return true, TargetFallback
	}
	return false, TargetNone
}

// List returns the files kept in the remote directory, or in the mirror when
// the remote store is absent or cannot be listed. The target says which one
// was listed.
func (m *Manager) List(ctx context.Context) ([]blob.Info, Target, error) {
	if store, err := m.remote(ctx); err == nil {
		prefix := strings.Trim(m.remoteDir, "/")
		if prefix != "" {
			prefix += "/"
		}
		infos, err := store.List(ctx, prefix)
		if err == nil {
			return infos, TargetRemote, nil
		}
		m.logger.Warn("remote list failed; listing fallback", "dir", m.remoteDir, "error", err)
	}
	infos, err := m.mirror.List(ctx)
	if err != nil {
		return nil, TargetNone, err
	}
	return infos, TargetFallback, nil
}

func (m *Manager) writeRemote(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	store, err := m.remote(ctx)
	if err != nil {
		return "", err
	}
	key := m.RemoteKey(name)
	if _, err := blob.WriteAll(ctx, store, key, data, contentType); err != nil {
		m.forget(store)
		return "", fmt.Errorf("%w: %s: %w", ErrRemoteWrite, key, err)
	}
	return key, nil
}

func (m *Manager) writeFallback(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := m.mirror.WriteAll(ctx, name, data, contentType); err != nil {
		return "", err
	}
	return m.mirror.Path(name), nil
}

// remote returns a healthy client for this attempt. Factory failure or a
// failing probe yields ErrRemoteUnavailable.
func (m *Manager) remote(ctx context.Context) (blob.Store, error) {
	if m.factory == nil {
		return nil, fmt.Errorf("%w: not configured", ErrRemoteUnavailable)
	}
	if !m.reprobe {
		m.mu.Lock()
		cached := m.cached
		m.mu.Unlock()
		if cached != nil {
			return cached, nil
		}
	}
	store, err := m.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: factory returned no client", ErrRemoteUnavailable)
	}
	if err := blob.Probe(ctx, store); err != nil {
		return nil, fmt.Errorf("%w: probe: %w", ErrRemoteUnavailable, err)
	}
	if err := m.ensureRemoteDir(ctx, store); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	if !m.reprobe {
		m.mu.Lock()
		m.cached = store
		m.mu.Unlock()
	}
	return store, nil
}

// ensureRemoteDir creates the remote directory the first time a healthy
// client is seen.
func (m *Manager) ensureRemoteDir(ctx context.Context, store blob.Store) error {
	m.mu.Lock()
	ready := m.dirReady
	m.mu.Unlock()
	dir := strings.Trim(m.remoteDir, "/")
	if ready || dir == "" {
		return nil
	}
	if err := blob.MakeDir(ctx, store, dir); err != nil {
		return fmt.Errorf("create remote dir %s: %w", dir, err)
	}
	m.mu.Lock()
	m.dirReady = true
	m.mu.Unlock()
	return nil
}

// forget drops a cached client after a failed write so the next attempt
// probes again.
func (m *Manager) forget(store blob.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == store {
		m.cached = nil
	}
}
