package replica

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"chemledger/internal/blob"
)

func TestRemoteKey(t *testing.T) {
	m := NewManager(newTestMirror(t), WithRemoteDir("/user/hdfs"))
	if got := m.RemoteKey("paraquat_data.json"); got != "user/hdfs/paraquat_data.json" {
		t.Fatalf("unexpected key %s", got)
	}
	if got := m.RemoteKey("local/dir/creations.log"); got != "user/hdfs/creations.log" {
		t.Fatalf("unexpected key %s", got)
	}
	bare := NewManager(newTestMirror(t))
	if got := bare.RemoteKey("x.json"); got != "x.json" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestWriteWithoutRemoteGoesToMirror(t *testing.T) {
	log := &captureLogger{}
	mirror := newTestMirror(t)
	m := NewManager(mirror, WithLogger(log))
	if m.RemoteEnabled() {
		t.Fatalf("remote should be disabled")
	}
	out, err := m.Write(context.Background(), "table.json", []byte("{}"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if out.Target != TargetFallback || out.Location != mirror.Path("table.json") || !out.Degraded() {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !errors.Is(out.Err, ErrRemoteUnavailable) {
		t.Fatalf("expected unavailable cause, got %v", out.Err)
	}
	if log.count("warn", "") != 0 {
		t.Fatalf("a disabled remote is not a failure worth warning about")
	}
}

func TestWriteToRemote(t *testing.T) {
	remote := blob.NewMemory()
	mirror := newTestMirror(t)
	m := NewManager(mirror,
		WithClientFactory(func(context.Context) (blob.Store, error) { return remote, nil }),
		WithRemoteDir("/user/hdfs"),
	)
	ctx := context.Background()
	out, err := m.Write(ctx, "table.json", []byte("v1"))
	if err != nil || out.Target != TargetRemote || out.Location != "user/hdfs/table.json" || out.Err != nil {
		t.Fatalf("unexpected outcome %+v %v", out, err)
	}
	if out.Degraded() || out.Error() != "" {
		t.Fatalf("clean remote write reported as degraded")
	}
	b, err := blob.ReadAll(ctx, remote, "user/hdfs/table.json")
	if err != nil || string(b) != "v1" {
		t.Fatalf("remote content %q %v", b, err)
	}
	if ok, _ := mirror.Exists(ctx, "table.json"); ok {
		t.Fatalf("mirror must not be written when the remote write succeeds")
	}
	if ok, where := m.Exists(ctx, "table.json"); !ok || where != TargetRemote {
		t.Fatalf("exists: %v %s", ok, where)
	}
}

func TestWriteDemotesRemoteFailures(t *testing.T) {
	boom := errors.New("quota exceeded")
	cases := []struct {
		name  string
		setup func(*blob.MemoryStore, *countingFactory)
		cause error
	}{
		{"write", func(s *blob.MemoryStore, _ *countingFactory) { s.FailOn(blob.MemoryOpPut, boom) }, ErrRemoteWrite},
		{"probe", func(s *blob.MemoryStore, _ *countingFactory) { s.FailOn(blob.MemoryOpProbe, boom) }, ErrRemoteUnavailable},
		{"factory", func(_ *blob.MemoryStore, f *countingFactory) { f.err = boom }, ErrRemoteUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			remote := blob.NewMemory()
			factory := &countingFactory{store: remote}
			tc.setup(remote, factory)
			log := &captureLogger{}
			mirror := newTestMirror(t)
			m := NewManager(mirror, WithClientFactory(factory.build), WithLogger(log))
			out, err := m.Write(context.Background(), "creations.log", []byte("line\n"))
			if err != nil {
				t.Fatalf("remote failure must not escalate: %v", err)
			}
			if out.Target != TargetFallback || !errors.Is(out.Err, tc.cause) || !errors.Is(out.Err, boom) {
				t.Fatalf("unexpected outcome %+v", out)
			}
			b, _ := os.ReadFile(mirror.Path("creations.log"))
			if string(b) != "line\n" {
				t.Fatalf("mirror content %q", b)
			}
			if log.count("warn", "remote write failed") != 1 {
				t.Fatalf("expected one demotion warning, got %+v", log.lines)
			}
		})
	}
}

func TestWriteFailsWhenFallbackFails(t *testing.T) {
	remote := blob.NewMemory()
	remote.FailOn(blob.MemoryOpPut, errors.New("permission denied"))
	mirror := newTestMirror(t)
	breakMirror(t, mirror)
	log := &captureLogger{}
	m := NewManager(mirror, WithClientFactory(func(context.Context) (blob.Store, error) { return remote, nil }), WithLogger(log))
	out, err := m.Write(context.Background(), "table.json", []byte("{}"))
	if !errors.Is(err, ErrFallbackWrite) {
		t.Fatalf("expected fallback write error, got %v", err)
	}
	if out.Target != TargetNone || !errors.Is(out.Err, ErrFallbackWrite) {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if log.count("error", "fallback write failed") != 1 {
		t.Fatalf("expected fallback failure logged")
	}
}

func TestReprobePolicy(t *testing.T) {
	ctx := context.Background()
	remote := blob.NewMemory()

	always := &countingFactory{store: remote}
	m := NewManager(newTestMirror(t), WithClientFactory(always.build))
	for i := 0; i < 3; i++ {
		if _, err := m.Write(ctx, "t.json", []byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	if always.count() != 3 || remote.Calls(blob.MemoryOpProbe) != 3 {
		t.Fatalf("expected a fresh client and probe per attempt, got %d/%d", always.count(), remote.Calls(blob.MemoryOpProbe))
	}

	once := &countingFactory{store: remote}
	cached := NewManager(newTestMirror(t), WithClientFactory(once.build), WithReprobe(false))
	for i := 0; i < 3; i++ {
		if _, err := cached.Write(ctx, "t.json", []byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	if once.count() != 1 {
		t.Fatalf("expected cached client, factory called %d times", once.count())
	}
	remote.FailOn(blob.MemoryOpPut, errors.New("gone"))
	if out, _ := cached.Write(ctx, "t.json", []byte("x")); out.Target != TargetFallback {
		t.Fatalf("expected fallback after failure, got %+v", out)
	}
	remote.FailOn(blob.MemoryOpPut, nil)
	if out, _ := cached.Write(ctx, "t.json", []byte("x")); out.Target != TargetRemote {
		t.Fatalf("expected remote after recovery, got %+v", out)
	}
	if once.count() != 2 {
		t.Fatalf("a failed write must drop the cached client, factory called %d times", once.count())
	}
}

func TestReadPrefersRemoteThenMirrorThenEmpty(t *testing.T) {
	ctx := context.Background()
	remote := blob.NewMemory()
	mirror := newTestMirror(t)
	log := &captureLogger{}
	m := NewManager(mirror, WithClientFactory(func(context.Context) (blob.Store, error) { return remote, nil }), WithLogger(log))

	b, out := m.Read(ctx, "creations.log")
	if b != nil || out.Target != TargetNone {
		t.Fatalf("expected empty read, got %q %+v", b, out)
	}

	if err := mirror.WriteAll(ctx, "creations.log", []byte("mirror\n"), ""); err != nil {
		t.Fatal(err)
	}
	b, out = m.Read(ctx, "creations.log")
	if string(b) != "mirror\n" || out.Target != TargetFallback || !errors.Is(out.Err, ErrRemoteRead) {
		t.Fatalf("expected mirror read, got %q %+v", b, out)
	}

	if _, err := blob.WriteAll(ctx, remote, "creations.log", []byte("remote\n"), ""); err != nil {
		t.Fatal(err)
	}
	b, out = m.Read(ctx, "creations.log")
	if string(b) != "remote\n" || out.Target != TargetRemote {
		t.Fatalf("expected remote read, got %q %+v", b, out)
	}

	remote.FailOn(blob.MemoryOpGet, errors.New("datanode down"))
	b, out = m.Read(ctx, "creations.log")
	if string(b) != "mirror\n" || out.Target != TargetFallback {
		t.Fatalf("expected mirror after remote failure, got %q %+v", b, out)
	}
	if log.count("warn", "remote read failed") != 1 {
		t.Fatalf("expected one remote read warning, got %+v", log.lines)
	}
}

func TestReadNeverFailsOnBrokenMirror(t *testing.T) {
	mirror := newTestMirror(t)
	breakMirror(t, mirror)
	log := &captureLogger{}
	m := NewManager(mirror, WithLogger(log))
	b, out := m.Read(context.Background(), "creations.log")
	if b != nil || out.Target != TargetNone || !errors.Is(out.Err, ErrFallbackRead) {
		t.Fatalf("unexpected read %q %+v", b, out)
	}
	if log.count("warn", "fallback read failed") != 1 {
		t.Fatalf("expected warning for unreadable mirror")
	}
}

func TestSyncFile(t *testing.T) {
	ctx := context.Background()
	mirror := newTestMirror(t)
	m := NewManager(mirror)
	local := filepath.Join(t.TempDir(), "paraquat_data.json")
	if _, err := m.SyncFile(ctx, local, "paraquat_data.json"); err == nil {
		t.Fatalf("expected missing local file error")
	}
	if err := os.WriteFile(local, []byte(`{"rows":0}`), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := m.SyncFile(ctx, local, "paraquat_data.json")
	if err != nil || out.Target != TargetFallback {
		t.Fatalf("sync: %+v %v", out, err)
	}
	b, _ := os.ReadFile(mirror.Path("paraquat_data.json"))
	if string(b) != `{"rows":0}` {
		t.Fatalf("mirror content %q", b)
	}
	if ok, where := m.Exists(ctx, "paraquat_data.json"); !ok || where != TargetFallback {
		t.Fatalf("exists: %v %s", ok, where)
	}
	if ok, where := m.Exists(ctx, "other.json"); ok || where != TargetNone {
		t.Fatalf("exists missing: %v %s", ok, where)
	}
}

func TestManagerOverS3(t *testing.T) {
	ctx := context.Background()
	store, mock := blob.NewMockS3ForTests()
	mirror := newTestMirror(t)
	m := NewManager(mirror, WithClientFactory(func(context.Context) (blob.Store, error) { return store, nil }), WithRemoteDir("ledger"))
	out, err := m.Write(ctx, "table.json", []byte("{}"))
	if err != nil || out.Target != TargetRemote {
		t.Fatalf("s3 write: %+v %v", out, err)
	}
	if b, ok := mock.Object("ledger/table.json"); !ok || string(b) != "{}" {
		t.Fatalf("object not stored: %q %v", b, ok)
	}
	mock.FailWith(http.StatusServiceUnavailable)
	out, err = m.Write(ctx, "table.json", []byte("{1}"))
	if err != nil || out.Target != TargetFallback || !errors.Is(out.Err, ErrRemoteUnavailable) {
		t.Fatalf("expected probe failure demotion: %+v %v", out, err)
	}
}

func TestConcurrentWritesWithCachedClient(t *testing.T) {
	remote := blob.NewMemory()
	factory := &countingFactory{store: remote}
	m := NewManager(newTestMirror(t), WithClientFactory(factory.build), WithReprobe(false))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Write(context.Background(), "t.json", []byte("x")); err != nil {
				t.Errorf("write: %v", err)
			}
		}()
	}
	wg.Wait()
	if remote.Calls(blob.MemoryOpPut) != 8 {
		t.Fatalf("expected every write to reach the remote store")
	}
}

// dirStore adds directory creation to an in-memory store.
type dirStore struct {
	*blob.MemoryStore
	mu   sync.Mutex
	dirs []string
	err  error
}

func (d *dirStore) MakeDir(_ context.Context, dir string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.dirs = append(d.dirs, dir)
	return nil
}

func TestRemoteDirCreatedOnce(t *testing.T) {
	remote := &dirStore{MemoryStore: blob.NewMemory()}
	m := NewManager(newTestMirror(t),
		WithClientFactory(func(context.Context) (blob.Store, error) { return remote, nil }),
		WithRemoteDir("/user/hdfs"),
	)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if out, err := m.Write(ctx, "table.json", []byte("v")); err != nil || out.Target != TargetRemote {
			t.Fatalf("write %d: %+v %v", i, out, err)
		}
	}
	if len(remote.dirs) != 1 || remote.dirs[0] != "user/hdfs" {
		t.Fatalf("expected one mkdirs of user/hdfs, got %v", remote.dirs)
	}
}

func TestRemoteDirFailureDemotesToFallback(t *testing.T) {
	log := &captureLogger{}
	boom := errors.New("permission denied")
	remote := &dirStore{MemoryStore: blob.NewMemory(), err: boom}
	m := NewManager(newTestMirror(t),
		WithClientFactory(func(context.Context) (blob.Store, error) { return remote, nil }),
		WithRemoteDir("/user/hdfs"),
		WithLogger(log),
	)
	ctx := context.Background()
	out, err := m.Write(ctx, "table.json", []byte("v"))
	if err != nil || out.Target != TargetFallback {
		t.Fatalf("expected fallback, got %+v %v", out, err)
	}
	if !errors.Is(out.Err, ErrRemoteUnavailable) || !errors.Is(out.Err, boom) {
		t.Fatalf("expected unavailable cause wrapping mkdir error, got %v", out.Err)
	}
	remote.mu.Lock()
	remote.err = nil
	remote.mu.Unlock()
	if out, err := m.Write(ctx, "table.json", []byte("v")); err != nil || out.Target != TargetRemote {
		t.Fatalf("expected recovery once the dir can be created: %+v %v", out, err)
	}
}

func TestListPrefersRemoteDir(t *testing.T) {
	remote := blob.NewMemory()
	mirror := newTestMirror(t)
	m := NewManager(mirror,
		WithClientFactory(func(context.Context) (blob.Store, error) { return remote, nil }),
		WithRemoteDir("/user/hdfs"),
	)
	ctx := context.Background()
	if _, err := blob.WriteAll(ctx, remote, "elsewhere/x.json", []byte("x"), ""); err != nil {
		t.Fatalf("seed: %v", err)
	}
	for _, name := range []string{"paraquat_data.json", "creations.log"} {
		if _, err := m.Write(ctx, name, []byte(name)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	infos, target, err := m.List(ctx)
	if err != nil || target != TargetRemote {
		t.Fatalf("list: %v %v", target, err)
	}
	if len(infos) != 2 || infos[0].Key != "user/hdfs/creations.log" || infos[1].Key != "user/hdfs/paraquat_data.json" {
		t.Fatalf("unexpected remote listing %+v", infos)
	}

	remote.FailOn(blob.MemoryOpList, errors.New("connection reset"))
	if err := mirror.WriteAll(ctx, "creations.log", []byte("a\n"), ""); err != nil {
		t.Fatalf("seed mirror: %v", err)
	}
	infos, target, err = m.List(ctx)
	if err != nil || target != TargetFallback || len(infos) != 1 || infos[0].Key != "creations.log" {
		t.Fatalf("expected fallback listing, got %+v %v %v", infos, target, err)
	}
}

func TestListWithoutRemote(t *testing.T) {
	m := NewManager(newTestMirror(t))
	infos, target, err := m.List(context.Background())
	if err != nil || target != TargetFallback || len(infos) != 0 {
		t.Fatalf("empty mirror listing: %+v %v %v", infos, target, err)
	}
}
