package core

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"chemledger/internal/audit"
	"chemledger/internal/blob"
	"chemledger/internal/recordfile"
	"chemledger/internal/replica"
	"chemledger/pkg/domain"
)

const (
	testRemoteDir = "/user/hdfs"
	testLogName   = "creations.log"
)

type logLine struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) count(level, contains string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, line := range l.lines {
		if line.level == level && strings.Contains(line.msg+" "+fmt.Sprint(line.args...), contains) {
			n++
		}
	}
	return n
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetrics struct {
	mu           sync.Mutex
	calls        []metricsCall
	replications map[string][]Replication
}

func (c *captureMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetrics) ObserveReplication(_ context.Context, op string, r Replication) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replications == nil {
		c.replications = map[string][]Replication{}
	}
	c.replications[op] = append(c.replications[op], r)
}

func (c *captureMetrics) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type fixture struct {
	svc    *Service
	mirror *replica.Mirror
	remote *blob.MemoryStore // nil when no remote store is configured
	logger *captureLogger
}

// newFixture wires a service over table with a fresh mirror. When withRemote
// is set an in-memory store stands in for the cluster.
func newFixture(t *testing.T, table recordfile.Table, withRemote bool, opts ...ServiceOption) *fixture {
	t.Helper()
	mirror, err := replica.NewMirror(filepath.Join(t.TempDir(), "hdfs_fallback"))
	if err != nil {
		t.Fatalf("mirror: %v", err)
	}
	f := &fixture{mirror: mirror, logger: &captureLogger{}}
	replOpts := []replica.Option{replica.WithRemoteDir(testRemoteDir), replica.WithLogger(f.logger)}
	if withRemote {
		f.remote = blob.NewMemory()
		replOpts = append(replOpts, replica.WithClientFactory(func(context.Context) (blob.Store, error) {
			return f.remote, nil
		}))
	}
	mgr := replica.NewManager(mirror, replOpts...)
	opts = append([]ServiceOption{WithLogger(f.logger)}, opts...)
	f.svc = NewService(table, mgr, audit.New(mgr, testLogName), opts...)
	return f
}

func (f *fixture) remoteBytes(t *testing.T, name string) []byte {
	t.Helper()
	b, err := blob.ReadAll(context.Background(), f.remote, strings.TrimPrefix(testRemoteDir, "/")+"/"+name)
	if err != nil {
		t.Fatalf("remote %s: %v", name, err)
	}
	return b
}

func (f *fixture) mirrorBytes(t *testing.T, name string) []byte {
	t.Helper()
	b, err := f.mirror.ReadAll(context.Background(), name)
	if err != nil {
		t.Fatalf("mirror %s: %v", name, err)
	}
	return b
}

func paraquat(location string) domain.Fields {
	return domain.Fields{ChemicalName: "Paraquat", Concentration: "10%", Location: location, Date: "2024-03-01"}
}

func fixedClock() Clock {
	return ClockFunc(func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) })
}
