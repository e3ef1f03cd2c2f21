package replica

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"chemledger/internal/blob"
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

func (c *captureLogger) add(level, msg string, args []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, logLine{level: level, msg: msg, args: args})
}

func (c *captureLogger) Debug(msg string, args ...any) { c.add("debug", msg, args) }
func (c *captureLogger) Info(msg string, args ...any)  { c.add("info", msg, args) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.add("warn", msg, args) }
func (c *captureLogger) Error(msg string, args ...any) { c.add("error", msg, args) }

func (c *captureLogger) count(level, contains string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, l := range c.lines {
		if l.level == level && strings.Contains(l.msg+fmt.Sprint(l.args...), contains) {
			n++
		}
	}
	return n
}

func newTestMirror(t *testing.T) *Mirror {
	t.Helper()
	m, err := NewMirror(t.TempDir())
	if err != nil {
		t.Fatalf("mirror: %v", err)
	}
	return m
}

// countingFactory hands out the same store and counts constructions.
type countingFactory struct {
	mu    sync.Mutex
	store blob.Store
	err   error
	calls int
}

func (f *countingFactory) build(context.Context) (blob.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.store, nil
}

func (f *countingFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
