// Package audit maintains the append-only journal of record creations on top
// of a store that cannot append.
package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"chemledger/internal/replica"
)

// Replicator is the remote-or-fallback read/write surface the log needs.
type Replicator interface {
	Read(ctx context.Context, name string) ([]byte, replica.Outcome)
	WriteWithType(ctx context.Context, name string, data []byte, contentType string) (replica.Outcome, error)
}

// Logger receives warnings about unreadable log lines.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// ContentType of the stored log: one JSON object per line.
const ContentType = "application/x-ndjson"

// Log is a JSON-lines journal stored under a single name.
//
// Append is read, concatenate, overwrite: the whole log is read (from the
// remote store, else the fallback mirror, else treated as empty), the new
// line is appended in memory and the result replaces the stored log. Two
// concurrent appends may read the same content and each write back only its
// own addition, so one entry is lost. Callers needing every entry must not
// append concurrently.
type Log struct {
	repl   Replicator
	name   string
	logger Logger
}

// Option configures a Log.
type Option func(*Log)

// WithLogger sets the logger used for malformed line warnings.
func WithLogger(l Logger) Option {
	return func(lg *Log) {
		if l != nil {
			lg.logger = l
		}
	}
}

// New returns a log stored under name.
func New(repl Replicator, name string, opts ...Option) *Log {
	l := &Log{repl: repl, name: name, logger: noopLogger{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the name the log is stored under.
func (l *Log) Name() string { return l.name }

// Append adds e as the last line of the log. A read failure counts as an
// empty log. The returned error is non-nil only when the merged log could
// not be written anywhere.
func (l *Log) Append(ctx context.Context, e Entry) (replica.Outcome, error) {
	line, err := json.Marshal(e)
	if err != nil {
		return replica.Outcome{Target: replica.TargetNone, Err: err}, fmt.Errorf("encode audit entry: %w", err)
	}
	existing, _ := l.repl.Read(ctx, l.name)
	merged := make([]byte, 0, len(existing)+len(line)+2)
	merged = append(merged, existing...)
	if len(merged) > 0 && merged[len(merged)-1] != '\n' {
		merged = append(merged, '\n')
	}
	merged = append(merged, line...)
	merged = append(merged, '\n')
	return l.repl.WriteWithType(ctx, l.name, merged, ContentType)
}

// Entries parses the stored log in order. Lines that are blank or do not
// decode are skipped and reported in a single warning.
func (l *Log) Entries(ctx context.Context) ([]Entry, error) {
	data, _ := l.repl.Read(ctx, l.name)
	entries, skipped, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		l.logger.Warn("skipped malformed audit lines", "log", l.name, "count", skipped)
	}
	return entries, nil
}

// Parse decodes a JSON-lines log, returning the entries and the number of
// malformed lines skipped.
func Parse(data []byte) ([]Entry, int, error) {
	var (
		entries []Entry
		skipped int
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan audit log: %w", err)
	}
	return entries, skipped, nil
}
