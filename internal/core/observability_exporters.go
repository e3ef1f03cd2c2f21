package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

// ExpvarMetricsRecorder publishes per operation totals through expvar: time
// spent in milliseconds, success and error counts, and for mutations where
// the replicated copies ended up.
type ExpvarMetricsRecorder struct {
	name         string
	mu           sync.Mutex
	durations    map[string]float64
	results      map[string]map[string]int64
	replications map[string]map[Replication]int64
}

// ExpvarMetricsSnapshot is a point in time copy of an ExpvarMetricsRecorder.
type ExpvarMetricsSnapshot struct {
	DurationsMS  map[string]float64               `json:"durations_ms_total"`
	Results      map[string]map[string]int64      `json:"results_total"`
	Replications map[string]map[Replication]int64 `json:"replications_total"`
	RecordedAt   time.Time                        `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name. An empty name
// gets a generated, process unique one, since expvar names cannot be reused.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("chemledger_service_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{
		name:         name,
		durations:    make(map[string]float64),
		results:      make(map[string]map[string]int64),
		replications: make(map[string]map[Replication]int64),
	}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name returns the expvar name the recorder is published under.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot copies the current totals.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	durations := make(map[string]float64, len(r.durations))
	for op, ms := range r.durations {
		durations[op] = ms
	}
	return ExpvarMetricsSnapshot{
		DurationsMS:  durations,
		Results:      cloneNested(r.results),
		Replications: cloneNested(r.replications),
		RecordedAt:   time.Now().UTC(),
	}
}

// WriteSnapshot stores the current snapshot as indented JSON at path,
// replacing the file through a rename.
func (r *ExpvarMetricsRecorder) WriteSnapshot(path string) error {
	b, err := json.MarshalIndent(r.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".expvar-*")
	if err != nil {
		return err
	}
	_, werr := tmp.Write(append(b, '\n'))
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmp.Name())
		if werr != nil {
			return werr
		}
		return cerr
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations[operation] += float64(duration) / float64(time.Millisecond)
	increment(r.results, operation, status)
}

// ObserveReplication implements ReplicationObserver.
func (r *ExpvarMetricsRecorder) ObserveReplication(_ context.Context, operation string, replication Replication) {
	r.mu.Lock()
	defer r.mu.Unlock()
	increment(r.replications, operation, replication)
}

func increment[K comparable](m map[string]map[K]int64, op string, key K) {
	inner, ok := m[op]
	if !ok {
		inner = make(map[K]int64)
		m[op] = inner
	}
	inner[key]++
}

func cloneNested[K comparable](m map[string]map[K]int64) map[string]map[K]int64 {
	out := make(map[string]map[K]int64, len(m))
	for op, inner := range m {
		cpy := make(map[K]int64, len(inner))
		for k, v := range inner {
			cpy[k] = v
		}
		out[op] = cpy
	}
	return out
}

// CombineMetricsRecorders fans every observation out to recs. Nil entries are
// skipped; replication counts reach only recorders that observe them.
func CombineMetricsRecorders(recs ...MetricsRecorder) MetricsRecorder {
	var out multiRecorder
	for _, r := range recs {
		if r != nil {
			out = append(out, r)
		}
	}
	switch len(out) {
	case 0:
		return noopMetrics{}
	case 1:
		return out[0]
	}
	return out
}

type multiRecorder []MetricsRecorder

func (m multiRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range m {
		r.Observe(ctx, operation, success, duration)
	}
}

func (m multiRecorder) ObserveReplication(ctx context.Context, operation string, replication Replication) {
	for _, r := range m {
		if ro, ok := r.(ReplicationObserver); ok {
			ro.ObserveReplication(ctx, operation, replication)
		}
	}
}

// JSONTraceEntry is one finished span as written by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer writes each finished span as one JSON line and keeps the
// spans for Entries.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer returns a tracer writing to w. A nil w only retains spans.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns the spans finished so far.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

func (t *JSONTraceTracer) finish(entry JSONTraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
	if t.enc != nil {
		_ = t.enc.Encode(entry)
	}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Status:     "success",
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	}
	s.tracer.finish(entry)
}
