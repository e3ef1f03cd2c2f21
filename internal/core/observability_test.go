package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"chemledger/internal/recordfile"
)

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "chemledger_service_metrics_") {
		t.Fatalf("unexpected generated name %q", rec.Name())
	}
	f := newFixture(t, recordfile.NewMemory("paraquat_data.json"), false, WithMetricsRecorder(rec))
	ctx := context.Background()
	if _, _, err := f.svc.Create(ctx, paraquat("Shelf A")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Delete(ctx, 99); err == nil {
		t.Fatalf("expected not found")
	}
	rec.Observe(ctx, "", true, time.Second)

	snap := rec.Snapshot()
	if snap.Results["create_record"]["success"] != 1 || snap.Results["delete_record"]["error"] != 1 {
		t.Fatalf("unexpected results %+v", snap.Results)
	}
	if snap.Replications["create_record"][ReplicationFallback] != 1 {
		t.Fatalf("unexpected replications %+v", snap.Replications)
	}
	if _, ok := snap.Results[""]; ok {
		t.Fatalf("empty operation names are ignored")
	}

	published := expvar.Get(rec.Name())
	if published == nil {
		t.Fatalf("recorder not published")
	}
	var decoded ExpvarMetricsSnapshot
	if err := json.Unmarshal([]byte(published.String()), &decoded); err != nil {
		t.Fatalf("decode expvar: %v", err)
	}
	if decoded.Results["create_record"]["success"] != 1 {
		t.Fatalf("published snapshot %+v", decoded)
	}
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	f := newFixture(t, recordfile.NewMemory("paraquat_data.json"), false, WithTracer(tracer))
	ctx := context.Background()
	if _, _, err := f.svc.Create(ctx, paraquat("Shelf A")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Get(ctx, 5); err == nil {
		t.Fatalf("expected not found")
	}
	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected two spans, got %+v", entries)
	}
	if entries[0].Operation != "create_record" || entries[0].Status != "success" {
		t.Fatalf("unexpected span %+v", entries[0])
	}
	if entries[1].Status != "error" || !strings.Contains(entries[1].Error, "record 5 not found") {
		t.Fatalf("unexpected span %+v", entries[1])
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two json lines, got %q", buf.String())
	}

	silent := NewJSONTracer(nil)
	_, span := silent.Start(ctx, "noop")
	span.End(errors.New("boom"))
	if len(silent.Entries()) != 1 {
		t.Fatalf("entries retained without a writer")
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	rec, err := NewPrometheusMetricsRecorder(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	f := newFixture(t, recordfile.NewMemory("paraquat_data.json"), true, WithMetricsRecorder(rec))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, _, err := f.svc.Create(ctx, paraquat("Shelf")); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := f.svc.Get(ctx, 9); err == nil {
		t.Fatalf("expected not found")
	}
	if got := promtestutil.ToFloat64(rec.operations.WithLabelValues("create_record", "success")); got != 2 {
		t.Fatalf("create successes %v", got)
	}
	if got := promtestutil.ToFloat64(rec.operations.WithLabelValues("get_record", "error")); got != 1 {
		t.Fatalf("get errors %v", got)
	}
	if got := promtestutil.ToFloat64(rec.replications.WithLabelValues("create_record", string(ReplicationRemote))); got != 2 {
		t.Fatalf("remote replications %v", got)
	}
	if n := promtestutil.CollectAndCount(rec.durations); n != 2 {
		t.Fatalf("expected histograms for two operations, got %d", n)
	}

	path := filepath.Join(t.TempDir(), "chemledger.prom")
	if err := rec.WriteTextfile(path); err != nil {
		t.Fatalf("textfile: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(b), `chemledger_operations_total{operation="create_record",status="success"} 2`) {
		t.Fatalf("unexpected exposition:\n%s", b)
	}
}

func TestPrometheusDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPrometheusMetricsRecorder(reg)
	if err != nil || first.Registry() != reg {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate collector error")
	}
}

func TestRunLogsDebugOnSuccess(t *testing.T) {
	f := newFixture(t, recordfile.NewMemory("paraquat_data.json"), false)
	if _, err := f.svc.List(context.Background()); err != nil {
		t.Fatalf("list: %v", err)
	}
	if f.logger.count("debug", "list_records") != 1 {
		t.Fatalf("expected debug log on success")
	}
}

func TestExpvarWriteSnapshot(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	rec.Observe(context.Background(), "list_records", true, 3*time.Millisecond)
	path := filepath.Join(t.TempDir(), "metrics.json")
	if err := rec.WriteSnapshot(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var snap ExpvarMetricsSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Results["list_records"]["success"] != 1 || snap.DurationsMS["list_records"] < 3 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if err := rec.WriteSnapshot(filepath.Join(t.TempDir(), "missing", "metrics.json")); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestCombineMetricsRecorders(t *testing.T) {
	if _, ok := CombineMetricsRecorders().(noopMetrics); !ok {
		t.Fatalf("no recorders means noop")
	}
	single := &captureMetrics{}
	if got := CombineMetricsRecorders(nil, single); got != MetricsRecorder(single) {
		t.Fatalf("a single recorder is returned as is")
	}
	exp := NewExpvarMetricsRecorder("")
	plain := &captureMetrics{}
	f := newFixture(t, recordfile.NewMemory("paraquat_data.json"), false,
		WithMetricsRecorder(CombineMetricsRecorders(exp, plain)))
	if _, _, err := f.svc.Create(context.Background(), paraquat("Shelf A")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !plain.has("create_record", true) {
		t.Fatalf("observation not fanned out")
	}
	if len(plain.replications["create_record"]) != 1 {
		t.Fatalf("replication not fanned out: %+v", plain.replications)
	}
	if exp.Snapshot().Replications["create_record"][ReplicationFallback] != 1 {
		t.Fatalf("expvar replication missing: %+v", exp.Snapshot())
	}
}
