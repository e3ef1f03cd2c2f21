package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"

	"chemledger/internal/blob/core"
)

func TestStore_MockedBasicFlow(t *testing.T) {
	store, mock := NewMockForTests()
	ctx := context.Background()
	info, err := store.Put(ctx, "user/hdfs/creations.log", bytes.NewReader([]byte("hello\n")), core.PutOptions{ContentType: "application/x-ndjson"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "user/hdfs/creations.log" || info.ContentType != "application/x-ndjson" || info.Size != 6 {
		t.Fatalf("unexpected info %#v", info)
	}
	if _, err := store.Put(ctx, "user/hdfs/creations.log", bytes.NewReader([]byte("hello\nworld\n")), core.PutOptions{}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if body, ok := mock.Object("user/hdfs/creations.log"); !ok || string(body) != "hello\nworld\n" {
		t.Fatalf("expected overwritten object, got %q", body)
	}
	if _, err := store.Head(ctx, "user/hdfs/creations.log"); err != nil {
		t.Fatalf("head: %v", err)
	}
	_, rc, err := store.Get(ctx, "user/hdfs/creations.log")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "hello\nworld\n" {
		t.Fatalf("get mismatch: %q", string(data))
	}
	list, err := store.List(ctx, "user/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	if ok, err := store.Delete(ctx, "user/hdfs/creations.log"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "user/hdfs/creations.log"); err != nil || ok {
		t.Fatalf("second delete should report missing: %v %v", ok, err)
	}
}

func TestStore_MissingObjectsWrapNotFound(t *testing.T) {
	store, _ := NewMockForTests()
	ctx := context.Background()
	if _, err := store.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found from head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found from get, got %v", err)
	}
}

func TestStore_ProbeAndInjectedFailures(t *testing.T) {
	store, mock := NewMockForTests()
	ctx := context.Background()
	if err := store.Probe(ctx); err != nil {
		t.Fatalf("probe: %v", err)
	}
	mock.FailWith(http.StatusForbidden)
	if err := store.Probe(ctx); err == nil {
		t.Fatalf("expected probe failure")
	}
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("v")), core.PutOptions{}); err == nil {
		t.Fatalf("expected put failure")
	}
	if _, err := store.Head(ctx, "k"); err == nil || errors.Is(err, core.ErrNotFound) {
		t.Fatalf("forbidden must not look like a missing object: %v", err)
	}
	mock.FailWith(0)
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("v")), core.PutOptions{}); err != nil {
		t.Fatalf("put after recovery: %v", err)
	}
	if mock.Requests() == 0 {
		t.Fatalf("expected requests to be counted")
	}
}

func TestStore_New(t *testing.T) {
	s, err := New(context.Background(), Config{Bucket: "bkt", Region: "us-east-1", Endpoint: "https://mock.s3.local", PathStyle: true, AccessKeyID: "AKIA", SecretAccessKey: "SECRET"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Driver() != core.DriverS3 {
		t.Fatalf("expected DriverS3")
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}

func TestStore_FromHeadNilBranches(t *testing.T) {
	store, _ := NewMockForTests()
	info := store.fromHead("k", 10, nil, aws.String("\"etagval\""), map[string]string{"x": "y"}, nil)
	if info.ETag != "etagval" || info.ContentType != "" || info.Key != "k" || info.Size != 10 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestMockUnsupportedMethod(t *testing.T) {
	_, mock := NewMockForTests()
	req, _ := http.NewRequest(http.MethodPatch, "https://mock.s3.local/bucket/key", nil)
	resp, _ := mock.RoundTrip(req)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
}

func TestDecodeChunkedHelper(t *testing.T) {
	if _, ok := decodeChunked([]byte("not-chunked")); ok {
		t.Fatalf("expected fail 1")
	}
	if _, ok := decodeChunked([]byte("5\r\nabc\r\n0\r\n")); ok {
		t.Fatalf("size mismatch should fail")
	}
	if b, ok := decodeChunked([]byte("5\r\nhello\r\n0\r\n")); !ok || string(b) != "hello" {
		t.Fatalf("expected decode hello")
	}
}
