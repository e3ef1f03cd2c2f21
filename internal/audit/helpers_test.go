package audit

import (
	"context"
	"encoding/json"

	"chemledger/internal/replica"
)

type stubReplicator struct {
	data     []byte
	writeErr error
}

func (s *stubReplicator) Read(context.Context, string) ([]byte, replica.Outcome) {
	return s.data, replica.Outcome{Target: replica.TargetFallback}
}

func (s *stubReplicator) WriteWithType(_ context.Context, _ string, data []byte, _ string) (replica.Outcome, error) {
	if s.writeErr != nil {
		return replica.Outcome{Target: replica.TargetNone, Err: s.writeErr}, s.writeErr
	}
	s.data = data
	return replica.Outcome{Target: replica.TargetFallback}, nil
}

type warnLogger struct {
	count int
	last  []any
}

func (w *warnLogger) Warn(_ string, args ...any) {
	w.count++
	w.last = args
}

func jsonLine(e Entry) (string, error) {
	b, err := json.Marshal(e)
	return string(b) + "\n", err
}
