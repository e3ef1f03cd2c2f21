// Package core implements the record service: identifier assignment, record
// mutation, local persistence and replication of the table and audit log.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"chemledger/internal/audit"
	"chemledger/internal/recordfile"
	"chemledger/internal/replica"
	"chemledger/pkg/domain"
)

// Service orchestrates the record table, the replica manager and the audit
// log. It keeps no state between calls: every operation starts from the
// persisted table. Callers must not run mutations concurrently.
type Service struct {
	table   recordfile.Table
	repl    *replica.Manager
	audit   *audit.Log
	logger  Logger
	clock   Clock
	metrics MetricsRecorder
	tracer  Tracer
	closers []io.Closer
}

// NewService constructs a service over the supplied collaborators.
func NewService(table recordfile.Table, repl *replica.Manager, auditLog *audit.Log, opts ...ServiceOption) *Service {
	s := newService(opts)
	s.table = table
	s.repl = repl
	s.audit = auditLog
	return s
}

func newService(opts []ServiceOption) *Service {
	s := &Service{
		logger:  noopLogger{},
		clock:   systemClock{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Table returns the local table.
func (s *Service) Table() recordfile.Table { return s.table }

// Replicas returns the replica manager.
func (s *Service) Replicas() *replica.Manager { return s.repl }

// Close releases resources held by the table backend, if any.
func (s *Service) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Create assigns the next id, saves the table, replicates it and journals the
// creation. The id is set before the audit entry is built.
func (s *Service) Create(ctx context.Context, fields domain.Fields) (domain.Record, Result, error) {
	var (
		created domain.Record
		res     Result
	)
	err := s.run(ctx, "create_record", func(ctx context.Context) error {
		snap, err := s.table.Load(ctx)
		if err != nil {
			return err
		}
		id := snap.NextID()
		created = domain.NewRecord(id, fields)
		snap.Records = append(snap.Records, created)
		snap.LastID = id
		res, err = s.save(ctx, snap)
		if err != nil {
			return err
		}
		out, err := s.audit.Append(ctx, audit.NewEntry(created, s.clock.Now))
		res.Audit = out
		if err != nil {
			s.logger.Warn("audit append not replicated", "id", id, "error", err)
		}
		return nil
	})
	s.observeReplication(ctx, "create_record", res, err)
	return created, res, err
}

// List returns every record in insertion order.
func (s *Service) List(ctx context.Context) ([]domain.Record, error) {
	var records []domain.Record
	err := s.run(ctx, "list_records", func(ctx context.Context) error {
		snap, err := s.table.Load(ctx)
		if err != nil {
			return err
		}
		records = snap.Records
		return nil
	})
	return records, err
}

// Get returns the record with id.
func (s *Service) Get(ctx context.Context, id int64) (domain.Record, error) {
	var rec domain.Record
	err := s.run(ctx, "get_record", func(ctx context.Context) error {
		snap, err := s.table.Load(ctx)
		if err != nil {
			return err
		}
		i := snap.Index(id)
		if i < 0 {
			return domain.ErrNotFound{ID: id}
		}
		rec = snap.Records[i]
		return nil
	})
	return rec, err
}

// Update applies changes to the record with id. The table is left untouched
// when the id is missing or any change is invalid.
func (s *Service) Update(ctx context.Context, id int64, changes domain.Changes) (domain.Record, Result, error) {
	var (
		updated domain.Record
		res     Result
	)
	err := s.run(ctx, "update_record", func(ctx context.Context) error {
		snap, err := s.table.Load(ctx)
		if err != nil {
			return err
		}
		i := snap.Index(id)
		if i < 0 {
			return domain.ErrNotFound{ID: id}
		}
		updated, err = changes.Apply(snap.Records[i])
		if err != nil {
			return err
		}
		snap.Records[i] = updated
		res, err = s.save(ctx, snap)
		return err
	})
	s.observeReplication(ctx, "update_record", res, err)
	return updated, res, err
}

// Delete removes the record with id. Its id is never handed out again.
func (s *Service) Delete(ctx context.Context, id int64) (Result, error) {
	var res Result
	err := s.run(ctx, "delete_record", func(ctx context.Context) error {
		snap, err := s.table.Load(ctx)
		if err != nil {
			return err
		}
		i := snap.Index(id)
		if i < 0 {
			return domain.ErrNotFound{ID: id}
		}
		snap.LastID = snap.NextID() - 1
		snap.Records = append(snap.Records[:i], snap.Records[i+1:]...)
		res, err = s.save(ctx, snap)
		return err
	})
	s.observeReplication(ctx, "delete_record", res, err)
	return res, err
}

// Sync replicates the current table without changing it, healing a remote
// copy left stale by earlier fallback periods.
func (s *Service) Sync(ctx context.Context) (Result, error) {
	var res Result
	err := s.run(ctx, "sync_table", func(ctx context.Context) error {
		snap, err := s.table.Load(ctx)
		if err != nil {
			return err
		}
		res = Result{Local: true, Table: s.replicate(ctx, snap)}
		return nil
	})
	s.observeReplication(ctx, "sync_table", res, err)
	return res, err
}

// AuditTrail returns the journaled creations, oldest first.
func (s *Service) AuditTrail(ctx context.Context) ([]audit.Entry, error) {
	var entries []audit.Entry
	err := s.run(ctx, "audit_trail", func(ctx context.Context) error {
		var err error
		entries, err = s.audit.Entries(ctx)
		return err
	})
	return entries, err
}

// Status reports where the replicated table and audit log currently live and
// lists the files kept in the remote directory, or in the fallback mirror
// when the remote store cannot be listed.
func (s *Service) Status(ctx context.Context) (StorageStatus, error) {
	var st StorageStatus
	err := s.run(ctx, "storage_status", func(ctx context.Context) error {
		st.RemoteEnabled = s.repl.RemoteEnabled()
		for _, name := range []string{s.table.Name(), s.audit.Name()} {
			ok, target := s.repl.Exists(ctx, name)
			st.Files = append(st.Files, FileStatus{Name: name, Present: ok, Location: target})
		}
		infos, from, err := s.repl.List(ctx)
		if err != nil {
			return err
		}
		st.Listing = infos
		st.ListedFrom = from
		return nil
	})
	return st, err
}

// save persists snap locally, then replicates the table. A replication
// failure never fails the operation; it is reported on the result.
func (s *Service) save(ctx context.Context, snap recordfile.Snapshot) (Result, error) {
	if err := s.table.Save(ctx, snap); err != nil {
		return Result{}, fmt.Errorf("save %s: %w", s.table.Name(), err)
	}
	return Result{Local: true, Table: s.replicate(ctx, snap)}, nil
}

// fileTable is implemented by tables stored in a local file, which are
// replicated straight from disk.
type fileTable interface {
	Path() string
}

func (s *Service) replicate(ctx context.Context, snap recordfile.Snapshot) replica.Outcome {
	var (
		out replica.Outcome
		err error
	)
	if ft, ok := s.table.(fileTable); ok {
		out, err = s.repl.SyncFile(ctx, ft.Path(), s.table.Name())
	} else {
		var data []byte
		data, err = recordfile.Encode(snap)
		if err == nil {
			out, err = s.repl.WriteWithType(ctx, s.table.Name(), data, recordfile.ContentType)
		} else {
			out = replica.Outcome{Target: replica.TargetNone, Err: err}
		}
	}
	if err != nil {
		s.logger.Warn("table not replicated", "table", s.table.Name(), "error", err)
	}
	return out
}

func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	elapsed := time.Since(start)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "error", err)
		return err
	}
	s.logger.Debug("operation completed", "operation", op, "duration", elapsed)
	return nil
}

func (s *Service) observeReplication(ctx context.Context, op string, res Result, err error) {
	if err != nil {
		return
	}
	if ro, ok := s.metrics.(ReplicationObserver); ok {
		ro.ObserveReplication(ctx, op, res.Replication())
	}
}
