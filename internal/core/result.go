package core

import (
	"chemledger/internal/blob"
	"chemledger/internal/replica"
)

// Replication summarizes where the copies written by one operation ended up.
type Replication string

const (
	ReplicationRemote   Replication = "remote"   // every copy reached the remote store
	ReplicationFallback Replication = "fallback" // at least one copy went to the fallback mirror
	ReplicationFailed   Replication = "failed"   // at least one copy was written nowhere
	ReplicationSkipped  Replication = "skipped"  // the local save failed, nothing was replicated
)

// Result reports the two halves of a mutation separately: whether the local
// table was saved, and where the replicated copies went. Audit is zero for
// operations that do not journal.
type Result struct {
	Local bool            `json:"local"`
	Table replica.Outcome `json:"table"`
	Audit replica.Outcome `json:"audit"`
}

// Replication returns the worst outcome across the table and audit copies.
func (r Result) Replication() Replication {
	if !r.Local {
		return ReplicationSkipped
	}
	outcomes := []replica.Outcome{r.Table}
	if r.Audit.Target != "" {
		outcomes = append(outcomes, r.Audit)
	}
	summary := ReplicationRemote
	for _, o := range outcomes {
		switch o.Target {
		case replica.TargetRemote:
		case replica.TargetFallback:
			summary = ReplicationFallback
		default:
			return ReplicationFailed
		}
	}
	return summary
}

// Degraded reports a mutation that succeeded locally but was not fully
// replicated to the remote store.
func (r Result) Degraded() bool {
	return r.Local && r.Replication() != ReplicationRemote
}

// FileStatus says whether one replicated file exists and where it was found.
type FileStatus struct {
	Name     string         `json:"name"`
	Present  bool           `json:"present"`
	Location replica.Target `json:"location"`
}

// StorageStatus is the answer to Service.Status.
type StorageStatus struct {
	RemoteEnabled bool           `json:"remote_enabled"`
	Files         []FileStatus   `json:"files"`
	ListedFrom    replica.Target `json:"listed_from"`
	Listing       []blob.Info    `json:"listing"`
}
