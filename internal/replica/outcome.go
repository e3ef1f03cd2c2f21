package replica

// Target identifies where a replicated copy ended up.
type Target string

const (
	TargetRemote   Target = "remote"
	TargetFallback Target = "fallback"
	TargetNone     Target = "none"
)

// Outcome describes one replication attempt. Err holds the last failure seen
// while resolving Target: the remote error when a write was demoted to the
// fallback mirror, or the fallback error when nothing was written.
type Outcome struct {
	Target   Target `json:"target"`
	Location string `json:"location,omitempty"`
	Err      error  `json:"-"`
}

// Degraded reports whether the attempt did not land on the remote store.
func (o Outcome) Degraded() bool { return o.Target != TargetRemote }

// Error returns Err as text, or "" when the attempt was clean.
func (o Outcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
