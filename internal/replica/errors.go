package replica

import "errors"

// Remote errors are recovered inside Manager by demoting to the fallback
// mirror; they are logged and carried on Outcome but never returned.
// Fallback errors are the only ones Manager escalates.
var (
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	ErrRemoteRead        = errors.New("remote read failed")
	ErrRemoteWrite       = errors.New("remote write failed")
	ErrFallbackRead      = errors.New("fallback read failed")
	ErrFallbackWrite     = errors.New("fallback write failed")
)
