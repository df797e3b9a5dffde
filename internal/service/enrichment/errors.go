package enrichment

import (
	"errors"
	"fmt"
)

// ErrInvalidSession is returned when the session id is missing or malformed.
// It is the only enrichment failure callers may surface as a client error.
var ErrInvalidSession = errors.New("invalid session id")

// Reason codes reported in-band to telemetry callers.
const (
	ReasonInvalidSession   = "invalid_session"
	ReasonPrivateIP        = "private_ip"
	ReasonLookupTimeout    = "lookup_timeout"
	ReasonLookupFailed     = "lookup_failed"
	ReasonNoResult         = "no_result"
	ReasonStoreUnavailable = "store_unavailable"
	ReasonNotRecorded      = "not_recorded"
)

// SoftError is a failure that leaves the session untouched and is reported
// to the caller as {success:false, reason}.
type SoftError struct {
	Reason string
	Err    error
}

func (e *SoftError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *SoftError) Unwrap() error { return e.Err }

func soft(reason string, err error) error {
	return &SoftError{Reason: reason, Err: err}
}

// ReasonOf returns the reason code carried by err, or "" for nil.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrInvalidSession) {
		return ReasonInvalidSession
	}
	var se *SoftError
	if errors.As(err, &se) {
		return se.Reason
	}
	return ReasonStoreUnavailable
}
