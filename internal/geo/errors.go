package geo

import "errors"

// Sentinel errors returned by Lookup. Callers map them to soft reason codes.
var (
	ErrPrivateAddress = errors.New("geo: address is not publicly routable")
	ErrTimeout        = errors.New("geo: lookup timed out")
	ErrUnavailable    = errors.New("geo: lookup service unavailable")
	ErrNoResult       = errors.New("geo: no location for address")
)
