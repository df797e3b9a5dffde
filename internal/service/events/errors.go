package events

import "errors"

// ErrInvalidEvent is returned for events missing a campaign, recipient, or
// known event type. It is the only reason Record rejects an event.
var ErrInvalidEvent = errors.New("invalid campaign event")
