package counters

import "errors"

// Sentinel errors for the counter updater.
var (
	ErrInvalidRecipient = errors.New("recipient is missing campaign or audience user")
	ErrUnsupportedEvent = errors.New("event type has no first-occurrence transition")
)
