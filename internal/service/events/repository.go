package events

import (
	"context"

	"github.com/ignite/engagement-tracker/internal/domain"
)

// Repository defines the data access contract for the event log.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Insert appends one event row. It never deduplicates.
	Insert(ctx context.Context, e *domain.CampaignEvent) error

	// HasPriorEvent reports whether the recipient already passed the
	// first occurrence of t: opened_at / clicked_at IS NOT NULL, or the
	// audience user already opted out for unsubscribe.
	HasPriorEvent(ctx context.Context, recipientID string, t domain.EventType) (bool, error)
}
