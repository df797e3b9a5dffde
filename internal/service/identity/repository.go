package identity

import (
	"context"

	"github.com/ignite/engagement-tracker/internal/domain"
)

// SessionRepository persists client-generated sessions.
// Implementations must be safe for concurrent use.
type SessionRepository interface {
	// CreateIfAbsent inserts s unless a session with the same id exists,
	// using the store's conditional insert. It returns the stored row and
	// whether this call created it.
	CreateIfAbsent(ctx context.Context, s *domain.Session) (*domain.Session, bool, error)
}

// RecipientRepository looks up campaign recipients.
type RecipientRepository interface {
	// GetByTrackingID returns ErrNotFound if no recipient carries the token.
	GetByTrackingID(ctx context.Context, trackingID string) (*domain.CampaignRecipient, error)
}
