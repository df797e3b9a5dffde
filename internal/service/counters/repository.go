package counters

import (
	"context"
	"time"

	"github.com/ignite/engagement-tracker/internal/domain"
)

// Tx is the set of writes available inside one store transaction.
type Tx interface {
	// MarkOpened sets opened_at if it is null and moves status sent -> opened.
	// It reports whether this call performed the transition.
	MarkOpened(ctx context.Context, recipientID string, at time.Time) (bool, error)

	// MarkClicked sets clicked_at if it is null and moves status to clicked.
	// opened_at is left untouched.
	MarkClicked(ctx context.Context, recipientID string, at time.Time) (bool, error)

	// MarkUnsubscribed flips is_marketing_allowed from true to false and
	// stamps unsubscribed_at. It reports whether the flip happened.
	MarkUnsubscribed(ctx context.Context, audienceUserID string, at time.Time) (bool, error)

	IncrementCampaign(ctx context.Context, campaignID string, c domain.Counter) error
	IncrementAudienceUser(ctx context.Context, audienceUserID string, c domain.Counter) error
}

// Repository runs fn inside a transaction, committing when fn returns nil
// and rolling back otherwise.
type Repository interface {
	WithinTx(ctx context.Context, fn func(Tx) error) error
}
