package counters

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/engagement-tracker/internal/domain"
)

// Updater applies first-occurrence transitions and their counter increments.
type Updater struct {
	repo Repository
	now  func() time.Time
}

// NewUpdater creates an updater backed by the given repository.
func NewUpdater(repo Repository) *Updater {
	return &Updater{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// OnFirstOccurrence performs the gated transition for t on rcpt. It returns
// true only for the single caller whose conditional update affected the row;
// every other caller gets false and no counter moves.
func (u *Updater) OnFirstOccurrence(ctx context.Context, rcpt *domain.CampaignRecipient, t domain.EventType) (bool, error) {
	if rcpt == nil || rcpt.ID == "" || rcpt.CampaignID == "" {
		return false, ErrInvalidRecipient
	}
	if t == domain.EventUnsubscribe && rcpt.AudienceUserID == "" {
		return false, ErrInvalidRecipient
	}
	if !t.Valid() {
		return false, ErrUnsupportedEvent
	}

	at := u.now()
	counter := domain.CounterFor(t)
	var won bool

	err := u.repo.WithinTx(ctx, func(tx Tx) error {
		var err error
		switch t {
		case domain.EventOpen:
			won, err = tx.MarkOpened(ctx, rcpt.ID, at)
		case domain.EventClick:
			won, err = tx.MarkClicked(ctx, rcpt.ID, at)
		case domain.EventUnsubscribe:
			won, err = tx.MarkUnsubscribed(ctx, rcpt.AudienceUserID, at)
		}
		if err != nil || !won {
			return err
		}

		if err := tx.IncrementCampaign(ctx, rcpt.CampaignID, counter); err != nil {
			return err
		}
		// Audience users only track opens and clicks.
		if t != domain.EventUnsubscribe && rcpt.AudienceUserID != "" {
			if err := tx.IncrementAudienceUser(ctx, rcpt.AudienceUserID, counter); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("first %s for recipient %s: %w", t, rcpt.ID, err)
	}
	return won, nil
}
