package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/engagement-tracker/internal/domain"
)

// EventRepo implements events.Repository against PostgreSQL.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed event log.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Insert(ctx context.Context, e *domain.CampaignEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_events (
			id, campaign_id, recipient_id, audience_user_id, event_type,
			link_url, user_agent, ip_address, device_type, created_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9, $10)
	`, e.ID, e.CampaignID, e.RecipientID, e.AudienceUserID, e.EventType,
		e.LinkURL, e.UserAgent, e.IPAddress, e.DeviceType, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert campaign event: %w", err)
	}
	return nil
}

var priorEventQueries = map[domain.EventType]string{
	domain.EventOpen:  `SELECT opened_at IS NOT NULL FROM campaign_recipients WHERE id = $1`,
	domain.EventClick: `SELECT clicked_at IS NOT NULL FROM campaign_recipients WHERE id = $1`,
	domain.EventUnsubscribe: `
		SELECT NOT au.is_marketing_allowed
		FROM campaign_recipients cr
		JOIN audience_users au ON au.id = cr.audience_user_id
		WHERE cr.id = $1`,
}

// HasPriorEvent reads the recipient's terminal fields, not the event log.
func (r *EventRepo) HasPriorEvent(ctx context.Context, recipientID string, t domain.EventType) (bool, error) {
	q, ok := priorEventQueries[t]
	if !ok {
		return false, fmt.Errorf("unknown event type %q", t)
	}
	var prior bool
	err := r.db.QueryRowContext(ctx, q, recipientID).Scan(&prior)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check prior %s: %w", t, err)
	}
	return prior, nil
}
