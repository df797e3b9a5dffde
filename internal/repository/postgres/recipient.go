package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/service/identity"
)

// RecipientRepo implements identity.RecipientRepository against PostgreSQL.
type RecipientRepo struct{ db *sql.DB }

// NewRecipientRepo creates a Postgres-backed recipient repository.
func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

func (r *RecipientRepo) GetByTrackingID(ctx context.Context, trackingID string) (*domain.CampaignRecipient, error) {
	var (
		rc                  domain.CampaignRecipient
		audienceID, email   sql.NullString
		openedAt, clickedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tracking_id, campaign_id, audience_user_id, email, status, opened_at, clicked_at
		FROM campaign_recipients
		WHERE tracking_id = $1
	`, trackingID).Scan(
		&rc.ID, &rc.TrackingID, &rc.CampaignID, &audienceID, &email, &rc.Status, &openedAt, &clickedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient: %w", err)
	}
	rc.AudienceUserID = audienceID.String
	rc.Email = email.String
	rc.OpenedAt = timePtr(openedAt)
	rc.ClickedAt = timePtr(clickedAt)
	return &rc, nil
}
