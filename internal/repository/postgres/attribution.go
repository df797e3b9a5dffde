package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/engagement-tracker/internal/domain"
)

// AttributionRepo implements enrichment.AttributionRepository against PostgreSQL.
type AttributionRepo struct{ db *sql.DB }

// NewAttributionRepo creates a Postgres-backed attribution repository.
func NewAttributionRepo(db *sql.DB) *AttributionRepo { return &AttributionRepo{db: db} }

// Upsert is last-touch: every attribution field is overwritten, including
// optional fields that the new touch left empty.
func (r *AttributionRepo) Upsert(ctx context.Context, a *domain.UtmAttribution) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO utm_attributions (
			session_id, utm_source, utm_medium, utm_campaign, utm_content, utm_term,
			landing_page, referrer, first_seen_at, last_seen_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (session_id) DO UPDATE SET
			utm_source   = EXCLUDED.utm_source,
			utm_medium   = EXCLUDED.utm_medium,
			utm_campaign = EXCLUDED.utm_campaign,
			utm_content  = EXCLUDED.utm_content,
			utm_term     = EXCLUDED.utm_term,
			landing_page = EXCLUDED.landing_page,
			referrer     = EXCLUDED.referrer,
			last_seen_at = GREATEST(utm_attributions.last_seen_at, EXCLUDED.last_seen_at)
	`, a.SessionID, a.UTMSource, a.UTMMedium, a.UTMCampaign, a.UTMContent, a.UTMTerm,
		a.LandingPage, a.Referrer, a.LastSeenAt)
	if err != nil {
		return fmt.Errorf("upsert utm attribution: %w", err)
	}
	return nil
}
