package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/engagement-tracker/internal/domain"
)

// SessionRepo implements identity.SessionRepository and
// enrichment.SessionRepository against PostgreSQL.
type SessionRepo struct{ db *sql.DB }

// NewSessionRepo creates a Postgres-backed session repository.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

func (r *SessionRepo) CreateIfAbsent(ctx context.Context, s *domain.Session) (*domain.Session, bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (session_id, user_id, user_agent, page_views, total_seconds, last_active_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO NOTHING
		RETURNING session_id
	`, s.SessionID, s.UserID, s.UserAgent, s.PageViews, s.TotalSeconds, s.LastActiveAt, s.CreatedAt).Scan(&id)
	if err == nil {
		cp := *s
		return &cp, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("create session: %w", err)
	}

	existing, err := r.get(ctx, s.SessionID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *SessionRepo) get(ctx context.Context, sessionID string) (*domain.Session, error) {
	var (
		s                     domain.Session
		userID, country, city sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT session_id, user_id, COALESCE(user_agent, ''), page_views, total_seconds,
		       country, city, last_active_at, created_at
		FROM sessions
		WHERE session_id = $1
	`, sessionID).Scan(
		&s.SessionID, &userID, &s.UserAgent, &s.PageViews, &s.TotalSeconds,
		&country, &city, &s.LastActiveAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.UserID = stringPtr(userID)
	s.Country = stringPtr(country)
	s.City = stringPtr(city)
	return &s, nil
}

// ApplyHeartbeat touches only the activity fields. A supplied page count is
// merged with GREATEST; otherwise a page-view heartbeat adds one.
func (r *SessionRepo) ApplyHeartbeat(ctx context.Context, hb domain.Heartbeat) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			page_views = CASE
				WHEN $3::bigint IS NOT NULL THEN GREATEST(page_views, $3::bigint)
				WHEN $2::boolean THEN page_views + 1
				ELSE page_views
			END,
			total_seconds  = GREATEST(total_seconds, COALESCE($4::bigint, 0)),
			user_id        = COALESCE(user_id, $5),
			user_agent     = COALESCE(NULLIF($6, ''), user_agent),
			last_active_at = GREATEST(last_active_at, $7)
		WHERE session_id = $1
	`, hb.SessionID, hb.Kind.CountsPageView(), hb.PageViews, hb.TotalSeconds, hb.UserID, hb.UserAgent, hb.At)
	if err != nil {
		return fmt.Errorf("apply heartbeat: %w", err)
	}
	return nil
}

// UpdateGeo touches only country, city and last_active_at.
func (r *SessionRepo) UpdateGeo(ctx context.Context, sessionID string, loc domain.GeoLocation, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			country        = NULLIF($2, ''),
			city           = NULLIF($3, ''),
			last_active_at = GREATEST(last_active_at, $4)
		WHERE session_id = $1
	`, sessionID, loc.Country, loc.City, at)
	if err != nil {
		return fmt.Errorf("update session geo: %w", err)
	}
	return nil
}
