package enrichment

import (
	"context"
	"time"

	"github.com/ignite/engagement-tracker/internal/domain"
)

// SessionResolver resolves or creates a session without mutating an
// existing row.
type SessionResolver interface {
	ResolveOrCreateSession(ctx context.Context, sessionID, userAgent string, userID *string) (*domain.Session, bool, error)
}

// GeoLookup resolves an IP address to a location.
type GeoLookup interface {
	Lookup(ctx context.Context, ip string) (domain.GeoLocation, error)
}

// SessionRepository writes the activity and geo field sets of a session.
type SessionRepository interface {
	// ApplyHeartbeat advances page_views and total_seconds monotonically,
	// sets user_id if still null and refreshes last_active_at. It never
	// touches country or city.
	ApplyHeartbeat(ctx context.Context, hb domain.Heartbeat) error

	// UpdateGeo overwrites country and city and refreshes last_active_at.
	UpdateGeo(ctx context.Context, sessionID string, loc domain.GeoLocation, at time.Time) error
}

// AttributionRepository persists UTM attribution rows.
type AttributionRepository interface {
	// Upsert inserts a, or overwrites every attribution field of the
	// existing row for the session and advances last_seen_at.
	Upsert(ctx context.Context, a *domain.UtmAttribution) error
}
