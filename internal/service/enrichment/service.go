package enrichment

import (
	"context"
	"errors"
	"time"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/geo"
	"github.com/ignite/engagement-tracker/internal/pkg/metrics"
	"github.com/ignite/engagement-tracker/internal/service/identity"
)

// Service runs the session enrichment workers. It holds no per-session
// state; all concurrency control lives in the store.
type Service struct {
	resolver     SessionResolver
	sessions     SessionRepository
	attributions AttributionRepository
	geo          GeoLookup
	metrics      metrics.Recorder
	now          func() time.Time
}

// NewService creates an enrichment service. lookup may be nil, in which case
// geo enrichment always reports lookup_failed.
func NewService(resolver SessionResolver, sessions SessionRepository, attributions AttributionRepository, lookup GeoLookup, rec metrics.Recorder) *Service {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Service{
		resolver:     resolver,
		sessions:     sessions,
		attributions: attributions,
		geo:          lookup,
		metrics:      rec,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) resolve(ctx context.Context, sessionID, userAgent string, userID *string) (*domain.Session, bool, error) {
	sess, created, err := s.resolver.ResolveOrCreateSession(ctx, sessionID, userAgent, userID)
	if errors.Is(err, identity.ErrInvalidToken) {
		return nil, false, ErrInvalidSession
	}
	if err != nil {
		return nil, false, soft(ReasonStoreUnavailable, err)
	}
	return sess, created, nil
}

// Heartbeat records session activity. The first heartbeat for an unknown
// session creates it with page_views = 1; later page-view heartbeats
// increment page_views. total_seconds never decreases.
func (s *Service) Heartbeat(ctx context.Context, hb domain.Heartbeat) error {
	sess, created, err := s.resolve(ctx, hb.SessionID, hb.UserAgent, hb.UserID)
	if err != nil {
		return err
	}
	hb.SessionID = sess.SessionID
	if hb.At.IsZero() {
		hb.At = s.now()
	}
	if hb.PageViews != nil && *hb.PageViews < 0 {
		hb.PageViews = nil
	}
	if hb.TotalSeconds != nil && *hb.TotalSeconds < 0 {
		hb.TotalSeconds = nil
	}

	if created {
		// The insert already counted this page view.
		if hb.TotalSeconds == nil || *hb.TotalSeconds == 0 {
			return nil
		}
		hb.Kind = domain.HeartbeatPing
		hb.PageViews = nil
	}

	if err := s.sessions.ApplyHeartbeat(ctx, hb); err != nil {
		return soft(ReasonStoreUnavailable, err)
	}
	return nil
}

// EnrichGeo resolves clientIP and writes country and city onto the session.
// The lookup runs before the session is resolved, so on any lookup failure
// no session row is created or modified.
func (s *Service) EnrichGeo(ctx context.Context, sessionID, clientIP, userAgent string) (domain.GeoLocation, error) {
	id, err := identity.ValidateToken(sessionID)
	if err != nil {
		return domain.GeoLocation{}, ErrInvalidSession
	}
	if s.geo == nil {
		return domain.GeoLocation{}, soft(ReasonLookupFailed, geo.ErrUnavailable)
	}

	start := time.Now()
	loc, err := s.geo.Lookup(ctx, clientIP)
	if err == nil && loc.Empty() {
		err = geo.ErrNoResult
	}
	reason := geoReason(err)
	s.metrics.RecordGeoLookup(ctx, time.Since(start), reasonOrOK(reason))
	if err != nil {
		return domain.GeoLocation{}, soft(reason, err)
	}

	sess, _, err := s.resolve(ctx, id, userAgent, nil)
	if err != nil {
		return domain.GeoLocation{}, err
	}
	if err := s.sessions.UpdateGeo(ctx, sess.SessionID, loc, s.now()); err != nil {
		return domain.GeoLocation{}, soft(ReasonStoreUnavailable, err)
	}
	return loc, nil
}

func geoReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, geo.ErrPrivateAddress):
		return ReasonPrivateIP
	case errors.Is(err, geo.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonLookupTimeout
	case errors.Is(err, geo.ErrNoResult):
		return ReasonNoResult
	default:
		return ReasonLookupFailed
	}
}

func reasonOrOK(reason string) string {
	if reason == "" {
		return "ok"
	}
	return reason
}

// Attribute records the acquisition channel of a session, last touch wins.
// Missing source and medium default to "direct" and "none".
func (s *Service) Attribute(ctx context.Context, a domain.UtmAttribution, userAgent string) (*domain.UtmAttribution, error) {
	a.Normalize()
	sess, _, err := s.resolve(ctx, a.SessionID, userAgent, nil)
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			return nil, err
		}
		return nil, soft(ReasonNotRecorded, err)
	}
	a.SessionID = sess.SessionID
	a.LastSeenAt = s.now()

	if err := s.attributions.Upsert(ctx, &a); err != nil {
		return nil, soft(ReasonNotRecorded, err)
	}
	return &a, nil
}
