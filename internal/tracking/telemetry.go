package tracking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/pkg/httputil"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
	"github.com/ignite/engagement-tracker/internal/service/enrichment"
)

const reasonInvalidPayload = "invalid_payload"

// Enricher applies session telemetry.
type Enricher interface {
	Heartbeat(ctx context.Context, hb domain.Heartbeat) error
	EnrichGeo(ctx context.Context, sessionID, clientIP, userAgent string) (domain.GeoLocation, error)
	Attribute(ctx context.Context, a domain.UtmAttribution, userAgent string) (*domain.UtmAttribution, error)
}

type heartbeatRequest struct {
	SessionID    string  `json:"session_id"`
	UserAgent    string  `json:"user_agent"`
	UserID       *string `json:"user_id"`
	Kind         string  `json:"kind"`
	PageViews    *int64  `json:"page_views"`
	TotalSeconds *int64  `json:"total_seconds"`
}

type geoRequest struct {
	SessionID string `json:"session_id"`
	UserAgent string `json:"user_agent"`
}

type utmRequest struct {
	SessionID   string  `json:"session_id"`
	UTMSource   string  `json:"utm_source"`
	UTMMedium   string  `json:"utm_medium"`
	UTMCampaign *string `json:"utm_campaign"`
	UTMContent  *string `json:"utm_content"`
	UTMTerm     *string `json:"utm_term"`
	LandingPage *string `json:"landing_page"`
	Referrer    *string `json:"referrer"`
	UserAgent   string  `json:"user_agent"`
}

// HandleHeartbeat records session activity.
//
//	POST /api/telemetry/heartbeat
func (h *Handler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.Reject(w, reasonInvalidPayload)
		return
	}

	kind := domain.HeartbeatKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	switch kind {
	case "", domain.HeartbeatPageView, domain.HeartbeatPing, domain.HeartbeatVisibility:
	default:
		kind = domain.HeartbeatPing
	}

	h.apply(w, r, "heartbeat", func(ctx context.Context) error {
		return h.enricher.Heartbeat(ctx, domain.Heartbeat{
			SessionID:    req.SessionID,
			UserAgent:    userAgent(req.UserAgent, r),
			UserID:       req.UserID,
			Kind:         kind,
			PageViews:    req.PageViews,
			TotalSeconds: req.TotalSeconds,
		})
	})
}

// HandleGeo enriches the session with the caller's coarse location.
//
//	POST /api/telemetry/geo
func (h *Handler) HandleGeo(w http.ResponseWriter, r *http.Request) {
	var req geoRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.Reject(w, reasonInvalidPayload)
		return
	}

	h.apply(w, r, "geo", func(ctx context.Context) error {
		_, err := h.enricher.EnrichGeo(ctx, req.SessionID, clientIP(r), userAgent(req.UserAgent, r))
		return err
	})
}

// HandleUTM records the session's acquisition channel.
//
//	POST /api/telemetry/utm
func (h *Handler) HandleUTM(w http.ResponseWriter, r *http.Request) {
	var req utmRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.Reject(w, reasonInvalidPayload)
		return
	}

	h.apply(w, r, "utm", func(ctx context.Context) error {
		_, err := h.enricher.Attribute(ctx, domain.UtmAttribution{
			SessionID:   req.SessionID,
			UTMSource:   req.UTMSource,
			UTMMedium:   req.UTMMedium,
			UTMCampaign: req.UTMCampaign,
			UTMContent:  req.UTMContent,
			UTMTerm:     req.UTMTerm,
			LandingPage: req.LandingPage,
			Referrer:    req.Referrer,
		}, userAgent(req.UserAgent, r))
		return err
	})
}

// apply runs fn under the request deadline and acks its result. A panic is
// reported in-band like any other failure.
func (h *Handler) apply(w http.ResponseWriter, r *http.Request, adapter string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.opts.RequestTimeout)
	defer cancel()
	h.ack(w, r, adapter, h.run(ctx, fn))
}

func (h *Handler) run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &enrichment.SoftError{Reason: ReasonInternalError, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	return fn(ctx)
}

// ack maps an enrichment result onto the telemetry response contract: a
// malformed session id is the only 4xx, everything else is a 200.
func (h *Handler) ack(w http.ResponseWriter, r *http.Request, adapter string, err error) {
	if err == nil {
		h.metrics.RecordHit(r.Context(), adapter, ReasonOK)
		httputil.Ack(w, true, "")
		return
	}
	reason := enrichment.ReasonOf(err)
	h.metrics.RecordHit(r.Context(), adapter, reason)
	if errors.Is(err, enrichment.ErrInvalidSession) {
		httputil.Reject(w, reason)
		return
	}

	switch reason {
	case enrichment.ReasonPrivateIP, enrichment.ReasonNoResult:
		logger.Debug("telemetry not applied", "adapter", adapter, "reason", reason)
	default:
		h.metrics.RecordFailure(r.Context(), adapter)
		logger.Warn("telemetry not applied", "adapter", adapter, "reason", reason, "error", err)
	}
	httputil.Ack(w, false, reason)
}

func userAgent(supplied string, r *http.Request) string {
	if ua := strings.TrimSpace(supplied); ua != "" {
		return ua
	}
	return r.UserAgent()
}
