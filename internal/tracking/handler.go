// Package tracking hosts the delivery adapters: the open pixel, the click
// redirect, the unsubscribe page and the session telemetry endpoints.
//
// Every adapter writes its fixed response shape whatever happens inside the
// pipeline. Failures are logged and counted, never surfaced to the client
// except as the in-band reason of the JSON telemetry acks.
package tracking

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
	"github.com/ignite/engagement-tracker/internal/pkg/metrics"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21,
	0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00,
	0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44,
	0x01, 0x00, 0x3b,
}

// Options configures the adapters.
type Options struct {
	FallbackURL    string
	RequestTimeout time.Duration
	// Queued defers open and click hits to the Publisher.
	Queued         bool
	AllowedOrigins []string
}

// Deps are the collaborators of a Handler. Publisher, Health and Metrics
// may be nil.
type Deps struct {
	Pipeline  Processor
	Enricher  Enricher
	Publisher Publisher
	Pages     *Pages
	Health    *HealthChecker
	Metrics   metrics.Recorder
}

type Handler struct {
	pipeline  Processor
	enricher  Enricher
	publisher Publisher
	pages     *Pages
	health    *HealthChecker
	metrics   metrics.Recorder
	opts      Options
}

func NewHandler(d Deps, opts Options) *Handler {
	if d.Pages == nil {
		d.Pages = DefaultPages()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Noop{}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Second
	}
	if opts.FallbackURL == "" {
		opts.FallbackURL = "/"
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Handler{
		pipeline:  d.Pipeline,
		enricher:  d.Enricher,
		publisher: d.Publisher,
		pages:     d.Pages,
		health:    d.Health,
		metrics:   d.Metrics,
		opts:      opts,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/track/open", h.HandleOpen)
	r.Get("/track/click", h.HandleClick)
	r.Get("/track/unsubscribe", h.HandleUnsubscribe)
	r.Post("/track/unsubscribe", h.HandleOneClickUnsubscribe)

	r.Route("/api/telemetry", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.opts.AllowedOrigins,
			AllowedMethods: []string{"POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Post("/heartbeat", h.HandleHeartbeat)
		r.Post("/geo", h.HandleGeo)
		r.Post("/utm", h.HandleUTM)
	})

	r.Get("/health", h.HandleHealth)
	r.Get("/health/ready", h.HandleReadiness)
	return r
}

func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	hit := newHit(r, domain.EventOpen)
	h.dispatch(r, "open", hit, h.opts.Queued)
	servePixel(w)
}

// HandleClick redirects to the target only once the tracking id resolves;
// a missing or unknown id sends the caller to the fallback URL. Clicks that
// carry a target are therefore processed inline even in queued mode.
func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	target, ok := clickTarget(r.URL.Query().Get("url"))
	hit := newHit(r, domain.EventClick)
	if ok {
		hit.LinkURL = target
	}
	out := h.dispatch(r, "click", hit, h.opts.Queued && !ok)
	if !ok || out.Reason == ReasonUnknownTrackingID {
		target = h.opts.FallbackURL
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleUnsubscribe always runs inline: the page has to describe the outcome.
func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	out := h.dispatch(r, "unsubscribe", newHit(r, domain.EventUnsubscribe), false)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.pages.Render(out)))
}

// HandleOneClickUnsubscribe serves List-Unsubscribe-Post requests (RFC 8058).
func (h *Handler) HandleOneClickUnsubscribe(w http.ResponseWriter, r *http.Request) {
	h.dispatch(r, "one_click_unsubscribe", newHit(r, domain.EventUnsubscribe), false)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}

// dispatch processes hit inline, or hands it to the publisher when queued.
// The returned outcome is only meaningful for inline processing.
func (h *Handler) dispatch(r *http.Request, adapter string, hit domain.Hit, queued bool) Outcome {
	if hit.TrackingID == "" {
		h.metrics.RecordHit(r.Context(), adapter, ReasonUnknownTrackingID)
		return Outcome{Reason: ReasonUnknownTrackingID}
	}

	if queued && h.publisher != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.opts.RequestTimeout)
		err := h.publisher.Publish(pubCtx, hit)
		cancel()
		if err == nil {
			h.metrics.RecordHit(r.Context(), adapter, "queued")
			return Outcome{Reason: ReasonOK}
		}
		logger.Warn("queueing hit failed, processing inline", "adapter", adapter, "error", err)
	}

	// The client may hang up early; finish the work within our own deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.opts.RequestTimeout)
	defer cancel()

	out := h.pipeline.Process(ctx, hit)
	h.metrics.RecordHit(r.Context(), adapter, out.Reason)
	switch {
	case out.Reason == ReasonUnknownTrackingID:
		logger.Debug("unknown tracking id", "adapter", adapter, "tracking_id", hit.TrackingID)
	case !out.OK():
		logger.Warn("tracking hit not applied",
			"adapter", adapter,
			"event_type", hit.EventType,
			"reason", out.Reason,
			"tracking_id", hit.TrackingID,
			"error", out.Err,
		)
	}
	return out
}

func newHit(r *http.Request, t domain.EventType) domain.Hit {
	return domain.Hit{
		EventType:  t,
		TrackingID: strings.TrimSpace(r.URL.Query().Get("t")),
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
		Timestamp:  time.Now().UTC(),
	}
}

// clickTarget accepts only absolute http(s) URLs.
func clickTarget(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.String(), true
	}
	return "", false
}

func servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	w.Write(pixelGIF)
}

// clientIP returns the caller address. middleware.RealIP has already
// promoted X-Forwarded-For / X-Real-IP into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
