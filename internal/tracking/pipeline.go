package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
	"github.com/ignite/engagement-tracker/internal/pkg/metrics"
	"github.com/ignite/engagement-tracker/internal/service/identity"
)

// Outcome reason codes.
const (
	ReasonOK                = "ok"
	ReasonUnknownTrackingID = "unknown_tracking_id"
	ReasonStoreUnavailable  = "store_unavailable"
	ReasonInternalError     = "internal_error"
)

// RecipientResolver maps a tracking id to its campaign recipient.
type RecipientResolver interface {
	ResolveRecipient(ctx context.Context, trackingID string) (*domain.CampaignRecipient, error)
}

// EventRecorder appends to the raw event log.
type EventRecorder interface {
	Record(ctx context.Context, e domain.CampaignEvent) (string, error)
	HasPriorEvent(ctx context.Context, recipientID string, t domain.EventType) (bool, error)
}

// CounterUpdater applies the gated first-occurrence transition.
type CounterUpdater interface {
	OnFirstOccurrence(ctx context.Context, rcpt *domain.CampaignRecipient, t domain.EventType) (bool, error)
}

// Outcome is the captured result of processing one hit. It never turns into
// an error on the response path.
type Outcome struct {
	Reason          string
	FirstOccurrence bool
	// Retryable is set when the hit may be redelivered: nothing durable
	// happened, or only the idempotent parts did.
	Retryable bool
	Err       error
}

// OK reports whether the hit was fully applied.
func (o Outcome) OK() bool { return o.Reason == ReasonOK }

// Pipeline resolves a hit's recipient, logs the raw event and gates the
// aggregate counters. Every failure is captured into the Outcome.
type Pipeline struct {
	recipients RecipientResolver
	events     EventRecorder
	counters   CounterUpdater
	metrics    metrics.Recorder
}

// NewPipeline creates a pipeline. rec may be nil.
func NewPipeline(recipients RecipientResolver, events EventRecorder, counters CounterUpdater, rec metrics.Recorder) *Pipeline {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Pipeline{recipients: recipients, events: events, counters: counters, metrics: rec}
}

// Process runs hit through the pipeline.
func (p *Pipeline) Process(ctx context.Context, hit domain.Hit) (out Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			p.metrics.RecordFailure(ctx, "panic")
			logger.Error("tracking pipeline panic", "event_type", hit.EventType, "panic", fmt.Sprint(rec))
			out = Outcome{Reason: ReasonInternalError, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	rcpt, err := p.recipients.ResolveRecipient(ctx, hit.TrackingID)
	if errors.Is(err, identity.ErrNotFound) {
		return Outcome{Reason: ReasonUnknownTrackingID, Err: err}
	}
	if err != nil {
		p.metrics.RecordFailure(ctx, "resolve")
		return Outcome{Reason: ReasonStoreUnavailable, Retryable: true, Err: err}
	}

	at := hit.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if _, err := p.events.Record(ctx, domain.CampaignEvent{
		CampaignID:     rcpt.CampaignID,
		RecipientID:    rcpt.ID,
		AudienceUserID: rcpt.AudienceUserID,
		EventType:      hit.EventType,
		LinkURL:        hit.LinkURL,
		UserAgent:      hit.UserAgent,
		IPAddress:      hit.IPAddress,
		CreatedAt:      at,
	}); err != nil {
		// The raw log is best effort; gating still runs.
		p.metrics.RecordFailure(ctx, "record")
		logger.Warn("campaign event not recorded", "event_type", hit.EventType, "recipient_id", rcpt.ID, "error", err)
	}

	prior, err := p.events.HasPriorEvent(ctx, rcpt.ID, hit.EventType)
	if err != nil {
		logger.Debug("prior event check failed", "event_type", hit.EventType, "error", err)
	} else if prior {
		return Outcome{Reason: ReasonOK}
	}

	won, err := p.counters.OnFirstOccurrence(ctx, rcpt, hit.EventType)
	if err != nil {
		p.metrics.RecordFailure(ctx, "counters")
		return Outcome{Reason: ReasonStoreUnavailable, Retryable: true, Err: err}
	}
	if won {
		p.metrics.RecordFirstOccurrence(ctx, string(hit.EventType))
	}
	return Outcome{Reason: ReasonOK, FirstOccurrence: won}
}
