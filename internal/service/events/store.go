package events

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ignite/engagement-tracker/internal/domain"
)

// Maximum stored lengths for free-form request metadata.
const (
	maxUserAgentLen = 512
	maxLinkURLLen   = 2048
)

// Store records raw engagement events.
type Store struct {
	repo Repository
	now  func() time.Time
}

// NewStore creates an event store backed by the given repository.
func NewStore(repo Repository) *Store {
	return &Store{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Record validates and appends e, filling its id, device class, and
// timestamp when unset. It returns the new event id.
func (s *Store) Record(ctx context.Context, e domain.CampaignEvent) (string, error) {
	if e.CampaignID == "" || e.RecipientID == "" || !e.EventType.Valid() {
		return "", ErrInvalidEvent
	}
	if e.EventType != domain.EventClick {
		e.LinkURL = ""
	}
	e.ID = uuid.New().String()
	e.UserAgent = truncate(e.UserAgent, maxUserAgentLen)
	e.LinkURL = truncate(e.LinkURL, maxLinkURLLen)
	if e.DeviceType == "" {
		e.DeviceType = domain.ClassifyDevice(e.UserAgent)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	if err := s.repo.Insert(ctx, &e); err != nil {
		return "", fmt.Errorf("record %s event: %w", e.EventType, err)
	}
	return e.ID, nil
}

// HasPriorEvent reports whether the first occurrence of t already happened
// for the recipient.
func (s *Store) HasPriorEvent(ctx context.Context, recipientID string, t domain.EventType) (bool, error) {
	if recipientID == "" || !t.Valid() {
		return false, ErrInvalidEvent
	}
	return s.repo.HasPriorEvent(ctx, recipientID, t)
}

// truncate trims s, replaces invalid UTF-8 and cuts it to at most n bytes
// without splitting a rune. The store rejects invalid UTF-8 text.
func truncate(s string, n int) string {
	s = strings.TrimSpace(strings.ToValidUTF8(s, "\uFFFD"))
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
