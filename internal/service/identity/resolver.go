package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/ignite/engagement-tracker/internal/domain"
)

// MaxTokenLength bounds session and tracking ids.
const MaxTokenLength = 128

// ValidateToken checks that token is non-empty after trimming and bounded.
// Ids are opaque; only invalid UTF-8 and control characters, which the store
// cannot hold as text, are refused. It returns the trimmed token.
func ValidateToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > MaxTokenLength || !utf8.ValidString(token) {
		return "", ErrInvalidToken
	}
	if strings.IndexFunc(token, unicode.IsControl) >= 0 {
		return "", ErrInvalidToken
	}
	return token, nil
}

// Resolver maps opaque identifiers to sessions and recipients.
type Resolver struct {
	sessions   SessionRepository
	recipients RecipientRepository
	now        func() time.Time
}

// NewResolver creates a resolver over the given repositories.
func NewResolver(sessions SessionRepository, recipients RecipientRepository) *Resolver {
	return &Resolver{
		sessions:   sessions,
		recipients: recipients,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ResolveOrCreateSession returns the session with the given id, inserting a
// fresh one (page_views = 1, total_seconds = 0) if none exists. An existing
// session is returned untouched; created reports which case applied.
func (r *Resolver) ResolveOrCreateSession(ctx context.Context, sessionID, userAgent string, userID *string) (*domain.Session, bool, error) {
	id, err := ValidateToken(sessionID)
	if err != nil {
		return nil, false, err
	}
	if userID != nil && strings.TrimSpace(*userID) == "" {
		userID = nil
	}

	now := r.now()
	s, created, err := r.sessions.CreateIfAbsent(ctx, &domain.Session{
		SessionID:    id,
		UserID:       userID,
		UserAgent:    userAgent,
		PageViews:    1,
		TotalSeconds: 0,
		LastActiveAt: now,
		CreatedAt:    now,
	})
	if err != nil {
		return nil, false, fmt.Errorf("resolve session: %w", err)
	}
	return s, created, nil
}

// ResolveRecipient returns the campaign recipient for a tracking id.
// Missing, malformed, and unknown tokens all yield ErrNotFound.
func (r *Resolver) ResolveRecipient(ctx context.Context, trackingID string) (*domain.CampaignRecipient, error) {
	token, err := ValidateToken(trackingID)
	if err != nil {
		return nil, ErrNotFound
	}
	rcpt, err := r.recipients.GetByTrackingID(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve recipient: %w", err)
	}
	return rcpt, nil
}
