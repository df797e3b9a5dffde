package domain

import "time"

// RecipientStatus is the per-recipient engagement state. It only moves
// forward in the order sent < opened < clicked.
type RecipientStatus string

const (
	RecipientSent    RecipientStatus = "sent"
	RecipientOpened  RecipientStatus = "opened"
	RecipientClicked RecipientStatus = "clicked"
)

var statusRank = map[RecipientStatus]int{
	RecipientSent:    1,
	RecipientOpened:  2,
	RecipientClicked: 3,
}

// Rank returns the position of s in the forward ordering; unknown statuses rank 0.
func (s RecipientStatus) Rank() int { return statusRank[s] }

// Advance returns the later of s and next. A status never regresses.
func (s RecipientStatus) Advance(next RecipientStatus) RecipientStatus {
	if next.Rank() > s.Rank() {
		return next
	}
	return s
}

// StatusFor maps a gated event type to the status it advances a recipient to.
// Unsubscribe does not affect recipient status.
func StatusFor(t EventType) (RecipientStatus, bool) {
	switch t {
	case EventOpen:
		return RecipientOpened, true
	case EventClick:
		return RecipientClicked, true
	}
	return "", false
}

// CampaignRecipient pairs a campaign with one addressable contact. Rows are
// created by the send pipeline; this subsystem only reads and advances them.
type CampaignRecipient struct {
	ID             string          `json:"id" db:"id"`
	TrackingID     string          `json:"tracking_id" db:"tracking_id"`
	CampaignID     string          `json:"campaign_id" db:"campaign_id"`
	AudienceUserID string          `json:"audience_user_id" db:"audience_user_id"`
	Email          string          `json:"email" db:"email"`
	Status         RecipientStatus `json:"status" db:"status"`
	OpenedAt       *time.Time      `json:"opened_at,omitempty" db:"opened_at"`
	ClickedAt      *time.Time      `json:"clicked_at,omitempty" db:"clicked_at"`
}

// Counter names a derived running total on a campaign or audience user.
type Counter string

const (
	CounterOpens        Counter = "opens"
	CounterClicks       Counter = "clicks"
	CounterUnsubscribes Counter = "unsubscribes"
)

// CounterFor maps an event type to its aggregate counter.
func CounterFor(t EventType) Counter {
	switch t {
	case EventOpen:
		return CounterOpens
	case EventClick:
		return CounterClicks
	default:
		return CounterUnsubscribes
	}
}

// CampaignStats holds the campaign-level aggregate counters.
type CampaignStats struct {
	CampaignID       string `json:"campaign_id" db:"id"`
	OpenCount        int64  `json:"open_count" db:"open_count"`
	ClickCount       int64  `json:"click_count" db:"click_count"`
	UnsubscribeCount int64  `json:"unsubscribe_count" db:"unsubscribe_count"`
}

// AudienceUser is the addressable contact behind a recipient. Only the
// engagement and consent fields touched by this subsystem are modelled.
type AudienceUser struct {
	ID                 string     `json:"id" db:"id"`
	Email              string     `json:"email" db:"email"`
	IsMarketingAllowed bool       `json:"is_marketing_allowed" db:"is_marketing_allowed"`
	UnsubscribedAt     *time.Time `json:"unsubscribed_at,omitempty" db:"unsubscribed_at"`
	Opens              int64      `json:"opens" db:"opens"`
	Clicks             int64      `json:"clicks" db:"clicks"`
}
