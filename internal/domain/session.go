package domain

import (
	"strings"
	"time"
)

// Session is one anonymous browsing session. The session_id is generated by
// the client; the backend only persists it.
type Session struct {
	SessionID    string    `json:"session_id" db:"session_id"`
	UserID       *string   `json:"user_id,omitempty" db:"user_id"`
	UserAgent    string    `json:"user_agent" db:"user_agent"`
	PageViews    int64     `json:"page_views" db:"page_views"`
	TotalSeconds int64     `json:"total_seconds" db:"total_seconds"`
	Country      *string   `json:"country,omitempty" db:"country"`
	City         *string   `json:"city,omitempty" db:"city"`
	LastActiveAt time.Time `json:"last_active_at" db:"last_active_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// HeartbeatKind distinguishes page-view heartbeats from keep-alive pings.
type HeartbeatKind string

const (
	HeartbeatPageView   HeartbeatKind = "pageview"
	HeartbeatPing       HeartbeatKind = "ping"
	HeartbeatVisibility HeartbeatKind = "visibility"
)

// CountsPageView reports whether a heartbeat of this kind advances page_views.
// The zero value is a page view.
func (k HeartbeatKind) CountsPageView() bool {
	return k == "" || k == HeartbeatPageView
}

// Heartbeat is a periodic activity report for a session.
type Heartbeat struct {
	SessionID    string
	UserAgent    string
	UserID       *string
	Kind         HeartbeatKind
	PageViews    *int64
	TotalSeconds *int64
	At           time.Time
}

// Default channel classification for sessions without UTM tags.
const (
	DefaultUTMSource = "direct"
	DefaultUTMMedium = "none"
)

// UtmAttribution captures the acquisition channel of a session. There is at
// most one row per session and the latest write wins.
type UtmAttribution struct {
	SessionID   string    `json:"session_id" db:"session_id"`
	UTMSource   string    `json:"utm_source" db:"utm_source"`
	UTMMedium   string    `json:"utm_medium" db:"utm_medium"`
	UTMCampaign *string   `json:"utm_campaign,omitempty" db:"utm_campaign"`
	UTMContent  *string   `json:"utm_content,omitempty" db:"utm_content"`
	UTMTerm     *string   `json:"utm_term,omitempty" db:"utm_term"`
	LandingPage *string   `json:"landing_page,omitempty" db:"landing_page"`
	Referrer    *string   `json:"referrer,omitempty" db:"referrer"`
	LastSeenAt  time.Time `json:"last_seen_at" db:"last_seen_at"`
}

// Normalize trims every field, turns blank optional fields into nil and
// applies the direct/none channel defaults.
func (a *UtmAttribution) Normalize() {
	a.SessionID = strings.TrimSpace(a.SessionID)
	a.UTMSource = strings.TrimSpace(a.UTMSource)
	a.UTMMedium = strings.TrimSpace(a.UTMMedium)
	if a.UTMSource == "" {
		a.UTMSource = DefaultUTMSource
	}
	if a.UTMMedium == "" {
		a.UTMMedium = DefaultUTMMedium
	}
	for _, p := range []**string{&a.UTMCampaign, &a.UTMContent, &a.UTMTerm, &a.LandingPage, &a.Referrer} {
		*p = blankToNil(*p)
	}
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// GeoLocation is the coarse result of an IP lookup.
type GeoLocation struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// Empty reports whether the lookup produced nothing usable.
func (g GeoLocation) Empty() bool {
	return g.Country == "" && g.City == ""
}
