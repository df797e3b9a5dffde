package domain

import (
	"strings"
	"time"
)

// EventType enumerates the campaign engagement events recorded by the pipeline.
type EventType string

const (
	EventOpen        EventType = "open"
	EventClick       EventType = "click"
	EventUnsubscribe EventType = "unsubscribe"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventOpen, EventClick, EventUnsubscribe:
		return true
	}
	return false
}

// DeviceType is the coarse device class derived from a User-Agent.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
)

// ClassifyDevice derives a device class from a User-Agent string by
// case-insensitive substring match. Any mobile marker makes the agent
// non-desktop; among those, ipad/tablet win over mobile.
func ClassifyDevice(userAgent string) DeviceType {
	ua := strings.ToLower(userAgent)
	if !containsAny(ua, "mobile", "android", "iphone", "ipad") {
		return DeviceDesktop
	}
	if containsAny(ua, "ipad", "tablet") {
		return DeviceTablet
	}
	return DeviceMobile
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// CampaignEvent is one raw engagement log row. One row is written per
// physical request; the log is never deduplicated.
type CampaignEvent struct {
	ID             string     `json:"id" db:"id"`
	CampaignID     string     `json:"campaign_id" db:"campaign_id"`
	RecipientID    string     `json:"recipient_id" db:"recipient_id"`
	AudienceUserID string     `json:"audience_user_id" db:"audience_user_id"`
	EventType      EventType  `json:"event_type" db:"event_type"`
	LinkURL        string     `json:"link_url,omitempty" db:"link_url"`
	UserAgent      string     `json:"user_agent,omitempty" db:"user_agent"`
	IPAddress      string     `json:"ip_address,omitempty" db:"ip_address"`
	DeviceType     DeviceType `json:"device_type" db:"device_type"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// Hit is a single inbound tracking request after transport decoding. It is
// the unit that adapters hand to the pipeline and that the queued delivery
// mode serializes onto the wire.
type Hit struct {
	EventType  EventType `json:"event_type"`
	TrackingID string    `json:"tracking_id"`
	LinkURL    string    `json:"link_url,omitempty"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	Timestamp  time.Time `json:"timestamp"`
}
