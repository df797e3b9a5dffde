package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/service/counters"
	"github.com/ignite/engagement-tracker/internal/service/events"
	"github.com/ignite/engagement-tracker/internal/service/identity"
)

// memStore backs the recipient, event and counter repositories with one
// mutex, standing in for the relational store.
type memStore struct {
	mu         sync.Mutex
	recipients map[string]*domain.CampaignRecipient // keyed by tracking id
	users      map[string]*domain.AudienceUser
	campaigns  map[string]*domain.CampaignStats
	events     []domain.CampaignEvent
	writes     int
	failTx     error
	failLookup error
}

func newMemStore() *memStore {
	return &memStore{
		recipients: map[string]*domain.CampaignRecipient{
			"tok-1": {ID: "r-1", TrackingID: "tok-1", CampaignID: "c-1", AudienceUserID: "u-1", Status: domain.RecipientSent},
		},
		users:     map[string]*domain.AudienceUser{"u-1": {ID: "u-1", IsMarketingAllowed: true}},
		campaigns: map[string]*domain.CampaignStats{"c-1": {CampaignID: "c-1"}},
	}
}

func (m *memStore) pipeline() *Pipeline {
	resolver := identity.NewResolver(nil, m)
	return NewPipeline(resolver, events.NewStore(m), counters.NewUpdater(m), nil)
}

func (m *memStore) byID(id string) *domain.CampaignRecipient {
	for _, r := range m.recipients {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (m *memStore) GetByTrackingID(_ context.Context, token string) (*domain.CampaignRecipient, error) {
	if m.failLookup != nil {
		return nil, m.failLookup
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[token]
	if !ok {
		return nil, identity.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) Insert(_ context.Context, e *domain.CampaignEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	m.writes++
	return nil
}

func (m *memStore) HasPriorEvent(_ context.Context, recipientID string, t domain.EventType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.byID(recipientID)
	if r == nil {
		return false, nil
	}
	switch t {
	case domain.EventOpen:
		return r.OpenedAt != nil, nil
	case domain.EventClick:
		return r.ClickedAt != nil, nil
	default:
		return !m.users[r.AudienceUserID].IsMarketingAllowed, nil
	}
}

func (m *memStore) WithinTx(_ context.Context, fn func(counters.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTx != nil {
		return m.failTx
	}
	tx := &memTx{m: m}
	if err := fn(tx); err != nil {
		return err
	}
	for _, apply := range tx.pending {
		apply()
	}
	return nil
}

func (m *memStore) snapshot() (domain.CampaignRecipient, domain.AudienceUser, domain.CampaignStats, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.recipients["tok-1"], *m.users["u-1"], *m.campaigns["c-1"], len(m.events)
}

func (m *memStore) loggedEvents() []domain.CampaignEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CampaignEvent(nil), m.events...)
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

type memTx struct {
	m       *memStore
	pending []func()
}

func (t *memTx) MarkOpened(_ context.Context, id string, at time.Time) (bool, error) {
	r := t.m.byID(id)
	if r == nil || r.OpenedAt != nil {
		return false, nil
	}
	t.pending = append(t.pending, func() {
		r.OpenedAt = &at
		r.Status = r.Status.Advance(domain.RecipientOpened)
		t.m.writes++
	})
	return true, nil
}

func (t *memTx) MarkClicked(_ context.Context, id string, at time.Time) (bool, error) {
	r := t.m.byID(id)
	if r == nil || r.ClickedAt != nil {
		return false, nil
	}
	t.pending = append(t.pending, func() {
		r.ClickedAt = &at
		r.Status = domain.RecipientClicked
		t.m.writes++
	})
	return true, nil
}

func (t *memTx) MarkUnsubscribed(_ context.Context, id string, at time.Time) (bool, error) {
	u := t.m.users[id]
	if u == nil || !u.IsMarketingAllowed {
		return false, nil
	}
	t.pending = append(t.pending, func() {
		u.IsMarketingAllowed = false
		u.UnsubscribedAt = &at
		t.m.writes++
	})
	return true, nil
}

func (t *memTx) IncrementCampaign(_ context.Context, id string, c domain.Counter) error {
	s := t.m.campaigns[id]
	if s == nil {
		return errors.New("no campaign")
	}
	t.pending = append(t.pending, func() {
		switch c {
		case domain.CounterOpens:
			s.OpenCount++
		case domain.CounterClicks:
			s.ClickCount++
		case domain.CounterUnsubscribes:
			s.UnsubscribeCount++
		}
	})
	return nil
}

func (t *memTx) IncrementAudienceUser(_ context.Context, id string, c domain.Counter) error {
	u := t.m.users[id]
	t.pending = append(t.pending, func() {
		switch c {
		case domain.CounterOpens:
			u.Opens++
		case domain.CounterClicks:
			u.Clicks++
		}
	})
	return nil
}
