package enrichment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/geo"
	"github.com/ignite/engagement-tracker/internal/service/enrichment"
	"github.com/ignite/engagement-tracker/internal/service/identity"
)

// memStore implements the session and attribution repositories in memory.
type memStore struct {
	mu           sync.Mutex
	sessions     map[string]*domain.Session
	attributions map[string]*domain.UtmAttribution
	failWrites   error
	failCreate   error
}

func newMemStore() *memStore {
	return &memStore{
		sessions:     make(map[string]*domain.Session),
		attributions: make(map[string]*domain.UtmAttribution),
	}
}

func (m *memStore) CreateIfAbsent(_ context.Context, s *domain.Session) (*domain.Session, bool, error) {
	if m.failCreate != nil {
		return nil, false, m.failCreate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[s.SessionID]; ok {
		cp := *cur
		return &cp, false, nil
	}
	cp := *s
	m.sessions[s.SessionID] = &cp
	out := cp
	return &out, true, nil
}

func (m *memStore) ApplyHeartbeat(_ context.Context, hb domain.Heartbeat) error {
	if m.failWrites != nil {
		return m.failWrites
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[hb.SessionID]
	switch {
	case hb.PageViews != nil:
		if *hb.PageViews > s.PageViews {
			s.PageViews = *hb.PageViews
		}
	case hb.Kind.CountsPageView():
		s.PageViews++
	}
	if hb.TotalSeconds != nil && *hb.TotalSeconds > s.TotalSeconds {
		s.TotalSeconds = *hb.TotalSeconds
	}
	if s.UserID == nil {
		s.UserID = hb.UserID
	}
	s.LastActiveAt = hb.At
	return nil
}

func (m *memStore) UpdateGeo(_ context.Context, id string, loc domain.GeoLocation, at time.Time) error {
	if m.failWrites != nil {
		return m.failWrites
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	s.Country, s.City = &loc.Country, &loc.City
	s.LastActiveAt = at
	return nil
}

func (m *memStore) Upsert(_ context.Context, a *domain.UtmAttribution) error {
	if m.failWrites != nil {
		return m.failWrites
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.attributions[a.SessionID] = &cp
	return nil
}

func (m *memStore) session(id string) domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.sessions[id]
}

type fakeGeo struct {
	loc   domain.GeoLocation
	err   error
	calls int
}

func (f *fakeGeo) Lookup(context.Context, string) (domain.GeoLocation, error) {
	f.calls++
	return f.loc, f.err
}

func newService(store *memStore, g enrichment.GeoLookup) *enrichment.Service {
	resolver := identity.NewResolver(store, nil)
	return enrichment.NewService(resolver, store, store, g, nil)
}

func i64(v int64) *int64 { return &v }

func TestHeartbeat_CreateThenIncrement(t *testing.T) {
	store := newMemStore()
	svc := newService(store, nil)
	ctx := context.Background()

	require.NoError(t, svc.Heartbeat(ctx, domain.Heartbeat{SessionID: "sess-1", UserAgent: "ua", TotalSeconds: i64(30)}))
	s := store.session("sess-1")
	assert.EqualValues(t, 1, s.PageViews)
	assert.EqualValues(t, 30, s.TotalSeconds)

	require.NoError(t, svc.Heartbeat(ctx, domain.Heartbeat{SessionID: "sess-1", TotalSeconds: i64(10)}))
	s = store.session("sess-1")
	assert.EqualValues(t, 2, s.PageViews)
	assert.EqualValues(t, 30, s.TotalSeconds, "total_seconds must not decrease")
}

func TestHeartbeat_ConcurrentFirstHeartbeatsCreateOneSession(t *testing.T) {
	store := newMemStore()
	svc := newService(store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.Heartbeat(context.Background(), domain.Heartbeat{SessionID: "sess-c"}))
		}()
	}
	wg.Wait()

	assert.Len(t, store.sessions, 1)
	// One insert plus 19 increments.
	assert.EqualValues(t, 20, store.session("sess-c").PageViews)
}

func TestHeartbeat_PingDoesNotCountPageView(t *testing.T) {
	store := newMemStore()
	svc := newService(store, nil)
	ctx := context.Background()

	require.NoError(t, svc.Heartbeat(ctx, domain.Heartbeat{SessionID: "s"}))
	require.NoError(t, svc.Heartbeat(ctx, domain.Heartbeat{SessionID: "s", Kind: domain.HeartbeatPing, TotalSeconds: i64(45)}))
	require.NoError(t, svc.Heartbeat(ctx, domain.Heartbeat{SessionID: "s", Kind: domain.HeartbeatVisibility}))

	s := store.session("s")
	assert.EqualValues(t, 1, s.PageViews)
	assert.EqualValues(t, 45, s.TotalSeconds)
}

func TestHeartbeat_SuppliedPageViewsNeverDecrease(t *testing.T) {
	store := newMemStore()
	svc := newService(store, nil)
	ctx := context.Background()

	require.NoError(t, svc.Heartbeat(ctx, domain.Heartbeat{SessionID: "s"}))
	require.NoError(t, svc.Heartbeat(ctx, domain.Heartbeat{SessionID: "s", PageViews: i64(7)}))
	require.NoError(t, svc.Heartbeat(ctx, domain.Heartbeat{SessionID: "s", PageViews: i64(3)}))
	require.NoError(t, svc.Heartbeat(ctx, domain.Heartbeat{SessionID: "s", PageViews: i64(-4), TotalSeconds: i64(-9)}))

	s := store.session("s")
	assert.EqualValues(t, 8, s.PageViews, "negative page_views falls back to increment")
	assert.EqualValues(t, 0, s.TotalSeconds)
}

func TestHeartbeat_UserIDSetOnce(t *testing.T) {
	store := newMemStore()
	svc := newService(store, nil)
	ctx := context.Background()
	alice, bob := "alice", "bob"

	require.NoError(t, svc.Heartbeat(ctx, domain.Heartbeat{SessionID: "s"}))
	require.NoError(t, svc.Heartbeat(ctx, domain.Heartbeat{SessionID: "s", UserID: &alice}))
	require.NoError(t, svc.Heartbeat(ctx, domain.Heartbeat{SessionID: "s", UserID: &bob}))
	require.NoError(t, svc.Heartbeat(ctx, domain.Heartbeat{SessionID: "s"}))

	s := store.session("s")
	require.NotNil(t, s.UserID)
	assert.Equal(t, "alice", *s.UserID)
}

func TestHeartbeat_AcceptsOpaqueSessionIDs(t *testing.T) {
	for _, id := range []string{"sess:1700000000:abc", "aGVsbG8+d29y/bGQ=", "a=b", "x+y/z"} {
		t.Run(id, func(t *testing.T) {
			store := newMemStore()
			svc := newService(store, nil)
			ctx := context.Background()

			require.NoError(t, svc.Heartbeat(ctx, domain.Heartbeat{SessionID: id}))
			require.NoError(t, svc.Heartbeat(ctx, domain.Heartbeat{SessionID: id}))
			assert.EqualValues(t, 2, store.session(id).PageViews)

			_, err := svc.Attribute(ctx, domain.UtmAttribution{SessionID: id}, "")
			require.NoError(t, err)
		})
	}
}

func TestHeartbeat_Errors(t *testing.T) {
	store := newMemStore()
	svc := newService(store, nil)

	err := svc.Heartbeat(context.Background(), domain.Heartbeat{SessionID: "  "})
	assert.ErrorIs(t, err, enrichment.ErrInvalidSession)
	assert.Equal(t, enrichment.ReasonInvalidSession, enrichment.ReasonOf(err))

	store.failCreate = errors.New("db down")
	err = svc.Heartbeat(context.Background(), domain.Heartbeat{SessionID: "s"})
	assert.Equal(t, enrichment.ReasonStoreUnavailable, enrichment.ReasonOf(err))
}

func TestEnrichGeo_Success(t *testing.T) {
	store := newMemStore()
	g := &fakeGeo{loc: domain.GeoLocation{Country: "Canada", City: "Toronto"}}
	svc := newService(store, g)

	loc, err := svc.EnrichGeo(context.Background(), "s", "24.48.0.1", "ua")
	require.NoError(t, err)
	assert.Equal(t, "Canada", loc.Country)

	s := store.session("s")
	require.NotNil(t, s.Country)
	assert.Equal(t, "Canada", *s.Country)
	assert.Equal(t, "Toronto", *s.City)
	assert.EqualValues(t, 1, s.PageViews, "geo enrichment never touches activity fields")
}

func TestEnrichGeo_FailuresLeaveSessionUntouched(t *testing.T) {
	tests := []struct {
		name   string
		geo    *fakeGeo
		reason string
	}{
		{"timeout", &fakeGeo{err: geo.ErrTimeout}, enrichment.ReasonLookupTimeout},
		{"private", &fakeGeo{err: geo.ErrPrivateAddress}, enrichment.ReasonPrivateIP},
		{"unavailable", &fakeGeo{err: geo.ErrUnavailable}, enrichment.ReasonLookupFailed},
		{"no result", &fakeGeo{err: geo.ErrNoResult}, enrichment.ReasonNoResult},
		{"empty", &fakeGeo{}, enrichment.ReasonNoResult},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			svc := newService(store, tt.geo)

			require.NoError(t, svc.Heartbeat(context.Background(), domain.Heartbeat{SessionID: "known"}))
			before := store.session("known")

			_, err := svc.EnrichGeo(context.Background(), "known", "8.8.8.8", "")
			var se *enrichment.SoftError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.reason, se.Reason)
			assert.Equal(t, 1, tt.geo.calls, "lookup must not be retried")
			assert.Equal(t, before, store.session("known"))

			_, err = svc.EnrichGeo(context.Background(), "fresh", "8.8.8.8", "")
			require.ErrorAs(t, err, &se)
			store.mu.Lock()
			_, created := store.sessions["fresh"]
			store.mu.Unlock()
			assert.False(t, created, "failed lookup must not create a session")
		})
	}
}

func TestEnrichGeo_InvalidSession(t *testing.T) {
	g := &fakeGeo{}
	svc := newService(newMemStore(), g)
	_, err := svc.EnrichGeo(context.Background(), "   ", "8.8.8.8", "")
	assert.ErrorIs(t, err, enrichment.ErrInvalidSession)
	assert.Zero(t, g.calls)
}

func TestAttribute_DefaultsThenLastTouch(t *testing.T) {
	store := newMemStore()
	svc := newService(store, nil)
	ctx := context.Background()

	a, err := svc.Attribute(ctx, domain.UtmAttribution{SessionID: "s"}, "ua")
	require.NoError(t, err)
	assert.Equal(t, "direct", a.UTMSource)
	assert.Equal(t, "none", a.UTMMedium)
	assert.Equal(t, "direct", store.attributions["s"].UTMSource)

	camp := "spring"
	_, err = svc.Attribute(ctx, domain.UtmAttribution{SessionID: "s", UTMSource: "newsletter", UTMMedium: "email", UTMCampaign: &camp}, "ua")
	require.NoError(t, err)
	got := store.attributions["s"]
	assert.Equal(t, "newsletter", got.UTMSource)
	assert.Equal(t, "email", got.UTMMedium)
	assert.Equal(t, "spring", *got.UTMCampaign)
	assert.Len(t, store.sessions, 1)
}

func TestAttribute_Errors(t *testing.T) {
	store := newMemStore()
	svc := newService(store, nil)

	_, err := svc.Attribute(context.Background(), domain.UtmAttribution{}, "")
	assert.ErrorIs(t, err, enrichment.ErrInvalidSession)

	store.failWrites = errors.New("write failed")
	_, err = svc.Attribute(context.Background(), domain.UtmAttribution{SessionID: "s"}, "")
	assert.Equal(t, enrichment.ReasonNotRecorded, enrichment.ReasonOf(err))
}

func TestReasonOf(t *testing.T) {
	assert.Equal(t, "", enrichment.ReasonOf(nil))
	assert.Equal(t, enrichment.ReasonStoreUnavailable, enrichment.ReasonOf(errors.New("x")))
	assert.Equal(t, "private_ip", enrichment.ReasonOf(&enrichment.SoftError{Reason: "private_ip"}))
}
