package identity_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/service/identity"
)

// memSessions is an in-memory session repository for unit testing.
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	inserts  int32
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]*domain.Session)}
}

func (m *memSessions) CreateIfAbsent(_ context.Context, s *domain.Session) (*domain.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[s.SessionID]; ok {
		cp := *existing
		return &cp, false, nil
	}
	atomic.AddInt32(&m.inserts, 1)
	cp := *s
	m.sessions[s.SessionID] = &cp
	out := cp
	return &out, true, nil
}

type memRecipients struct {
	byToken map[string]*domain.CampaignRecipient
	err     error
}

func (m *memRecipients) GetByTrackingID(_ context.Context, token string) (*domain.CampaignRecipient, error) {
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.byToken[token]
	if !ok {
		return nil, identity.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"uuid", "3f2b6c1e-8a9d-4c1b-9f0e-2d7a5b6c8e10", "3f2b6c1e-8a9d-4c1b-9f0e-2d7a5b6c8e10", false},
		{"trimmed", "  abc_123  ", "abc_123", false},
		{"url-safe base64", "a.b~c-d_e", "a.b~c-d_e", false},
		{"empty", "", "", true},
		{"spaces only", "   ", "", true},
		{"colon separated", "sess:1700000000:abc", "sess:1700000000:abc", false},
		{"standard base64", "aGVsbG8+d29y/bGQ=", "aGVsbG8+d29y/bGQ=", false},
		{"quote is opaque", "x' OR 1=1", "x' OR 1=1", false},
		{"nul byte", "a\x00b", "", true},
		{"invalid utf-8", "a\xffb", "", true},
		{"too long", strings.Repeat("a", identity.MaxTokenLength+1), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := identity.ValidateToken(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateToken(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ValidateToken(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolveOrCreateSession_CreatesOnce(t *testing.T) {
	sessions := newMemSessions()
	r := identity.NewResolver(sessions, &memRecipients{})

	s, created, err := r.ResolveOrCreateSession(context.Background(), "sess-1", "Mozilla/5.0", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !created {
		t.Fatal("expected first resolve to create")
	}
	if s.PageViews != 1 || s.TotalSeconds != 0 {
		t.Fatalf("new session = %+v, want page_views=1 total_seconds=0", s)
	}

	_, created, err = r.ResolveOrCreateSession(context.Background(), "sess-1", "Other", nil)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if created {
		t.Fatal("second resolve must not create")
	}
	if got := sessions.sessions["sess-1"].UserAgent; got != "Mozilla/5.0" {
		t.Errorf("resolve mutated existing session: user_agent = %q", got)
	}
}

func TestResolveOrCreateSession_Concurrent(t *testing.T) {
	sessions := newMemSessions()
	r := identity.NewResolver(sessions, &memRecipients{})

	var wg sync.WaitGroup
	var createdCount int32
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := r.ResolveOrCreateSession(context.Background(), "race", "ua", nil)
			if err != nil {
				t.Errorf("resolve: %v", err)
			}
			if created {
				atomic.AddInt32(&createdCount, 1)
			}
		}()
	}
	wg.Wait()

	if createdCount != 1 || sessions.inserts != 1 {
		t.Fatalf("created=%d inserts=%d, want exactly one", createdCount, sessions.inserts)
	}
}

func TestResolveOrCreateSession_Invalid(t *testing.T) {
	r := identity.NewResolver(newMemSessions(), &memRecipients{})
	_, _, err := r.ResolveOrCreateSession(context.Background(), "", "ua", nil)
	if !errors.Is(err, identity.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestResolveOrCreateSession_BlankUserIDIgnored(t *testing.T) {
	sessions := newMemSessions()
	r := identity.NewResolver(sessions, &memRecipients{})
	blank := " "
	s, _, err := r.ResolveOrCreateSession(context.Background(), "sess-2", "ua", &blank)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.UserID != nil {
		t.Errorf("blank user id persisted: %q", *s.UserID)
	}
}

func TestResolveRecipient(t *testing.T) {
	repo := &memRecipients{byToken: map[string]*domain.CampaignRecipient{
		"tok-1": {ID: "r-1", TrackingID: "tok-1", CampaignID: "c-1", Status: domain.RecipientSent},
	}}
	r := identity.NewResolver(newMemSessions(), repo)

	got, err := r.ResolveRecipient(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != "r-1" {
		t.Errorf("got recipient %q", got.ID)
	}

	for _, token := range []string{"", "unknown", "bad token!"} {
		if _, err := r.ResolveRecipient(context.Background(), token); !errors.Is(err, identity.ErrNotFound) {
			t.Errorf("ResolveRecipient(%q) = %v, want ErrNotFound", token, err)
		}
	}
}

func TestResolveRecipient_StoreError(t *testing.T) {
	boom := errors.New("connection refused")
	r := identity.NewResolver(newMemSessions(), &memRecipients{err: boom})

	_, err := r.ResolveRecipient(context.Background(), "tok-1")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if errors.Is(err, identity.ErrNotFound) {
		t.Fatal("store error must not look like not-found")
	}
}
