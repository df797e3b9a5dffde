package geo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engagement-tracker/internal/domain"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func newGeoServer(t *testing.T, hits *int32, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLookup_Success(t *testing.T) {
	var hits int32
	srv := newGeoServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/8.8.8.8", r.URL.Path)
		w.Write([]byte(`{"status":"success","country":"United States","city":"Mountain View"}`))
	})

	c := NewClient(srv.URL+"/json/{ip}", time.Second, nil)
	loc, err := c.Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, domain.GeoLocation{Country: "United States", City: "Mountain View"}, loc)
}

func TestLookup_CountryNameLayout(t *testing.T) {
	var hits int32
	srv := newGeoServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"country":"DE","country_name":"Germany","city":"Berlin"}`))
	})

	loc, err := NewClient(srv.URL+"/{ip}/json/", time.Second, nil).Lookup(context.Background(), "5.9.0.1")
	require.NoError(t, err)
	assert.Equal(t, "Germany", loc.Country)
	assert.Equal(t, "Berlin", loc.City)
}

func TestLookup_PrivateAddressSkipsNetwork(t *testing.T) {
	var hits int32
	srv := newGeoServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {})
	c := NewClient(srv.URL+"/{ip}", time.Second, nil)

	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.9", "::1", "0.0.0.0", "fe80::1"} {
		_, err := c.Lookup(context.Background(), ip)
		assert.ErrorIs(t, err, ErrPrivateAddress, ip)
	}
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestLookup_TimeoutIsNotRetried(t *testing.T) {
	var hits int32
	srv := newGeoServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	})

	c := NewClient(srv.URL+"/{ip}", 50*time.Millisecond, nil)
	start := time.Now()
	_, err := c.Lookup(context.Background(), "8.8.4.4")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestLookup_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusBadGateway, `oops`, ErrUnavailable},
		{"bad json", http.StatusOK, `{not json`, ErrUnavailable},
		{"fail status", http.StatusOK, `{"status":"fail","message":"reserved range"}`, ErrNoResult},
		{"empty result", http.StatusOK, `{"status":"success"}`, ErrNoResult},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			srv := newGeoServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := NewClient(srv.URL+"/{ip}", time.Second, nil).Lookup(context.Background(), "1.1.1.1")
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
		})
	}
}

func TestLookup_InvalidAddress(t *testing.T) {
	_, err := NewClient("http://unused/{ip}", time.Second, nil).Lookup(context.Background(), "not-an-ip")
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestLookup_UsesRedisCache(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	var hits int32
	srv := newGeoServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","country":"France","city":"Paris"}`))
	})

	c := NewClient(srv.URL+"/{ip}", time.Second, NewRedisCache(rdb, time.Hour))
	for i := 0; i < 3; i++ {
		loc, err := c.Lookup(context.Background(), "2.2.2.2")
		require.NoError(t, err)
		assert.Equal(t, "Paris", loc.City)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
	assert.True(t, mr.Exists("geo:ip:2.2.2.2"))
	assert.Equal(t, time.Hour, mr.TTL("geo:ip:2.2.2.2"))
}

func TestLookup_CacheFailureFallsThrough(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	mr.Close()

	var hits int32
	srv := newGeoServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","country":"Spain","city":"Madrid"}`))
	})
	loc, err := NewClient(srv.URL+"/{ip}", time.Second, NewRedisCache(rdb, time.Hour)).Lookup(context.Background(), "3.3.3.3")
	require.NoError(t, err)
	assert.Equal(t, "Spain", loc.Country)
}

func TestRedisCache_Miss(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	_, ok, err := NewRedisCache(rdb, 0).Get(context.Background(), "9.9.9.9")
	require.NoError(t, err)
	assert.False(t, ok)
}
