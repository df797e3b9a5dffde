// Package geo resolves client IP addresses to a coarse country and city.
//
// Lookups are best effort: each call is bounded by the client timeout and is
// never retried. Successful results may be cached.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
)

// HTTPDoer is the interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Cache stores lookup results keyed by IP address.
type Cache interface {
	Get(ctx context.Context, ip string) (domain.GeoLocation, bool, error)
	Set(ctx context.Context, ip string, loc domain.GeoLocation) error
}

// Client queries an HTTP geo-IP service. The endpoint is a URL template
// containing "{ip}", e.g. "http://ip-api.com/json/{ip}?fields=status,country,city".
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient HTTPDoer
	cache      Cache
}

// NewClient creates a geo client. cache may be nil.
func NewClient(endpoint string, timeout time.Duration, cache Cache) *Client {
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}
	return &Client{
		endpoint:   endpoint,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client HTTPDoer) {
	c.httpClient = client
}

// lookupResponse accepts both the ip-api.com and ipapi.co field layouts.
type lookupResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Country     string `json:"country"`
	CountryName string `json:"country_name"`
	City        string `json:"city"`
	Error       bool   `json:"error"`
}

// Lookup resolves ip. Non-public addresses return ErrPrivateAddress without a
// network call.
func (c *Client) Lookup(ctx context.Context, ip string) (domain.GeoLocation, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return domain.GeoLocation{}, ErrNoResult
	}
	addr = addr.Unmap()
	if !isPublic(addr) {
		return domain.GeoLocation{}, ErrPrivateAddress
	}
	key := addr.String()

	if c.cache != nil {
		loc, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			logger.Warn("geo cache read failed", "error", err)
		} else if ok {
			return loc, nil
		}
	}

	loc, err := c.fetch(ctx, key)
	if err != nil {
		return domain.GeoLocation{}, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, loc); err != nil {
			logger.Warn("geo cache write failed", "error", err)
		}
	}
	return loc, nil
}

func (c *Client) fetch(ctx context.Context, ip string) (domain.GeoLocation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqURL := strings.ReplaceAll(c.endpoint, "{ip}", url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.GeoLocation{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return domain.GeoLocation{}, ErrTimeout
		}
		return domain.GeoLocation{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.GeoLocation{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16<<10)).Decode(&body); err != nil {
		if isTimeout(ctx, err) {
			return domain.GeoLocation{}, ErrTimeout
		}
		return domain.GeoLocation{}, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if body.Error || strings.EqualFold(body.Status, "fail") {
		return domain.GeoLocation{}, ErrNoResult
	}

	loc := domain.GeoLocation{Country: body.CountryName, City: strings.TrimSpace(body.City)}
	if loc.Country == "" {
		loc.Country = body.Country
	}
	loc.Country = strings.TrimSpace(loc.Country)
	if loc.Empty() {
		return domain.GeoLocation{}, ErrNoResult
	}
	return loc, nil
}

func isPublic(addr netip.Addr) bool {
	return addr.IsValid() &&
		!addr.IsLoopback() &&
		!addr.IsPrivate() &&
		!addr.IsUnspecified() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsLinkLocalMulticast() &&
		!addr.IsMulticast()
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
