package nexus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertextoedge/modfetch/internal/domain"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	c, err := New(Config{APIKey: "secret", BaseURL: ts.URL, HTTPClient: ts.Client()}, nil)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestResolveDownloadURL_PrefersCDN(t *testing.T) {
	var gotKey, gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apikey")
		gotPath = r.URL.Path
		w.Header().Set("x-rl-hourly-remaining", "99")
		w.Header().Set("x-rl-daily-remaining", "2000")
		w.Write([]byte(`[
			{"name":"Paris","short_name":"Paris","URI":"https://paris.example/f"},
			{"name":"Amazon CloudFront","short_name":"AWS","URI":"https://aws.example/f"},
			{"name":"Nexus CDN (CloudFlare)","short_name":"CF","URI":"https://cf.example/f"}
		]`))
	}))

	link, err := c.ResolveDownloadURL(context.Background(), "skyrimspecialedition", 266, 1000)
	require.NoError(t, err)

	assert.Equal(t, "https://cf.example/f", link)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "/v1/games/skyrimspecialedition/mods/266/files/1000/download_link.json", gotPath)

	limits, ok := c.RateLimit()
	require.True(t, ok)
	assert.Equal(t, 99, limits.HourlyRemaining)
	assert.Equal(t, 2000, limits.DailyRemaining)
	assert.False(t, limits.Blocked())
}

func TestSelectLink(t *testing.T) {
	assert.Nil(t, SelectLink(nil))

	links := []DownloadLink{{Name: "Prague", URI: "a"}, {Name: "Amazon CloudFront", URI: "b"}}
	assert.Equal(t, "b", SelectLink(links).URI)

	links = []DownloadLink{{Name: "Prague", URI: "a"}, {Name: "Chicago", URI: "c"}}
	assert.Equal(t, "a", SelectLink(links).URI)
}

func TestResolveDownloadURL_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		headers  map[string]string
		category domain.Category
		wait     time.Duration
	}{
		{"unauthorized", http.StatusUnauthorized, nil, domain.CategoryAuthorization, 0},
		{"forbidden", http.StatusForbidden, nil, domain.CategoryAuthorization, 0},
		{"not found", http.StatusNotFound, nil, domain.CategoryNotFound, 0},
		{"rate limited", http.StatusTooManyRequests, map[string]string{"Retry-After": "30"}, domain.CategoryRateLimited, 30 * time.Second},
		{"server error", http.StatusServiceUnavailable, nil, domain.CategoryTransport, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			}))

			_, err := c.ResolveDownloadURL(context.Background(), "game", 1, 2)
			require.Error(t, err)
			assert.Equal(t, tt.category, domain.Classify(err))

			wait, ok := domain.GetRetryAfter(err)
			if tt.wait > 0 {
				require.True(t, ok)
				assert.Equal(t, tt.wait, wait)
			} else {
				assert.False(t, ok)
			}
		})
	}
}

func TestResolveDownloadURL_RateLimitFallsBackToHourlyReset(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	reset := now.Add(25 * time.Minute)

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-rl-hourly-remaining", "0")
		w.Header().Set("x-rl-daily-remaining", "100")
		w.Header().Set("x-rl-hourly-reset", strconv.FormatInt(reset.Unix(), 10))
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	c.now = func() time.Time { return now }

	_, err := c.ResolveDownloadURL(context.Background(), "game", 1, 2)
	require.Error(t, err)
	wait, ok := domain.GetRetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 25*time.Minute, wait)
}

func TestResolveDownloadURL_BlockedQuotaSkipsRequest(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var calls atomic.Int32

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("x-rl-hourly-remaining", "0")
		w.Header().Set("x-rl-daily-remaining", "10")
		w.Header().Set("x-rl-hourly-reset", strconv.FormatInt(now.Add(10*time.Minute).Unix(), 10))
		w.Header().Set("x-rl-daily-reset", strconv.FormatInt(now.Add(5*time.Hour).Unix(), 10))
		w.Write([]byte(`[{"name":"CloudFlare","URI":"https://cf.example/f"}]`))
	}))
	c.now = func() time.Time { return now }

	_, err := c.ResolveDownloadURL(context.Background(), "game", 1, 2)
	require.NoError(t, err)

	_, err = c.ResolveDownloadURL(context.Background(), "game", 1, 2)
	require.Error(t, err)
	assert.Equal(t, domain.CategoryRateLimited, domain.Classify(err))
	wait, _ := domain.GetRetryAfter(err)
	assert.Equal(t, 10*time.Minute, wait)
	assert.EqualValues(t, 1, calls.Load())
}

func TestResolveDownloadURL_NoLinks(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))

	_, err := c.ResolveDownloadURL(context.Background(), "game", 1, 2)
	assert.Equal(t, domain.CategoryNotFound, domain.Classify(err))
}
