// Package nexus resolves Nexus Mods files to signed download URLs through
// the public v1 API.
package nexus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vertextoedge/modfetch/internal/adapter/httpclient"
	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/port"
)

// DefaultBaseURL is the public Nexus API endpoint
const DefaultBaseURL = "https://api.nexusmods.com"

// ErrNoAPIKey is returned by New when no API key is configured
var ErrNoAPIKey = errors.New("nexus api key is required")

// preferredCDNs are tried in order before falling back to the first link
var preferredCDNs = []string{"CloudFlare", "Amazon CloudFront"}

// Config configures the API client
type Config struct {
	APIKey            string
	BaseURL           string
	UserAgent         string
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// DownloadLink is one mirror returned by the download_link endpoint
type DownloadLink struct {
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	URI       string `json:"URI"`
}

// RateLimit is the quota state reported by the x-rl-* headers
type RateLimit struct {
	DailyLimit      int
	DailyRemaining  int
	DailyReset      time.Time
	HourlyLimit     int
	HourlyRemaining int
	HourlyReset     time.Time
}

// Blocked reports whether either quota is used up
func (r RateLimit) Blocked() bool {
	return r.DailyRemaining == 0 || r.HourlyRemaining == 0
}

// UntilRenewal returns how long until the earliest pending reset, or 0 when
// not blocked
func (r RateLimit) UntilRenewal(now time.Time) time.Duration {
	if !r.Blocked() {
		return 0
	}
	var wait time.Duration
	for _, reset := range []time.Time{r.HourlyReset, r.DailyReset} {
		d := reset.Sub(now)
		if d <= 0 {
			continue
		}
		if wait == 0 || d < wait {
			wait = d
		}
	}
	return wait
}

// Client implements port.NexusResolver
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	limits *RateLimit
}

var _ port.NexusResolver = (*Client)(nil)

// New creates a new Client
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = httpclient.DefaultOptions().UserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpclient.New(httpclient.DefaultOptions()).HTTPClient()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		cfg:     cfg,
		http:    hc,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// ResolveDownloadURL returns the preferred signed URL for a mod file
func (c *Client) ResolveDownloadURL(ctx context.Context, gameDomain string, modID, fileID int64) (string, error) {
	links, err := c.DownloadLinks(ctx, gameDomain, modID, fileID)
	if err != nil {
		return "", err
	}

	link := SelectLink(links)
	if link == nil {
		return "", domain.NewDownloadError(domain.CategoryNotFound, "nexus resolve",
			fmt.Errorf("%w: no download links for %s mod %d file %d", domain.ErrNotFound, gameDomain, modID, fileID))
	}

	c.logger.Debug("selected nexus mirror",
		zap.String("game", gameDomain),
		zap.Int64("mod_id", modID),
		zap.Int64("file_id", fileID),
		zap.String("cdn", link.Name))
	return link.URI, nil
}

// DownloadLinks lists the mirrors of a mod file
func (c *Client) DownloadLinks(ctx context.Context, gameDomain string, modID, fileID int64) ([]DownloadLink, error) {
	endpoint := fmt.Sprintf("%s/v1/games/%s/mods/%d/files/%d/download_link.json",
		c.cfg.BaseURL, url.PathEscape(gameDomain), modID, fileID)

	var links []DownloadLink
	if err := c.get(ctx, endpoint, &links); err != nil {
		return nil, err
	}
	return links, nil
}

// RateLimit returns the last quota state seen, if any
func (c *Client) RateLimit() (RateLimit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limits == nil {
		return RateLimit{}, false
	}
	return *c.limits, true
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	if limits, ok := c.RateLimit(); ok && limits.Blocked() {
		wait := limits.UntilRenewal(c.now())
		return &domain.DownloadError{Category: domain.CategoryRateLimited, Op: "nexus api", URL: endpoint,
			Err: domain.NewRetryableError(fmt.Errorf("%w: quota exhausted", domain.ErrRateLimited), wait)}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return &domain.DownloadError{Category: domain.CategoryCancelled, Op: "nexus api", URL: endpoint, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &domain.DownloadError{Category: domain.CategoryUnsupported, Op: "nexus api", URL: endpoint, Err: err}
	}
	req.Header.Set("apikey", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Application-Name", "modfetch")

	resp, err := c.http.Do(req)
	if err != nil {
		return httpclient.TransportError(ctx, "nexus api", endpoint, err)
	}
	defer resp.Body.Close()

	c.updateLimits(resp.Header)

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return c.statusError(endpoint, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return httpclient.TransportError(ctx, "nexus decode", endpoint, err)
	}
	return nil
}

func (c *Client) statusError(endpoint string, resp *http.Response) error {
	status := fmt.Errorf("HTTP %d", resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &domain.DownloadError{Category: domain.CategoryAuthorization, Op: "nexus api", URL: endpoint,
			Err: fmt.Errorf("%w: %v", domain.ErrUnauthorized, status)}
	case resp.StatusCode == http.StatusNotFound:
		return &domain.DownloadError{Category: domain.CategoryNotFound, Op: "nexus api", URL: endpoint,
			Err: fmt.Errorf("%w: %v", domain.ErrNotFound, status)}
	case resp.StatusCode == http.StatusTooManyRequests:
		wait, ok := httpclient.ParseRetryAfter(resp.Header.Get("Retry-After"), c.now())
		if !ok {
			if limits, have := c.RateLimit(); have {
				wait = limits.HourlyReset.Sub(c.now())
			}
		}
		if wait < 0 {
			wait = 0
		}
		c.logger.Warn("nexus rate limit hit", zap.Duration("retry_after", wait))
		return &domain.DownloadError{Category: domain.CategoryRateLimited, Op: "nexus api", URL: endpoint,
			Err: domain.NewRetryableError(fmt.Errorf("%w: %v", domain.ErrRateLimited, status), wait)}
	case resp.StatusCode >= 500:
		return &domain.DownloadError{Category: domain.CategoryTransport, Op: "nexus api", URL: endpoint, Err: status}
	default:
		return &domain.DownloadError{Category: domain.CategoryUnsupported, Op: "nexus api", URL: endpoint, Err: status}
	}
}

func (c *Client) updateLimits(h http.Header) {
	if h.Get("x-rl-hourly-remaining") == "" && h.Get("x-rl-daily-remaining") == "" {
		return
	}
	now := c.now()

	limits := RateLimit{
		DailyLimit:  headerInt(h, "x-rl-daily-limit", 2400),
		HourlyLimit: headerInt(h, "x-rl-hourly-limit", 100),
	}
	limits.DailyRemaining = headerInt(h, "x-rl-daily-remaining", limits.DailyLimit)
	limits.HourlyRemaining = headerInt(h, "x-rl-hourly-remaining", limits.HourlyLimit)
	limits.DailyReset = headerTime(h, "x-rl-daily-reset", now.Add(24*time.Hour))
	limits.HourlyReset = headerTime(h, "x-rl-hourly-reset", now.Add(time.Hour))

	c.mu.Lock()
	c.limits = &limits
	c.mu.Unlock()

	c.logger.Debug("nexus rate limit updated",
		zap.Int("daily_remaining", limits.DailyRemaining),
		zap.Int("hourly_remaining", limits.HourlyRemaining))
}

// SelectLink picks a preferred CDN mirror, else the first link
func SelectLink(links []DownloadLink) *DownloadLink {
	for _, preferred := range preferredCDNs {
		for i := range links {
			if strings.Contains(links[i].Name, preferred) {
				return &links[i]
			}
		}
	}
	if len(links) == 0 {
		return nil
	}
	return &links[0]
}

func headerInt(h http.Header, key string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(h.Get(key))); err == nil {
		return v
	}
	return def
}

// headerTime accepts unix seconds or RFC 3339
func headerTime(h http.Header, key string, def time.Time) time.Time {
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return def
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0)
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05 -0700", v); err == nil {
		return t
	}
	return def
}
