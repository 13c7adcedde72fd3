package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vertextoedge/modfetch/internal/domain"
)

// Options configures the HTTP client.
type Options struct {
	// UserAgent is sent with every request
	UserAgent string

	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 16
	MaxIdleConnsPerHost int

	// ResponseHeaderTimeout bounds the wait for response headers.
	// Default: 30s
	ResponseHeaderTimeout time.Duration
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		UserAgent:             "modfetch/dev",
		MaxIdleConnsPerHost:   16,
		ResponseHeaderTimeout: 30 * time.Second,
	}
}

// Response is an open download body.
type Response struct {
	Body       io.ReadCloser
	StatusCode int

	// Offset is the byte position the body starts at
	Offset int64

	// TotalSize is the full size of the remote file, 0 when unknown
	TotalSize int64
}

// Client issues single-shot GETs and classifies failures. Retrying is left
// to the caller.
type Client struct {
	client *http.Client
	opts   Options
}

// New creates a new HTTP client with the given options.
func New(opts Options) *Client {
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = 16
	}
	if opts.ResponseHeaderTimeout <= 0 {
		opts.ResponseHeaderTimeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          opts.MaxIdleConnsPerHost * 4,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
		DisableCompression:    true, // raw bytes for range requests and hashing
	}

	return &Client{
		client: &http.Client{Transport: transport},
		opts:   opts,
	}
}

// NewWithHTTPClient wraps an existing http.Client
func NewWithHTTPClient(hc *http.Client, opts Options) *Client {
	return &Client{client: hc, opts: opts}
}

// HTTPClient returns the underlying http.Client
func (c *Client) HTTPClient() *http.Client {
	return c.client
}

// Get requests rawURL starting at offset. A non-zero offset sends a Range
// header; if the server answers 200 the body starts at zero and Offset
// reports that.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string, offset int64) (*Response, error) {
	if err := CheckURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &domain.DownloadError{Category: domain.CategoryUnsupported, Op: "create request", URL: rawURL, Err: err}
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, TransportError(ctx, "get", rawURL, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		total := resp.ContentLength
		if total < 0 {
			total = 0
		}
		return &Response{Body: resp.Body, StatusCode: resp.StatusCode, Offset: 0, TotalSize: total}, nil

	case http.StatusPartialContent:
		start, total, ok := ParseContentRange(resp.Header.Get("Content-Range"))
		if !ok {
			start = offset
			if resp.ContentLength >= 0 {
				total = offset + resp.ContentLength
			}
		}
		if start != offset {
			resp.Body.Close()
			return nil, &domain.DownloadError{
				Category: domain.CategoryTransport,
				Op:       "get",
				URL:      rawURL,
				Err:      fmt.Errorf("%w: got byte %d, asked for %d", domain.ErrRangeMismatch, start, offset),
			}
		}
		return &Response{Body: resp.Body, StatusCode: resp.StatusCode, Offset: start, TotalSize: total}, nil
	}

	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return nil, StatusError(rawURL, resp)
}

// CheckURL rejects URLs this client cannot fetch
func CheckURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &domain.DownloadError{Category: domain.CategoryUnsupported, Op: "parse url", URL: rawURL, Err: fmt.Errorf("%w: %v", domain.ErrUnsupportedURL, err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &domain.DownloadError{Category: domain.CategoryUnsupported, Op: "parse url", URL: rawURL, Err: fmt.Errorf("%w: scheme %q", domain.ErrUnsupportedURL, u.Scheme)}
	}
	if u.Host == "" {
		return &domain.DownloadError{Category: domain.CategoryUnsupported, Op: "parse url", URL: rawURL, Err: fmt.Errorf("%w: missing host", domain.ErrUnsupportedURL)}
	}
	return nil
}

// TransportError classifies an error from a round trip or a body read
func TransportError(ctx context.Context, op, rawURL string, err error) error {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return &domain.DownloadError{Category: domain.CategoryCancelled, Op: op, URL: rawURL, Err: ctx.Err()}
	}
	return &domain.DownloadError{Category: domain.CategoryTransport, Op: op, URL: rawURL, Err: err}
}

// StatusError maps an unexpected HTTP status to a classified error
func StatusError(rawURL string, resp *http.Response) error {
	status := fmt.Errorf("HTTP %d", resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		return &domain.DownloadError{Category: domain.CategoryTransport, Op: "get", URL: rawURL, Err: fmt.Errorf("%w: %v", domain.ErrRangeNotSatisfiable, status)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &domain.DownloadError{Category: domain.CategoryAuthorization, Op: "get", URL: rawURL, Err: fmt.Errorf("%w: %v", domain.ErrUnauthorized, status)}
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return &domain.DownloadError{Category: domain.CategoryNotFound, Op: "get", URL: rawURL, Err: fmt.Errorf("%w: %v", domain.ErrNotFound, status)}
	case resp.StatusCode == http.StatusTooManyRequests:
		wait, _ := ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return &domain.DownloadError{Category: domain.CategoryRateLimited, Op: "get", URL: rawURL, Err: domain.NewRetryableError(fmt.Errorf("%w: %v", domain.ErrRateLimited, status), wait)}
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return &domain.DownloadError{Category: domain.CategoryTransport, Op: "get", URL: rawURL, Err: status}
	default:
		return &domain.DownloadError{Category: domain.CategoryUnsupported, Op: "get", URL: rawURL, Err: fmt.Errorf("%w: %v", domain.ErrUnsupportedURL, status)}
	}
}

// ParseContentRange parses "bytes start-end/total". total is 0 when the
// server sent "*".
func ParseContentRange(header string) (start, total int64, ok bool) {
	rangeSpec, found := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !found {
		return 0, 0, false
	}
	rng, size, found := strings.Cut(rangeSpec, "/")
	if !found {
		return 0, 0, false
	}
	first, _, found := strings.Cut(rng, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if size == "*" {
		return start, 0, true
	}
	total, err = strconv.ParseInt(strings.TrimSpace(size), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return start, total, true
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date.
func ParseRetryAfter(header string, now time.Time) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(header, 10, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(header); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
