// Package rest is the outbound request executor shared by every upstream
// API client. It retries transient gateway failures on a fixed backoff
// schedule, classifies terminal failures for the caller, and accounts every
// call in Stats.
package rest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/juju/clock"
	"github.com/juju/retry"
)

const (
	// DefaultMaxRetries bounds retries of transient upstream statuses.
	DefaultMaxRetries = 2
	// DefaultTimeout applies per attempt.
	DefaultTimeout = 10 * time.Second

	maxBodyBytes  = 1 << 20
	excerptLength = 200
)

// DefaultBackoffs is the fixed sleep schedule between retries.
var DefaultBackoffs = []time.Duration{500 * time.Millisecond, time.Second}

// Request describes one upstream call. Action and Service label errors,
// logs and stats; neither ever carries the credential.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Query   url.Values
	Body    any
	Action  string
	Service string
}

// Options configures a Client. Zero values fall back to the defaults above,
// except MaxRetries: 0 means no retries, and only a negative value selects
// DefaultMaxRetries.
type Options struct {
	MaxRetries int
	Backoffs   []time.Duration
	Timeout    time.Duration
	Stats      *Stats
	Logger     *slog.Logger
}

// Client executes upstream requests with bounded retry and error
// classification. Safe for concurrent use.
type Client struct {
	timeout    time.Duration
	maxRetries int
	backoffs   []time.Duration
	clock      clock.Clock
	stats      *Stats
	logger     *slog.Logger

	mu      sync.Mutex
	clients map[string]*http.Client
}

// NewClient creates a Client whose transport caches conditional responses
// in memory (ETag revalidation costs one cheap request instead of a full
// payload on repeat reads).
func NewClient(opts Options) *Client {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if len(opts.Backoffs) == 0 {
		opts.Backoffs = DefaultBackoffs
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Stats == nil {
		opts.Stats = NewStats()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Client{
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		backoffs:   opts.Backoffs,
		clock:      clock.WallClock,
		stats:      opts.Stats,
		logger:     opts.Logger,
		clients:    make(map[string]*http.Client),
	}
}

// clientFor returns the HTTP client whose response cache is dedicated to the
// given Authorization value. httpcache is a private cache in the RFC 9111
// sense: shared across credentials it could replay one user's cached
// response to another, so each credential gets its own. Entries live for the
// process lifetime, one per active credential, the same order of growth as
// the session cache.
func (c *Client) clientFor(authorization string) *http.Client {
	sum := sha256.Sum256([]byte(authorization))
	fp := hex.EncodeToString(sum[:])

	c.mu.Lock()
	defer c.mu.Unlock()

	cl, ok := c.clients[fp]
	if !ok {
		cl = &http.Client{
			Transport: httpcache.NewMemoryCacheTransport(),
			Timeout:   c.timeout,
		}
		c.clients[fp] = cl
	}
	return cl
}

// Stats returns the counter set this client records into.
func (c *Client) Stats() *Stats {
	return c.stats
}

// transientError marks a 502/503/504 attempt eligible for another try.
type transientError struct {
	status int
	detail string
}

func (e *transientError) Error() string {
	return fmt.Sprintf("transient upstream status %d", e.status)
}

// Do executes the request. Terminal outcomes:
//   - 2xx: the response body as raw JSON (nil for an empty body)
//   - 401: *AuthError, never retried
//   - other non-2xx, or 502/503/504 after retries are exhausted:
//     *RequestError with the last observed status and a body excerpt
//   - transport failure: *NetworkError, not retried
//
// Each attempt counts one call in Stats; each terminal failure one error.
func (c *Client) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	fullURL := req.URL
	if len(req.Query) > 0 {
		fullURL = req.URL + "?" + req.Query.Encode()
	}

	var payload []byte
	if req.Body != nil {
		var err error
		if payload, err = json.Marshal(req.Body); err != nil {
			return nil, fmt.Errorf("marshal request body for %s: %w", req.Action, err)
		}
	}

	var result json.RawMessage
	nextBackoff := 0

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return c.attempt(ctx, req, fullURL, payload, &result)
		},
		IsFatalError: func(err error) bool {
			var te *transientError
			return !errors.As(err, &te)
		},
		Attempts: c.maxRetries + 1,
		Delay:    c.backoffs[0],
		BackoffFunc: func(delay time.Duration, _ int) time.Duration {
			d := c.backoffs[min(nextBackoff, len(c.backoffs)-1)]
			nextBackoff++
			return d
		},
		Clock: c.clock,
		Stop:  ctx.Done(),
	})
	if err == nil {
		return result, nil
	}

	if retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) {
		err = retry.LastError(err)
	}

	// A transient status that survived every retry is reported with the
	// last observed status.
	var te *transientError
	if errors.As(err, &te) {
		err = &RequestError{
			Action:  req.Action,
			URL:     fullURL,
			Service: req.Service,
			Status:  te.status,
			Detail:  te.detail,
		}
	}

	c.stats.recordError(req.Service)
	c.logger.Error("api error",
		"service", req.Service,
		"method", req.Method,
		"url", fullURL,
		"error", err,
	)
	return nil, err
}

// attempt performs a single HTTP round trip and classifies its outcome.
func (c *Client) attempt(ctx context.Context, req Request, fullURL string, payload []byte, result *json.RawMessage) error {
	// Counted first: every attempt is one call, even one that fails before
	// reaching the wire, so errors can never outnumber calls.
	c.stats.recordCall(req.Service)

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return &NetworkError{Action: req.Action, URL: fullURL, Service: req.Service, Err: err}
	}
	for name, values := range req.Header {
		httpReq.Header[name] = values
	}
	if payload != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.clientFor(req.Header.Get("Authorization")).Do(httpReq)
	if err != nil {
		return &NetworkError{Action: req.Action, URL: fullURL, Service: req.Service, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &NetworkError{Action: req.Action, URL: fullURL, Service: req.Service, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if len(data) == 0 {
			*result = nil
			return nil
		}
		if !json.Valid(data) {
			return &RequestError{
				Action:  req.Action,
				URL:     fullURL,
				Service: req.Service,
				Status:  resp.StatusCode,
				Detail:  "response body is not valid JSON",
			}
		}
		*result = json.RawMessage(data)
		return nil

	case resp.StatusCode == http.StatusUnauthorized:
		return &AuthError{Action: req.Action, URL: fullURL, Service: req.Service}

	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return &transientError{status: resp.StatusCode, detail: excerpt(data)}

	default:
		return &RequestError{
			Action:  req.Action,
			URL:     fullURL,
			Service: req.Service,
			Status:  resp.StatusCode,
			Detail:  excerpt(data),
		}
	}
}

// excerpt trims a response body down to something safe to embed in an error.
func excerpt(body []byte) string {
	s := string(bytes.TrimSpace(body))
	if len(s) > excerptLength {
		s = s[:excerptLength] + "..."
	}
	return s
}
