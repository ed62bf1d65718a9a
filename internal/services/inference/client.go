// Package inference provides a retrying HTTP client for hosted
// generation endpoints (image, text and speech models). It understands the
// "model loading" and rate-limit responses these services return and
// falls back to an alternate endpoint when the primary is not usable.
package inference

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/dreamreel/dreamreel/internal/quota"
	"github.com/dreamreel/dreamreel/internal/utils"
	"golang.org/x/sync/singleflight"
)

// ErrRetriesExhausted is returned when the retry budget is spent without a
// successful response.
var ErrRetriesExhausted = errors.New("inference: retries exhausted")

// APIError is a non-retryable error response from a generation endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("inference: endpoint returned %d: %s", e.Status, e.Body)
}

// Endpoint describes one hosted model endpoint.
type Endpoint struct {
	Name        string  // provider name, used for quota accounting
	URL         string  // full inference URL
	APIKeyEnv   string  // environment variable holding the bearer token
	CostPerCall float64 // recorded against the quota tracker per call
}

// Available reports whether the endpoint's credentials are configured.
func (e Endpoint) Available() bool {
	return e.URL != "" && os.Getenv(e.APIKeyEnv) != ""
}

// Options tune the client's retry and pacing behavior.
type Options struct {
	MaxRetries     int           // retry ceiling for 429/503 responses (default 5)
	MinInterval    time.Duration // minimum spacing between calls (default 0)
	LoadingWait    time.Duration // wait when a 503 carries no estimate (default 20s)
	RequestTimeout time.Duration // per-attempt HTTP timeout (default 2m)
}

func (o *Options) withDefaults() Options {
	out := Options{MaxRetries: 5, LoadingWait: 20 * time.Second, RequestTimeout: 2 * time.Minute}
	if o == nil {
		return out
	}
	if o.MaxRetries > 0 {
		out.MaxRetries = o.MaxRetries
	}
	if o.MinInterval > 0 {
		out.MinInterval = o.MinInterval
	}
	if o.LoadingWait > 0 {
		out.LoadingWait = o.LoadingWait
	}
	if o.RequestTimeout > 0 {
		out.RequestTimeout = o.RequestTimeout
	}
	return out
}

// Client calls a generation endpoint and returns raw bytes. At most one
// request is in flight at a time; identical concurrent payloads are
// collapsed into a single upstream call.
type Client struct {
	primary  Endpoint
	fallback Endpoint
	opts     Options
	tracker  *quota.Tracker

	httpClient *http.Client
	group      singleflight.Group

	mu       sync.Mutex
	lastCall time.Time

	// sleep is a test seam for the backoff waits.
	sleep func(time.Duration)
}

// NewClient creates a client for a primary endpoint with an optional
// fallback. tracker may be nil when no spend gating is wanted.
func NewClient(primary, fallback Endpoint, tracker *quota.Tracker, opts *Options) *Client {
	o := opts.withDefaults()
	return &Client{
		primary:    primary,
		fallback:   fallback,
		opts:       o,
		tracker:    tracker,
		httpClient: &http.Client{Timeout: o.RequestTimeout},
		sleep:      time.Sleep,
	}
}

// loadingResponse is the body hosted inference services return while a cold
// model is being loaded onto a worker.
type loadingResponse struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

// Generate POSTs the JSON payload to the selected endpoint and returns the
// raw response body. Retries cover 429 and 503 responses only; any other
// non-2xx status fails immediately with the response body attached.
func (c *Client) Generate(ctx context.Context, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	endpoint, err := c.selectEndpoint()
	if err != nil {
		return nil, err
	}

	// Collapse identical concurrent payloads into one upstream call.
	key := endpoint.URL + ":" + hashPayload(body)
	out, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.doWithRetries(ctx, endpoint, body)
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// selectEndpoint returns the primary endpoint when it has credentials and
// quota headroom, the fallback otherwise. Fallback is transparent to the
// caller: the return contract is identical.
func (c *Client) selectEndpoint() (Endpoint, error) {
	if c.primary.Available() {
		allowed := true
		if c.tracker != nil {
			var err error
			allowed, err = c.tracker.Allowed(c.primary.Name)
			if err != nil {
				return Endpoint{}, err
			}
		}
		if allowed {
			return c.primary, nil
		}
		utils.LogWarning("Provider %s reached its spend ceiling, falling back to %s", c.primary.Name, c.fallback.Name)
	}

	if c.fallback.Available() {
		return c.fallback, nil
	}
	if c.primary.Available() {
		// Over ceiling and no fallback configured: keep using the primary
		// rather than failing the whole pipeline stage.
		return c.primary, nil
	}
	return Endpoint{}, fmt.Errorf("inference: no endpoint available (checked %s, %s)", c.primary.Name, c.fallback.Name)
}

func (c *Client) doWithRetries(ctx context.Context, endpoint Endpoint, body []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pace()

	backoff := 2 * time.Second
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		respBody, status, err := c.post(ctx, endpoint, body)
		if err != nil {
			return nil, err
		}
		c.lastCall = time.Now()

		switch {
		case status >= 200 && status < 300:
			if c.tracker != nil {
				if err := c.tracker.Record(endpoint.Name, endpoint.CostPerCall); err != nil {
					utils.LogWarning("Failed to record usage for %s: %v", endpoint.Name, err)
				}
			}
			return respBody, nil

		case status == http.StatusServiceUnavailable:
			wait := c.opts.LoadingWait
			var loading loadingResponse
			if err := json.Unmarshal(respBody, &loading); err == nil && loading.EstimatedTime > 0 {
				wait = time.Duration(loading.EstimatedTime * float64(time.Second))
			}
			utils.LogVerbose("Model %s is loading, waiting %s (attempt %d/%d)", endpoint.Name, wait, attempt+1, c.opts.MaxRetries)
			c.sleep(wait)

		case status == http.StatusTooManyRequests:
			jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
			utils.LogVerbose("Rate limited by %s, backing off %s (attempt %d/%d)", endpoint.Name, backoff+jitter, attempt+1, c.opts.MaxRetries)
			c.sleep(backoff + jitter)
			backoff *= 2

		default:
			return nil, &APIError{Status: status, Body: string(respBody)}
		}
	}

	return nil, fmt.Errorf("%w after %d attempts against %s", ErrRetriesExhausted, c.opts.MaxRetries+1, endpoint.Name)
}

// pace enforces the minimum inter-call interval. Callers hold c.mu.
func (c *Client) pace() {
	if c.opts.MinInterval <= 0 || c.lastCall.IsZero() {
		return
	}
	if elapsed := time.Since(c.lastCall); elapsed < c.opts.MinInterval {
		c.sleep(c.opts.MinInterval - elapsed)
	}
}

func (c *Client) post(ctx context.Context, endpoint Endpoint, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := os.Getenv(endpoint.APIKeyEnv); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request to %s failed: %w", endpoint.Name, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			utils.LogWarning("Failed to close response body: %v", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

func hashPayload(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:8])
}
