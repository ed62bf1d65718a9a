// Package agent drives third-party generation web apps through a persistent
// browser session. The apps expose no API and no completion signal, so each
// request is a fixed sequence of UI steps: verify we are logged in, set the
// controls, submit, poll the DOM until a new result thumbnail appears, then
// pull the bytes out of it. All element handles are rediscovered on every
// poll cycle; the remote DOM is not ours and mutates between polls.
package agent

import (
	"context"
	"time"
)

// GenerationRequest describes one generation. Immutable once submitted.
type GenerationRequest struct {
	Prompt      string
	RefImages   map[string][]string // UI section name -> reference image paths
	AspectRatio string              // "16:9", "9:16" or "1:1"
	StyleSuffix string              // appended verbatim to the prompt
}

// FullPrompt returns the prompt with the style suffix applied.
func (r GenerationRequest) FullPrompt() string {
	if r.StyleSuffix == "" {
		return r.Prompt
	}
	return r.Prompt + ", " + r.StyleSuffix
}

// GenerationResult is the outcome of one request: raw media bytes on
// success, nil Data with Err set on failure. Produced exactly once per
// request.
type GenerationResult struct {
	Data []byte
	Err  error
}

// Config holds the timing and threshold policy for an agent. The defaults
// mirror what the target apps tolerate; none of them is load-bearing beyond
// the existence of a bound.
type Config struct {
	PollInterval      time.Duration // delay between DOM polls (default 1200ms)
	PollTimeout       time.Duration // total budget waiting for a result (default 45s)
	ErrorGrace        time.Duration // window in which an error surface triggers one resubmit (default 10s)
	MinResultPx       int           // min bounding-box edge for a real result thumbnail (default 200)
	BatchFailureLimit int           // consecutive failures that abort a batch (default 3)
}

func (c Config) withDefaults() Config {
	if c.PollInterval == 0 {
		c.PollInterval = 1200 * time.Millisecond
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = 45 * time.Second
	}
	if c.ErrorGrace == 0 {
		c.ErrorGrace = 10 * time.Second
	}
	if c.MinResultPx == 0 {
		c.MinResultPx = 200
	}
	if c.BatchFailureLimit == 0 {
		c.BatchFailureLimit = 3
	}
	return c
}

// selectNewest returns the index of the newest result among n qualifying
// elements, which the target apps always append in document order.
func selectNewest(n int) (int, bool) {
	if n <= 0 {
		return 0, false
	}
	return n - 1, true
}

// pollState tracks the resubmit-once policy for a single submission: an
// error surface seen within the grace window after submitting triggers
// exactly one automatic resubmission; after that, errors only accumulate
// toward the final failure.
type pollState struct {
	submittedAt time.Time
	grace       time.Duration
	resubmitted bool
}

func newPollState(submittedAt time.Time, grace time.Duration) *pollState {
	return &pollState{submittedAt: submittedAt, grace: grace}
}

// onErrorSurface reports whether the agent should resubmit now. It returns
// true at most once, and only while inside the grace window.
func (p *pollState) onErrorSurface(now time.Time) bool {
	if p.resubmitted {
		return false
	}
	if now.Sub(p.submittedAt) > p.grace {
		return false
	}
	p.resubmitted = true
	return true
}

// batchDriver owns the page lifecycle within one batch: a lost page is
// reacquired before the next item, and a freshly acquired page is configured
// exactly once (reference uploads included) before items run against it.
// Items after the first reuse the configured page untouched.
type batchDriver struct {
	configured bool

	pageAlive func() bool
	reacquire func(ctx context.Context) error
	configure func(req GenerationRequest) error
	generate  func(ctx context.Context, req GenerationRequest) ([]byte, error)
}

func (d *batchDriver) run(ctx context.Context, _ int, req GenerationRequest) ([]byte, error) {
	if !d.pageAlive() {
		if err := d.reacquire(ctx); err != nil {
			return nil, err
		}
		d.configured = false
	}

	if !d.configured {
		if err := d.configure(req); err != nil {
			return nil, err
		}
		d.configured = true
	}

	return d.generate(ctx, req)
}

// runBatch drives a sequence of requests through a single generate function,
// collecting per-item results. A failed item contributes a nil placeholder
// instead of aborting the batch, until failLimit consecutive failures have
// accumulated; then the batch stops and the partial results are returned.
// The returned slice covers exactly the items attempted.
func runBatch(ctx context.Context, reqs []GenerationRequest, failLimit int,
	generate func(ctx context.Context, i int, req GenerationRequest) ([]byte, error)) []GenerationResult {

	results := make([]GenerationResult, 0, len(reqs))
	consecutive := 0

	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return results
		}

		data, err := generate(ctx, i, req)
		if err != nil {
			consecutive++
			results = append(results, GenerationResult{Err: err})
			if consecutive >= failLimit {
				return results
			}
			continue
		}

		consecutive = 0
		results = append(results, GenerationResult{Data: data})
	}

	return results
}
