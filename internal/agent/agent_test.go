package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectNewest(t *testing.T) {
	idx, ok := selectNewest(3)
	require.True(t, ok)
	assert.Equal(t, 2, idx, "newest result is always the last in document order")

	idx, ok = selectNewest(1)
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	_, ok = selectNewest(0)
	assert.False(t, ok)
}

func TestFullPrompt(t *testing.T) {
	req := GenerationRequest{Prompt: "a castle at night"}
	assert.Equal(t, "a castle at night", req.FullPrompt())

	req.StyleSuffix = "cinematic, 35mm"
	assert.Equal(t, "a castle at night, cinematic, 35mm", req.FullPrompt())
}

func TestPollStateResubmitsExactlyOnceInsideGrace(t *testing.T) {
	start := time.Now()
	state := newPollState(start, 10*time.Second)

	// First error surface within the grace window: resubmit.
	assert.True(t, state.onErrorSurface(start.Add(3*time.Second)))

	// Any further error surfaces never trigger another resubmit.
	assert.False(t, state.onErrorSurface(start.Add(5*time.Second)))
	assert.False(t, state.onErrorSurface(start.Add(20*time.Second)))
}

func TestPollStateIgnoresLateErrors(t *testing.T) {
	start := time.Now()
	state := newPollState(start, 10*time.Second)

	assert.False(t, state.onErrorSurface(start.Add(11*time.Second)),
		"errors after the grace window never resubmit")
	assert.False(t, state.onErrorSurface(start.Add(12*time.Second)))
}

func TestRunBatchAbortsAfterConsecutiveFailures(t *testing.T) {
	reqs := make([]GenerationRequest, 5)
	for i := range reqs {
		reqs[i] = GenerationRequest{Prompt: fmt.Sprintf("scene %d", i+1)}
	}

	boom := errors.New("ui timeout")
	var attempted []int
	results := runBatch(context.Background(), reqs, 3, func(_ context.Context, i int, _ GenerationRequest) ([]byte, error) {
		attempted = append(attempted, i)
		if i == 0 {
			return []byte("bytes1"), nil
		}
		return nil, boom
	})

	// Items 2, 3 and 4 fail consecutively; the batch stops there and item 5
	// is never attempted.
	require.Len(t, results, 4)
	assert.Equal(t, []int{0, 1, 2, 3}, attempted)
	assert.Equal(t, []byte("bytes1"), results[0].Data)
	for i := 1; i < 4; i++ {
		assert.Nil(t, results[i].Data)
		assert.ErrorIs(t, results[i].Err, boom)
	}
}

func TestRunBatchResetsConsecutiveCountOnSuccess(t *testing.T) {
	reqs := make([]GenerationRequest, 6)
	fail := map[int]bool{1: true, 2: true, 4: true}

	results := runBatch(context.Background(), reqs, 3, func(_ context.Context, i int, _ GenerationRequest) ([]byte, error) {
		if fail[i] {
			return nil, errors.New("transient")
		}
		return []byte{byte(i)}, nil
	})

	// Two failures, a success, one more failure: never three in a row, so
	// the whole batch runs.
	require.Len(t, results, 6)
	assert.NotNil(t, results[3].Data)
	assert.Nil(t, results[4].Data)
	assert.NotNil(t, results[5].Data)
}

func TestRunBatchHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	reqs := make([]GenerationRequest, 3)
	results := runBatch(ctx, reqs, 3, func(_ context.Context, i int, _ GenerationRequest) ([]byte, error) {
		if i == 0 {
			cancel()
			return []byte("first"), nil
		}
		return nil, errors.New("should not run")
	})

	require.Len(t, results, 1)
	assert.Equal(t, []byte("first"), results[0].Data)
}

func TestBatchDriverUploadsReferencesOncePerBatch(t *testing.T) {
	alive := false
	var configured, reacquired int

	d := &batchDriver{
		pageAlive: func() bool { return alive },
		reacquire: func(context.Context) error {
			alive = true
			reacquired++
			return nil
		},
		configure: func(GenerationRequest) error {
			configured++
			return nil
		},
		generate: func(_ context.Context, req GenerationRequest) ([]byte, error) {
			return []byte(req.Prompt), nil
		},
	}

	refs := map[string][]string{"style": {"ref.png"}}
	for i := 0; i < 3; i++ {
		data, err := d.run(context.Background(), i, GenerationRequest{
			Prompt:    fmt.Sprintf("scene %d", i+1),
			RefImages: refs,
		})
		require.NoError(t, err)
		assert.Equal(t, []byte(fmt.Sprintf("scene %d", i+1)), data)
	}

	assert.Equal(t, 1, configured, "items after the first reuse the configured page")
	assert.Equal(t, 1, reacquired)
}

func TestBatchDriverReconfiguresAfterSessionLoss(t *testing.T) {
	alive := false
	var configured int

	d := &batchDriver{
		pageAlive: func() bool { return alive },
		reacquire: func(context.Context) error {
			alive = true
			return nil
		},
		configure: func(GenerationRequest) error {
			configured++
			return nil
		},
		generate: func(context.Context, GenerationRequest) ([]byte, error) {
			return []byte("ok"), nil
		},
	}

	_, err := d.run(context.Background(), 0, GenerationRequest{})
	require.NoError(t, err)
	_, err = d.run(context.Background(), 1, GenerationRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, configured)

	// The browser dies between items: the replacement page starts
	// unconfigured, so the references go up again.
	alive = false
	_, err = d.run(context.Background(), 2, GenerationRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, configured)
}

func TestBatchDriverRetriesConfigureAfterFailure(t *testing.T) {
	boom := errors.New("upload rejected")
	var attempts int

	d := &batchDriver{
		pageAlive: func() bool { return true },
		reacquire: func(context.Context) error { return nil },
		configure: func(GenerationRequest) error {
			attempts++
			if attempts == 1 {
				return boom
			}
			return nil
		},
		generate: func(context.Context, GenerationRequest) ([]byte, error) {
			return []byte("ok"), nil
		},
	}

	// A failed configuration fails the item and leaves the page
	// unconfigured, so the next item tries again.
	_, err := d.run(context.Background(), 0, GenerationRequest{})
	assert.ErrorIs(t, err, boom)

	data, err := d.run(context.Background(), 1, GenerationRequest{})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
	assert.Equal(t, 2, attempts)
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 1200*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 45*time.Second, cfg.PollTimeout)
	assert.Equal(t, 10*time.Second, cfg.ErrorGrace)
	assert.Equal(t, 200, cfg.MinResultPx)
	assert.Equal(t, 3, cfg.BatchFailureLimit)

	custom := Config{PollTimeout: time.Minute, BatchFailureLimit: 5}.withDefaults()
	assert.Equal(t, time.Minute, custom.PollTimeout)
	assert.Equal(t, 5, custom.BatchFailureLimit)
}
