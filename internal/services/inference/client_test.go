package inference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *[]time.Duration) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("TEST_INFERENCE_KEY", "token")
	primary := Endpoint{Name: "test", URL: srv.URL, APIKeyEnv: "TEST_INFERENCE_KEY"}

	client := NewClient(primary, Endpoint{}, nil, &Options{MaxRetries: 3})

	var slept []time.Duration
	client.sleep = func(d time.Duration) { slept = append(slept, d) }
	return client, &slept
}

func TestGenerateSuccess(t *testing.T) {
	client, slept := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte("image-bytes"))
	})

	out, err := client.Generate(context.Background(), map[string]string{"inputs": "a castle"})
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), out)
	assert.Empty(t, *slept)
}

func TestGenerateModelLoadingWaitsEstimatedTime(t *testing.T) {
	calls := 0
	client, slept := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error": "Model is currently loading", "estimated_time": 12}`))
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	out, err := client.Generate(context.Background(), map[string]string{"inputs": "x"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), out)

	require.Len(t, *slept, 1)
	assert.Equal(t, 12*time.Second, (*slept)[0], "must wait the server-provided estimate")
}

func TestGenerateRateLimitBackoffIsBounded(t *testing.T) {
	calls := 0
	client, slept := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Generate(context.Background(), map[string]string{"inputs": "x"})
	require.ErrorIs(t, err, ErrRetriesExhausted)

	// MaxRetries=3 means 4 attempts and 4 backoff sleeps, never more.
	assert.Equal(t, 4, calls)
	assert.Len(t, *slept, 4)
	for i := 1; i < len(*slept); i++ {
		assert.GreaterOrEqual(t, (*slept)[i], (*slept)[i-1]/2, "backoff must grow")
	}
}

func TestGenerateHardFailureSurfacesBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "prompt rejected"}`))
	})

	_, err := client.Generate(context.Background(), map[string]string{"inputs": "x"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Body, "prompt rejected")
}

func TestSelectEndpointFallsBackWithoutCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fallback-bytes"))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("TEST_FALLBACK_KEY", "token")
	primary := Endpoint{Name: "primary", URL: srv.URL, APIKeyEnv: "TEST_MISSING_KEY"}
	fallback := Endpoint{Name: "fallback", URL: srv.URL, APIKeyEnv: "TEST_FALLBACK_KEY"}

	client := NewClient(primary, fallback, nil, nil)
	client.sleep = func(time.Duration) {}

	out, err := client.Generate(context.Background(), map[string]string{"inputs": "x"})
	require.NoError(t, err)
	assert.Equal(t, []byte("fallback-bytes"), out)
}

func TestMinIntervalPacing(t *testing.T) {
	client, slept := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	client.opts.MinInterval = time.Minute

	_, err := client.Generate(context.Background(), map[string]string{"inputs": "a"})
	require.NoError(t, err)
	assert.Empty(t, *slept, "first call is not paced")

	_, err = client.Generate(context.Background(), map[string]string{"inputs": "b"})
	require.NoError(t, err)
	require.Len(t, *slept, 1)
	assert.Greater(t, (*slept)[0], 50*time.Second)
}
