package httpstack

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exrt/exllm/internal/breaker"
	"github.com/exrt/exllm/internal/retry"
)

func TestBuild_RetryRetriesOn503ThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	policy := retry.DefaultPolicy()
	policy.BaseDelay = time.Millisecond
	policy.MaxDelay = 5 * time.Millisecond

	rt := Build(Config{Retry: policy}, http.DefaultTransport)
	client := &http.Client{Transport: rt}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, calls)
}

func TestBuild_CircuitBreakerShortCircuitsWhenOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := breaker.New("test", breaker.Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour, HalfOpenMaxRequests: 1})
	rt := Build(Config{Breaker: b}, http.DefaultTransport)
	client := &http.Client{Transport: rt}

	_, err := client.Get(srv.URL)
	require.NoError(t, err) // 500 is a valid HTTP response, not a transport error

	_, err = client.Get(srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit_open")
}

func TestBuild_HeadersLayerAppliesAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rt := Build(Config{SetHeaders: func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer secret")
	}}, http.DefaultTransport)
	client := &http.Client{Transport: rt}

	_, err := client.Get(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestBuild_CompressionGzipsRequestBody(t *testing.T) {
	var gotEncoding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEncoding = r.Header.Get("Content-Encoding")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rt := Build(Config{CompressRequests: true}, http.DefaultTransport)
	client := &http.Client{Transport: rt}

	_, err := client.Post(srv.URL, "application/json", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "gzip", gotEncoding)
}
