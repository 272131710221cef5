package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAfterConsecutiveServerFailures(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	httpClient := &http.Client{Transport: NewBreakerTransport(http.DefaultTransport, nil)}
	c := New(srv.URL, WithHTTPClient(httpClient))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.Fetch(ctx, "t1")
		require.Error(t, err)
		var ce *Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, KindUnknown, ce.Kind)
	}
	require.EqualValues(t, 5, hits.Load())

	// Open breaker: the request fails fast without a round trip.
	_, err := c.Fetch(ctx, "t1")
	require.Error(t, err)
	assert.EqualValues(t, 5, hits.Load())
}

func TestBreakerIgnoresSemanticFailures(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	httpClient := &http.Client{Transport: NewBreakerTransport(http.DefaultTransport, nil)}
	c := New(srv.URL, WithHTTPClient(httpClient))
	ctx := context.Background()

	// 4xx responses are outcomes, not backend health signals.
	for i := 0; i < 10; i++ {
		_, err := c.Fetch(ctx, "t1")
		require.Error(t, err)
		assert.True(t, IsVersionConflict(err))
	}
	assert.EqualValues(t, 10, hits.Load())
}
