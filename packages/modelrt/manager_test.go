package modelrt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureRunningSkipsStartWhenHealthy(t *testing.T) {
	probes := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/version", r.URL.Path)
		probes++
	}))
	defer server.Close()

	m := New(Config{BaseURL: server.URL, Container: "does-not-exist"})

	require.NoError(t, m.EnsureRunning(context.Background()))
	assert.Equal(t, 1, probes, "a healthy runtime needs no docker start")
}

func TestAcquireReleaseLease(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	m := New(Config{BaseURL: server.URL})
	require.NoError(t, m.EnsureRunning(context.Background()))

	release, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.inFlight.Load())

	release()
	release() // idempotent
	assert.Equal(t, int64(0), m.inFlight.Load())
}

func TestStopWaitsForLeases(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	m := New(Config{BaseURL: server.URL})
	require.NoError(t, m.EnsureRunning(context.Background()))

	release, err := m.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err = m.Stop(ctx)
	assert.Error(t, err, "stop must not proceed while a lease is held")
	assert.True(t, m.running.Load())

	release()
}
