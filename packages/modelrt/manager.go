// Package modelrt
package modelrt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotHealthy is returned when the runtime container started but its API
// never answered the readiness probe.
var ErrNotHealthy = errors.New("model runtime did not become healthy")

type Config struct {
	BaseURL    string
	Container  string
	StartWait  time.Duration
	MaxRetries int
}

// Manager supervises the containerized inference server. The runtime is a
// shared singleton for the whole run: started before first use, kept alive
// while any filter call holds a lease, and stopped afterward to free the
// GPU/memory it pins.
type Manager struct {
	cfg      Config
	client   *http.Client
	inFlight atomic.Int64
	running  atomic.Bool
}

func New(cfg Config) *Manager {
	return &Manager{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// EnsureRunning makes the runtime reachable: probe first, `docker start` the
// container if needed, then poll the health endpoint with the configured
// retry budget.
func (m *Manager) EnsureRunning(ctx context.Context) error {
	if m.healthy(ctx) {
		m.running.Store(true)
		return nil
	}

	slog.Info("Starting model runtime container", "container", m.cfg.Container)
	cmd := exec.CommandContext(ctx, "docker", "start", m.cfg.Container)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("docker start %s: %w (%s)", m.cfg.Container, err, string(out))
	}

	for attempt := 1; attempt <= m.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.StartWait):
		}
		if m.healthy(ctx) {
			slog.Info("Model runtime is healthy", "attempts", attempt)
			m.running.Store(true)
			return nil
		}
		slog.Debug("Model runtime not ready yet", "attempt", attempt, "max", m.cfg.MaxRetries)
	}
	return fmt.Errorf("%w after %d attempts", ErrNotHealthy, m.cfg.MaxRetries)
}

// Acquire hands out a lease that blocks Stop while held. Callers must invoke
// the returned release exactly when their runtime call finishes; release is
// idempotent so it is safe to defer.
func (m *Manager) Acquire(ctx context.Context) (func(), error) {
	if !m.running.Load() {
		if err := m.EnsureRunning(ctx); err != nil {
			return nil, err
		}
	}
	m.inFlight.Add(1)
	var once sync.Once
	release := func() {
		once.Do(func() { m.inFlight.Add(-1) })
	}
	return release, nil
}

// Stop shuts the container down once all outstanding leases are released,
// polling until idle or the context expires. A run that leaves calls in
// flight keeps the runtime alive rather than yanking it out from under them.
func (m *Manager) Stop(ctx context.Context) error {
	for m.inFlight.Load() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("stop aborted, %d calls still in flight: %w", m.inFlight.Load(), ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}

	slog.Info("Stopping model runtime container", "container", m.cfg.Container)
	cmd := exec.CommandContext(ctx, "docker", "stop", m.cfg.Container)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("docker stop %s: %w (%s)", m.cfg.Container, err, string(out))
	}
	m.running.Store(false)
	return nil
}

// healthy probes the runtime's version endpoint.
func (m *Manager) healthy(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, "GET", m.cfg.BaseURL+"/api/version", nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
