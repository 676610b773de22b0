package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"harness/internal/api"
	"harness/internal/config"
	"harness/internal/store"
	"harness/pkg/logging"
)

var handleKey = store.Key{Namespace: store.NamespaceHandle, Name: "server"}

// HandleFactory creates server handles. server.Launcher is the production
// implementation.
type HandleFactory interface {
	NewHandle(topology api.Topology) (api.ServerHandle, error)
}

// Coordinator owns the shared server of a suite. The handle is created at
// most once and lives in the suite scope; closing the suite scope stops it.
type Coordinator struct {
	suite    *store.Scope
	factory  HandleFactory
	settings *config.Settings
	metrics  *Metrics

	// startMu serializes starts so that concurrent groups never start the
	// server twice.
	startMu sync.Mutex
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMetrics records lifecycle events in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// NewCoordinator creates a coordinator for the suite scope.
func NewCoordinator(suite *store.Scope, factory HandleFactory, settings *config.Settings, opts ...Option) *Coordinator {
	c := &Coordinator{
		suite:    suite.Root(),
		factory:  factory,
		settings: settings,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics("harness")
	}
	return c
}

// Settings returns the settings the coordinator was created with.
func (c *Coordinator) Settings() *config.Settings { return c.settings }

// Metrics returns the coordinator's metrics.
func (c *Coordinator) Metrics() *Metrics { return c.metrics }

// Suite returns the suite scope.
func (c *Coordinator) Suite() *store.Scope { return c.suite }

// sharedHandle is the value stored under handleKey. Closing it stops the
// server.
type sharedHandle struct {
	handle      api.ServerHandle
	coordinator *Coordinator
}

func (s *sharedHandle) Close(ctx context.Context) error {
	return s.coordinator.stop(ctx, s.handle)
}

// EnsureHandle returns the suite's handle, creating it for g's topology on
// first use. A group asking for a different topology than the existing
// handle's is a configuration error.
func (c *Coordinator) EnsureHandle(ctx context.Context, g *Group) (api.ServerHandle, error) {
	shared, err := store.ComputeAs(c.suite.Store(), handleKey, func() (*sharedHandle, error) {
		h, err := c.factory.NewHandle(g.Topology)
		if err != nil {
			return nil, err
		}
		logging.Info("Coordinator", "Created %s server handle %s for group %s", g.Topology, h.ID(), g.Name)
		return &sharedHandle{handle: h, coordinator: c}, nil
	})
	if err != nil {
		return nil, err
	}
	if got := shared.handle.Topology(); got != g.Topology {
		return nil, api.NewConfigurationError("group "+g.Name,
			"requires a %s server, but the suite already runs a %s server", g.Topology, got)
	}
	return shared.handle, nil
}

// EnsureRunning returns the suite's handle, starting the server when it is
// not running. A failed start kills the server once; a start that ran out
// of time is reported as a StartupTimeoutError. A later call tries again.
func (c *Coordinator) EnsureRunning(ctx context.Context, g *Group) (api.ServerHandle, error) {
	h, err := c.EnsureHandle(ctx, g)
	if err != nil {
		return nil, err
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()

	if h.IsRunning(ctx) {
		return h, nil
	}

	timeout := c.settings.TimeoutDuration()
	logging.Info("Coordinator", "Starting server %s for group %s (timeout %s)", h.ID(), g.Name, timeout)
	started := time.Now()
	if err := h.Start(ctx, timeout); err != nil {
		c.metrics.StartFailures.Inc()
		logging.Error("Coordinator", err, "Server %s failed to start, killing it", h.ID())
		if kerr := h.Kill(); kerr != nil {
			logging.WarnErr("Coordinator", kerr, "Failed to kill server %s", h.ID())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &api.StartupTimeoutError{Timeout: timeout, Cause: err}
		}
		return nil, fmt.Errorf("failed to start server %s: %w", h.ID(), err)
	}
	c.metrics.ServerStarts.Inc()
	c.metrics.StartDuration.Observe(time.Since(started).Seconds())
	return h, nil
}

// GetHandle returns the suite handle visible from scope, if one was created.
func (c *Coordinator) GetHandle(scope *store.Scope) (api.ServerHandle, bool) {
	shared, ok := store.GetAs[*sharedHandle](scope.Root().Store(), handleKey)
	if !ok {
		return nil, false
	}
	return shared.handle, true
}

// Stop shuts the shared server down, killing it when the graceful shutdown
// fails. It is a no-op before a handle exists.
func (c *Coordinator) Stop(ctx context.Context) error {
	h, ok := c.GetHandle(c.suite)
	if !ok {
		return nil
	}
	return c.stop(ctx, h)
}

func (c *Coordinator) stop(ctx context.Context, h api.ServerHandle) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	timeout := c.settings.TimeoutDuration()
	if err := h.Shutdown(ctx, timeout); err != nil {
		logging.WarnErr("Coordinator", err, "Graceful shutdown of server %s failed, killing it", h.ID())
		if kerr := h.Kill(); kerr != nil {
			return fmt.Errorf("failed to kill server %s after failed shutdown: %w", h.ID(), kerr)
		}
	}
	return nil
}

// Kill terminates the shared server immediately.
func (c *Coordinator) Kill() error {
	h, ok := c.GetHandle(c.suite)
	if !ok {
		return nil
	}
	return h.Kill()
}
