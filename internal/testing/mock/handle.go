package mock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"harness/internal/api"
)

// FakeHandle is an api.ServerHandle without a process behind it.
type FakeHandle struct {
	id          string
	topology    api.Topology
	client      api.ManagementClient
	deployments api.DeploymentManager

	mu        sync.Mutex
	running   bool
	starts    int
	shutdowns int
	kills     int
	listeners map[int]api.ServerListener
	nextID    int

	// NeverReady makes Start block until its timeout or context expires and
	// then fail, like a server that never reports itself as running.
	NeverReady bool
	// StartDelay is slept inside Start before the server counts as running.
	StartDelay time.Duration
	// StartErr makes Start fail immediately when set.
	StartErr error
	// ShutdownErr is returned by Shutdown when set.
	ShutdownErr error
}

// NewFakeHandle creates a stopped fake handle.
func NewFakeHandle(topology api.Topology, client api.ManagementClient, deployments api.DeploymentManager) *FakeHandle {
	return &FakeHandle{
		id:          uuid.New().String(),
		topology:    topology,
		client:      client,
		deployments: deployments,
		listeners:   make(map[int]api.ServerListener),
	}
}

func (h *FakeHandle) ID() string { return h.id }

func (h *FakeHandle) Topology() api.Topology { return h.topology }

func (h *FakeHandle) Client() api.ManagementClient { return h.client }

func (h *FakeHandle) Deployments() api.DeploymentManager { return h.deployments }

// IsRunning reports whether Start succeeded and no Shutdown or Kill followed.
func (h *FakeHandle) IsRunning(ctx context.Context) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Start marks the handle running and notifies OnStart listeners.
func (h *FakeHandle) Start(ctx context.Context, timeout time.Duration) error {
	h.mu.Lock()
	h.starts++
	never, delay, startErr := h.NeverReady, h.StartDelay, h.StartErr
	h.mu.Unlock()

	if startErr != nil {
		return startErr
	}
	if never {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(timeout):
			return fmt.Errorf("server %s did not become ready within %s: %w", h.id, timeout, context.DeadlineExceeded)
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	h.mu.Lock()
	h.running = true
	h.mu.Unlock()

	for _, l := range h.snapshot() {
		l.OnStart(h)
	}
	return nil
}

// Shutdown notifies OnStop listeners and marks the handle stopped.
func (h *FakeHandle) Shutdown(ctx context.Context, timeout time.Duration) error {
	h.mu.Lock()
	h.shutdowns++
	wasRunning := h.running
	err := h.ShutdownErr
	h.mu.Unlock()

	if wasRunning {
		for _, l := range h.snapshot() {
			l.OnStop(h)
		}
	}
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.running = false
	h.mu.Unlock()
	return nil
}

// Kill marks the handle stopped without notifying listeners.
func (h *FakeHandle) Kill() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.kills++
	h.running = false
	return nil
}

// AddListener registers l and returns a func that removes it.
func (h *FakeHandle) AddListener(l api.ServerListener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = l
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners, id)
	}
}

func (h *FakeHandle) snapshot() []api.ServerListener {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]int, 0, len(h.listeners))
	for id := range h.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]api.ServerListener, 0, len(ids))
	for _, id := range ids {
		out = append(out, h.listeners[id])
	}
	return out
}

// Starts returns how many times Start was called.
func (h *FakeHandle) Starts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.starts
}

// Shutdowns returns how many times Shutdown was called.
func (h *FakeHandle) Shutdowns() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.shutdowns
}

// Kills returns how many times Kill was called.
func (h *FakeHandle) Kills() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kills
}

// Listeners returns the number of registered listeners.
func (h *FakeHandle) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// SetRunning flips the running state without calling listeners, as if the
// server had been started or had died outside the harness.
func (h *FakeHandle) SetRunning(running bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = running
}

// FakeDomainHandle is a FakeHandle for a domain topology.
type FakeDomainHandle struct {
	*FakeHandle
	Host string
}

// NewFakeDomainHandle creates a stopped fake domain handle whose primary
// host controller is called "primary".
func NewFakeDomainHandle(client api.ManagementClient, deployments api.DeploymentManager) *FakeDomainHandle {
	return &FakeDomainHandle{
		FakeHandle: NewFakeHandle(api.TopologyDomain, client, deployments),
		Host:       "primary",
	}
}

// HostAddress returns [host=<Host>].
func (h *FakeDomainHandle) HostAddress(ctx context.Context) ([]api.AddressElement, error) {
	if h.Host == "" {
		return nil, errors.New("no host controller")
	}
	return []api.AddressElement{{Key: "host", Value: h.Host}}, nil
}

// FakeLauncher creates handles through New and counts the calls.
type FakeLauncher struct {
	New func(topology api.Topology) (api.ServerHandle, error)

	mu      sync.Mutex
	calls   int
	handles []api.ServerHandle
}

// NewHandle calls New and records the result.
func (l *FakeLauncher) NewHandle(topology api.Topology) (api.ServerHandle, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()

	h, err := l.New(topology)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.handles = append(l.handles, h)
	l.mu.Unlock()
	return h, nil
}

// Calls returns how many times NewHandle was called.
func (l *FakeLauncher) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// Handles returns every handle created so far.
func (l *FakeLauncher) Handles() []api.ServerHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]api.ServerHandle, len(l.handles))
	copy(out, l.handles)
	return out
}
