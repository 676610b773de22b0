package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"harness/internal/api"
	"harness/internal/management"
	"harness/pkg/logging"
)

const (
	readinessInterval = 100 * time.Millisecond
	dialTimeout       = 1 * time.Second
	stateCheckTimeout = 5 * time.Second
	killWaitTimeout   = 10 * time.Second
	logTailLines      = 20
)

// process is one run of the start script.
type process struct {
	cmd  *exec.Cmd
	logs *logCapture
	done chan struct{}
	err  error
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Handle is an api.ServerHandle backed by a local server process.
type Handle struct {
	id          string
	topology    api.Topology
	launcher    *Launcher
	client      *management.Client
	deployments *management.DeploymentManager
	listeners   *listenerSet

	// self is the outermost handle, passed to listeners so that a domain
	// listener receives the DomainHandle.
	self api.ServerHandle

	mu   sync.Mutex
	proc *process
}

// DomainHandle is a Handle for a managed domain.
type DomainHandle struct {
	*Handle
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) Topology() api.Topology { return h.topology }

func (h *Handle) Client() api.ManagementClient { return h.client }

func (h *Handle) Deployments() api.DeploymentManager { return h.deployments }

// AddListener registers l. The returned func removes it and is safe to call
// more than once.
func (h *Handle) AddListener(l api.ServerListener) func() {
	return h.listeners.add(l)
}

func (h *Handle) outer() api.ServerHandle {
	if h.self != nil {
		return h.self
	}
	return h
}

func (h *Handle) current() *process {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.proc
}

func (h *Handle) clear(p *process) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.proc == p {
		h.proc = nil
	}
}

// IsRunning reports whether the process is alive and the management
// interface reports the server as running.
func (h *Handle) IsRunning(ctx context.Context) bool {
	p := h.current()
	if p == nil || p.exited() {
		return false
	}
	checkCtx, cancel := context.WithTimeout(ctx, stateCheckTimeout)
	defer cancel()
	return h.checkState(checkCtx) == nil
}

// Start launches the server and waits until it is ready. Calling Start on
// a handle whose process is alive only waits for readiness; listeners are
// notified once per process.
func (h *Handle) Start(ctx context.Context, timeout time.Duration) error {
	p, fresh, err := h.launch()
	if err != nil {
		return err
	}

	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	if err := h.waitForReady(readyCtx, p); err != nil {
		return err
	}
	if !fresh {
		return nil
	}
	logging.Info("Server", "Server %s (%s) is ready after %s", h.id, h.topology, time.Since(started).Round(time.Millisecond))

	h.listeners.fireStart(h.outer())
	return nil
}

func (h *Handle) launch() (*process, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.proc != nil && !h.proc.exited() {
		return h.proc, false, nil
	}

	cl, err := h.launcher.command(h.topology)
	if err != nil {
		return nil, false, err
	}

	cmd := exec.Command(cl.Path, cl.Args...)
	cmd.Env = append(os.Environ(), cl.Env...)
	cmd.WaitDelay = killWaitTimeout
	configureProcAttr(cmd)

	logs := newLogCapture(h.id)
	cmd.Stdout = logs.stdoutWriter
	cmd.Stderr = logs.stderrWriter

	logging.Info("Server", "Starting %s server %s: %s", h.topology, h.id, cl.Path)
	logging.Debug("Server", "Arguments: %v, environment: %v", cl.Args, cl.Env)
	if err := cmd.Start(); err != nil {
		logs.close()
		return nil, false, fmt.Errorf("failed to start %s: %w", cl.Path, err)
	}

	p := &process{cmd: cmd, logs: logs, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		logs.close()
		close(p.done)
	}()
	h.proc = p
	return p, true, nil
}

// waitForReady polls until the management port accepts connections and the
// server reports itself as running.
func (h *Handle) waitForReady(ctx context.Context, p *process) error {
	ticker := time.NewTicker(readinessInterval)
	defer ticker.Stop()

	mgmt := h.launcher.settings.ManagementAddress()
	target := net.JoinHostPort(mgmt.Host, strconv.Itoa(mgmt.Port))

	portReady := false
	var lastErr error
	for {
		select {
		case <-ctx.Done():
			if lastErr == nil {
				return fmt.Errorf("server %s was not ready: %w", h.id, ctx.Err())
			}
			return fmt.Errorf("server %s was not ready: %w: %w", h.id, lastErr, ctx.Err())
		case <-p.done:
			return fmt.Errorf("server process exited before it was ready: %v\n%s", p.err, p.logs.tail(logTailLines))
		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			if !portReady {
				conn, err := net.DialTimeout("tcp", target, dialTimeout)
				if err != nil {
					lastErr = fmt.Errorf("management port %s not reachable: %w", target, err)
					continue
				}
				conn.Close()
				portReady = true
				logging.Debug("Server", "Management port %s is open", target)
			}
			checkCtx, cancel := context.WithTimeout(ctx, stateCheckTimeout)
			err := h.checkState(checkCtx)
			cancel()
			if err != nil {
				// a request cut off by the deadline says nothing about the server
				if ctx.Err() == nil {
					lastErr = err
				}
				continue
			}
			return nil
		}
	}
}

func (h *Handle) stateOperation() api.Operation {
	if h.topology == api.TopologyDomain {
		return api.ReadAttribute("host-state", api.AddressElement{Key: "host", Value: h.launcher.settings.DomainHost})
	}
	return api.ReadAttribute("server-state")
}

func (h *Handle) checkState(ctx context.Context) error {
	r, err := h.client.Execute(ctx, h.stateOperation())
	if err != nil {
		return err
	}
	state, ok := r.StringValue()
	if !ok {
		return fmt.Errorf("server state unavailable: %s", r.FailureMessage)
	}
	if state != "running" {
		return fmt.Errorf("server state is %q", state)
	}
	return nil
}

// Shutdown stops the server gracefully. When the process does not exit
// within timeout its process group is killed and an error is returned.
func (h *Handle) Shutdown(ctx context.Context, timeout time.Duration) error {
	p := h.current()
	if p == nil {
		return nil
	}
	if p.exited() {
		h.clear(p)
		return nil
	}

	h.listeners.fireStop(h.outer())

	logging.Info("Server", "Stopping server %s", h.id)
	pid := p.cmd.Process.Pid
	if err := h.sendShutdown(ctx); err != nil {
		logging.WarnErr("Server", err, "Management shutdown of %s failed, terminating process group %d", h.id, pid)
		if err := signalProcessGroup(pid, terminateSignal()); err != nil {
			logging.Debug("Server", "Failed to terminate process group %d: %v", pid, err)
		}
	}

	defer h.clear(p)
	select {
	case <-p.done:
		// reap anything the script left behind
		_ = signalProcessGroup(pid, killSignal())
		logging.Info("Server", "Server %s stopped", h.id)
		return nil
	case <-time.After(timeout):
		err := h.forceKill(p)
		return fmt.Errorf("server %s did not stop within %s and was killed: %v", h.id, timeout, err)
	case <-ctx.Done():
		_ = h.forceKill(p)
		return ctx.Err()
	}
}

func (h *Handle) sendShutdown(ctx context.Context) error {
	op := api.NewOperation("shutdown")
	if h.topology == api.TopologyDomain {
		op = api.NewOperation("shutdown", api.AddressElement{Key: "host", Value: h.launcher.settings.DomainHost})
	}
	r, err := h.client.Execute(ctx, op)
	if err != nil {
		return err
	}
	if !r.Success {
		return fmt.Errorf("shutdown failed: %s", r.FailureMessage)
	}
	return nil
}

// Kill terminates the process group immediately. Listeners are not called.
func (h *Handle) Kill() error {
	p := h.current()
	if p == nil {
		return nil
	}
	defer h.clear(p)
	if p.exited() {
		return nil
	}
	logging.Warn("Server", "Killing server %s", h.id)
	return h.forceKill(p)
}

func (h *Handle) forceKill(p *process) error {
	err := signalProcessGroup(p.cmd.Process.Pid, killSignal())
	select {
	case <-p.done:
		return nil
	case <-time.After(killWaitTimeout):
		if err == nil {
			err = fmt.Errorf("process %d did not exit after kill", p.cmd.Process.Pid)
		}
		return err
	}
}

// HostAddress returns the address of the primary host controller. The name
// is read from local-host-name, falling back to the configured domain host.
func (h *DomainHandle) HostAddress(ctx context.Context) ([]api.AddressElement, error) {
	name := h.launcher.settings.DomainHost
	r, err := h.client.Execute(ctx, api.ReadAttribute("local-host-name"))
	if err != nil {
		return nil, err
	}
	if v, ok := r.StringValue(); ok && v != "" {
		name = v
	}
	return []api.AddressElement{{Key: "host", Value: name}}, nil
}
