package lifecycle

import (
	"context"
	"sync"

	"harness/internal/api"
	"harness/internal/config"
	"harness/internal/deployment"
	"harness/internal/server"
	"harness/internal/store"
	"harness/pkg/logging"
)

// GroupSession is the lifecycle state of one running group. It is created by
// BeginGroup and finished by End.
type GroupSession struct {
	group       *Group
	scope       *store.Scope
	coordinator *Coordinator

	// mu serializes DeployFor, UndeployFor and address resolution for the
	// group.
	mu sync.Mutex

	errMu     sync.Mutex
	manualErr error
}

// BeginGroup prepares the server for g and deploys g's artifact.
//
// Automatic groups (and manual groups with autostart) get a running server
// and their deployment before BeginGroup returns. Manual groups without
// autostart only get a handle; their deployment follows the server through a
// listener that deploys on start and undeploys on stop.
//
// Deployment declarations are validated before the server is touched, so a
// misdeclared group fails with a ConfigurationError without starting
// anything.
func (c *Coordinator) BeginGroup(ctx context.Context, g *Group) (*GroupSession, error) {
	if _, err := deployment.Find(g.Declarations()); err != nil {
		return nil, err
	}

	s := &GroupSession{
		group:       g,
		scope:       c.suite.Child(g.Name),
		coordinator: c,
	}
	if err := s.begin(ctx); err != nil {
		if cerr := s.scope.Close(ctx); cerr != nil {
			logging.WarnErr("Coordinator", cerr, "Failed to close scope of group %s", g.Name)
		}
		return nil, err
	}
	return s, nil
}

func (s *GroupSession) begin(ctx context.Context) error {
	c, g := s.coordinator, s.group

	var h api.ServerHandle
	var err error
	if g.startsServer() {
		h, err = c.EnsureRunning(ctx, g)
	} else {
		h, err = c.EnsureHandle(ctx, g)
	}
	if err != nil {
		return err
	}

	if g.IsManual() {
		remove := h.AddListener(&manualListener{session: s})
		s.scope.Store().Put(store.Key{Namespace: store.NamespaceListener, Name: g.Name}, listenerRegistration{remove: remove})
		logging.Debug("Coordinator", "Registered manual mode listener for group %s", g.Name)
	}

	if g.startsServer() || h.IsRunning(ctx) {
		return s.DeployFor(ctx, h)
	}
	logging.Info("Coordinator", "Group %s runs in manual mode; deployment waits for the server to start", g.Name)
	return nil
}

// Group returns the group descriptor.
func (s *GroupSession) Group() *Group { return s.group }

// Scope returns the group scope.
func (s *GroupSession) Scope() *store.Scope { return s.scope }

// Settings returns the suite settings.
func (s *GroupSession) Settings() *config.Settings { return s.coordinator.settings }

// Coordinator returns the coordinator that created the session.
func (s *GroupSession) Coordinator() *Coordinator { return s.coordinator }

// ServerHandle returns the shared handle as test code should see it. Manual
// groups get the handle itself; every other group gets a wrapper that
// rejects Start, Shutdown and Kill.
func (s *GroupSession) ServerHandle() (api.ServerHandle, bool) {
	h, ok := s.coordinator.GetHandle(s.scope)
	if !ok {
		return nil, false
	}
	if s.group.IsManual() {
		return h, true
	}
	return server.NewManaged(h), true
}

// Record returns the group's deployment record.
func (s *GroupSession) Record() (api.DeploymentRecord, bool) {
	return store.GetAs[api.DeploymentRecord](s.scope.Store(), store.DeploymentKey(s.group.Name))
}

// Err returns the last error of a deployment triggered by a server start in
// manual mode, if any.
func (s *GroupSession) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.manualErr
}

func (s *GroupSession) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.manualErr = err
}

// BeginCase creates the scope of one test case.
func (s *GroupSession) BeginCase(id string) *store.Scope {
	return s.scope.Child(id)
}

// End undeploys the group's artifact, removes its manual mode listener and
// closes the group scope. The server keeps running for other groups.
func (s *GroupSession) End(ctx context.Context) error {
	if h, ok := s.coordinator.GetHandle(s.scope); ok && h.IsRunning(ctx) {
		s.UndeployFor(ctx, h)
	} else {
		s.mu.Lock()
		s.evict()
		s.mu.Unlock()
	}
	return s.scope.Close(ctx)
}

// manualListener keeps a manual group's deployment in step with the server.
type manualListener struct {
	session *GroupSession
}

func (l *manualListener) OnStart(h api.ServerHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), l.session.Settings().TimeoutDuration())
	defer cancel()
	err := l.session.DeployFor(ctx, h)
	if err != nil {
		logging.Error("Coordinator", err, "Deployment of group %s after server start failed", l.session.group.Name)
	}
	l.session.setErr(err)
}

func (l *manualListener) OnStop(h api.ServerHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), l.session.Settings().TimeoutDuration())
	defer cancel()
	l.session.UndeployFor(ctx, h)
}

// listenerRegistration removes a listener when the group scope closes.
type listenerRegistration struct {
	remove func()
}

func (r listenerRegistration) Close(ctx context.Context) error {
	r.remove()
	return nil
}
