package harness

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"harness/internal/api"
	"harness/internal/config"
	"harness/internal/deployment"
	"harness/internal/inject"
	"harness/internal/lifecycle"
	"harness/internal/server"
	"harness/internal/store"
	"harness/pkg/logging"
)

// Group describes a test group. See lifecycle.Group.
type Group = lifecycle.Group

// ManualMode marks a group that drives the server itself.
type ManualMode = lifecycle.ManualMode

// Method is a deployment declaration.
type Method = deployment.Method

// ParamQualifier qualifies one parameter of a function passed to Call.
type ParamQualifier = inject.ParamQualifier

// Qualify attaches key=value options such as "path=orders" or
// "node=server-one" to parameter index.
func Qualify(index int, options string) ParamQualifier {
	return inject.Qualify(index, options)
}

// Suite is the shared state of one test binary: settings, the shared server
// and the producer registry. Create it in TestMain and close it after
// m.Run returns.
type Suite struct {
	name        string
	settings    *config.Settings
	scope       *store.Scope
	coordinator *lifecycle.Coordinator
	registry    *inject.Registry

	closeOnce sync.Once
	closeErr  error
}

type suiteOptions struct {
	settings   *config.Settings
	configOpts config.Options
	factory    lifecycle.HandleFactory
	registry   *inject.Registry
	metrics    *lifecycle.Metrics
}

// Option configures a Suite.
type Option func(*suiteOptions)

// WithSettings uses s instead of loading settings.
func WithSettings(s *config.Settings) Option {
	return func(o *suiteOptions) { o.settings = s }
}

// WithConfig controls where settings are loaded from.
func WithConfig(opts config.Options) Option {
	return func(o *suiteOptions) { o.configOpts = opts }
}

// WithLauncher replaces the process launcher, for example with a fake.
func WithLauncher(f lifecycle.HandleFactory) Option {
	return func(o *suiteOptions) { o.factory = f }
}

// WithRegistry replaces the default producer registry.
func WithRegistry(r *inject.Registry) Option {
	return func(o *suiteOptions) { o.registry = r }
}

// WithMetrics records lifecycle metrics in m.
func WithMetrics(m *lifecycle.Metrics) Option {
	return func(o *suiteOptions) { o.metrics = m }
}

// NewSuite creates a suite. Settings are loaded from the environment, .env
// and harness.yaml unless WithSettings is given.
func NewSuite(name string, opts ...Option) (*Suite, error) {
	var o suiteOptions
	for _, opt := range opts {
		opt(&o)
	}

	settings := o.settings
	if settings == nil {
		var err error
		settings, err = config.Load(o.configOpts)
		if err != nil {
			return nil, err
		}
	}
	if o.factory == nil {
		o.factory = server.NewLauncher(settings)
	}
	if o.registry == nil {
		o.registry = inject.DefaultRegistry()
	}

	var copts []lifecycle.Option
	if o.metrics != nil {
		copts = append(copts, lifecycle.WithMetrics(o.metrics))
	}

	scope := store.NewSuite(name)
	return &Suite{
		name:        name,
		settings:    settings,
		scope:       scope,
		coordinator: lifecycle.NewCoordinator(scope, o.factory, settings, copts...),
		registry:    o.registry,
	}, nil
}

// Settings returns the resolved settings.
func (s *Suite) Settings() *config.Settings { return s.settings }

// Coordinator returns the suite's lifecycle coordinator.
func (s *Suite) Coordinator() *lifecycle.Coordinator { return s.coordinator }

// Registry returns the producer registry. Custom producers registered here
// are visible to every group.
func (s *Suite) Registry() *inject.Registry { return s.registry }

// Handle returns the shared server handle, if one was created.
func (s *Suite) Handle() (api.ServerHandle, bool) {
	return s.coordinator.GetHandle(s.scope)
}

// Close closes the suite scope, which stops the shared server. It is safe to
// call more than once.
func (s *Suite) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		logging.Info("Coordinator", "Closing suite %s", s.name)
		s.closeErr = s.scope.Close(ctx)
		if summary, err := s.coordinator.Metrics().Summary(); err != nil {
			logging.WarnErr("Coordinator", err, "Could not gather metrics of suite %s", s.name)
		} else if summary != "" {
			logging.Info("Coordinator", "Suite %s metrics: %s", s.name, summary)
		}
	})
	return s.closeErr
}

// Run runs the tests and closes the suite afterwards. Use it from TestMain:
//
//	func TestMain(m *testing.M) {
//	    suite, err := harness.NewSuite("orders")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    os.Exit(suite.Run(m))
//	}
func (s *Suite) Run(m interface{ Run() int }) int {
	code := m.Run()
	ctx, cancel := context.WithTimeout(context.Background(), s.settings.TimeoutDuration())
	defer cancel()
	if err := s.Close(ctx); err != nil {
		logging.Error("Coordinator", err, "Failed to stop the server of suite %s", s.name)
		if code == 0 {
			code = 1
		}
	}
	return code
}

// BeginGroup starts the group: the server is started if needed, the group's
// artifact is deployed and the static fields of static (a pointer to a
// struct, or nil) are injected.
func (s *Suite) BeginGroup(ctx context.Context, g *Group, static any) (*GroupContext, error) {
	session, err := s.coordinator.BeginGroup(ctx, g)
	if err != nil {
		return nil, err
	}
	gc := &GroupContext{suite: s, session: session}
	if static != nil {
		if err := s.registry.InjectStatic(ctx, session, static); err != nil {
			if endErr := session.End(ctx); endErr != nil {
				logging.WarnErr("Coordinator", endErr, "Failed to end group %s", g.Name)
			}
			return nil, err
		}
	}
	return gc, nil
}

// GroupContext is a running group.
type GroupContext struct {
	suite   *Suite
	session *lifecycle.GroupSession

	mu    sync.Mutex
	cases int
}

// Session returns the underlying lifecycle session.
func (g *GroupContext) Session() *lifecycle.GroupSession { return g.session }

// Server returns the server handle as the group may use it. Handles of
// automatic groups reject Start, Shutdown and Kill.
func (g *GroupContext) Server() (api.ServerHandle, bool) { return g.session.ServerHandle() }

// Address returns the deployment address joined with path.
func (g *GroupContext) Address(ctx context.Context, path string) (api.Address, error) {
	addr, err := g.session.BaseAddress(ctx, "")
	if err != nil {
		return api.Address{}, err
	}
	return addr.Join(path), nil
}

// NodeAddress returns the deployment address on a domain server.
func (g *GroupContext) NodeAddress(ctx context.Context, node, path string) (api.Address, error) {
	addr, err := g.session.BaseAddress(ctx, node)
	if err != nil {
		return api.Address{}, err
	}
	return addr.Join(path), nil
}

// BeginCase creates a case scope and injects the non-static fields of
// instance (a pointer to a struct, or nil). A deployment failure from a
// manual mode server start is reported here.
func (g *GroupContext) BeginCase(ctx context.Context, name string, instance any) (*CaseContext, error) {
	if err := g.session.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.cases++
	id := fmt.Sprintf("%s#%d", name, g.cases)
	g.mu.Unlock()

	c := &CaseContext{group: g, scope: g.session.BeginCase(id)}
	if instance != nil {
		if err := g.suite.registry.InjectInstance(ctx, g.session, instance); err != nil {
			_ = c.scope.Close(ctx)
			return nil, err
		}
	}
	return c, nil
}

// Call invokes fn with injected arguments and returns its results.
// Qualifiers select the request path or domain node of a parameter:
//
//	g.Call(ctx, func(orders *url.URL) {...}, harness.Qualify(0, "path=orders"))
func (g *GroupContext) Call(ctx context.Context, fn any, qualifiers ...ParamQualifier) ([]reflect.Value, error) {
	args, err := g.suite.registry.ResolveParams(ctx, g.session, fn, qualifiers...)
	if err != nil {
		return nil, err
	}
	return reflect.ValueOf(fn).Call(args), nil
}

// End undeploys the group's artifact and closes its scope.
func (g *GroupContext) End(ctx context.Context) error {
	return g.session.End(ctx)
}

// CaseContext is a running test case.
type CaseContext struct {
	group *GroupContext
	scope *store.Scope
}

// Group returns the case's group.
func (c *CaseContext) Group() *GroupContext { return c.group }

// Scope returns the case scope. Values stored here are dropped when the
// case ends.
func (c *CaseContext) Scope() *store.Scope { return c.scope }

// End closes the case scope.
func (c *CaseContext) End(ctx context.Context) error {
	return c.scope.Close(ctx)
}
