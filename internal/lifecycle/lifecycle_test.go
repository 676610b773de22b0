package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harness/internal/api"
	"harness/internal/config"
	"harness/internal/deployment"
	"harness/internal/management"
	"harness/internal/store"
	"harness/internal/testing/mock"
	"harness/pkg/logging"
)

type fixture struct {
	srv         *mock.ManagementServer
	suite       *store.Scope
	launcher    *mock.FakeLauncher
	coordinator *Coordinator
	settings    *config.Settings

	mu      sync.Mutex
	handles []*mock.FakeHandle
	// configure runs on every handle the launcher creates.
	configure func(h *mock.FakeHandle)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logging.InitForTest(t, logging.LevelDebug)

	f := &fixture{
		srv:   mock.NewManagementServer(),
		suite: store.NewSuite("suite"),
		settings: &config.Settings{
			Timeout:    config.Seconds(5 * time.Second),
			Protocol:   "http",
			Host:       "localhost",
			DomainHost: "primary",
		},
	}
	t.Cleanup(f.srv.Close)

	f.launcher = &mock.FakeLauncher{New: func(topology api.Topology) (api.ServerHandle, error) {
		client := management.NewClient(f.srv.Address())
		dm := management.NewDeploymentManager(client, topology)

		var fake *mock.FakeHandle
		var h api.ServerHandle
		if topology == api.TopologyDomain {
			d := mock.NewFakeDomainHandle(client, dm)
			fake, h = d.FakeHandle, d
		} else {
			fake = mock.NewFakeHandle(topology, client, dm)
			h = fake
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.configure != nil {
			f.configure(fake)
		}
		f.handles = append(f.handles, fake)
		return h, nil
	}}
	f.coordinator = NewCoordinator(f.suite, f.launcher, f.settings, WithMetrics(NewMetrics("test")))
	return f
}

func (f *fixture) handle(t *testing.T) *mock.FakeHandle {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.handles, 1)
	return f.handles[0]
}

func ordersWar() *deployment.WebArchive {
	war := deployment.NewWebArchive("orders")
	war.AddString("index.html", "orders")
	return war
}

func ordersGroup(name string, serverGroups ...string) *Group {
	return &Group{
		Name:    name,
		Methods: []deployment.Method{deployment.Producer("deployment", ordersWar, serverGroups...)},
	}
}

func undertow(prefix []api.AddressElement, name string) []api.AddressElement {
	out := append([]api.AddressElement{}, prefix...)
	return append(out,
		api.AddressElement{Key: "deployment", Value: name},
		api.AddressElement{Key: "subsystem", Value: "undertow"})
}

func TestBeginGroup_ConcurrentGroupsStartOnce(t *testing.T) {
	f := newFixture(t)
	f.configure = func(h *mock.FakeHandle) { h.StartDelay = 50 * time.Millisecond }
	ctx := context.Background()

	const groups = 10
	var wg sync.WaitGroup
	errs := make(chan error, groups)
	for i := 0; i < groups; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := f.coordinator.BeginGroup(ctx, &Group{Name: fmt.Sprintf("group-%d", i)})
			if err != nil {
				errs <- err
				return
			}
			errs <- s.End(ctx)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 1, f.launcher.Calls())
	assert.Equal(t, 1, f.handle(t).Starts())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.coordinator.Metrics().ServerStarts))
}

func TestBeginGroup_DeployUndeployRedeploy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.coordinator.BeginGroup(ctx, ordersGroup("OrdersIT"))
	require.NoError(t, err)
	first, ok := s.Record()
	require.True(t, ok)
	assert.Equal(t, "orders.war", first.Name)
	assert.Equal(t, []string{"orders.war"}, f.srv.Deployments())

	require.NoError(t, s.End(ctx))
	assert.Empty(t, f.srv.Deployments())
	_, ok = s.Record()
	assert.False(t, ok)

	s, err = f.coordinator.BeginGroup(ctx, ordersGroup("OrdersIT"))
	require.NoError(t, err)
	second, ok := s.Record()
	require.True(t, ok)
	assert.Equal(t, first.Name, second.Name)
	require.NoError(t, s.End(ctx))

	assert.Equal(t, 2.0, testutil.ToFloat64(f.coordinator.Metrics().Deployments.WithLabelValues(outcomeSuccess)))
	assert.Equal(t, 1, f.handle(t).Starts())
}

func TestDeployFor_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.coordinator.BeginGroup(ctx, ordersGroup("OrdersIT"))
	require.NoError(t, err)
	defer s.End(ctx)

	require.NoError(t, s.DeployFor(ctx, f.handle(t)))
	assert.Equal(t, 1, f.srv.Uploads())
}

func TestBeginGroup_BothStylesFailBeforeStart(t *testing.T) {
	f := newFixture(t)

	g := &Group{
		Name: "Broken",
		Methods: []deployment.Method{
			deployment.Producer("produce", ordersWar),
			deployment.Generate("generate", deployment.KindWeb, func(a *deployment.WebArchive) {}),
		},
	}
	_, err := f.coordinator.BeginGroup(context.Background(), g)
	require.Error(t, err)
	assert.True(t, api.IsConfigurationError(err))
	assert.Equal(t, 0, f.launcher.Calls())
	assert.Equal(t, 0, f.srv.Uploads())
}

func TestBeginGroup_InheritedDeclarationsConflict(t *testing.T) {
	f := newFixture(t)

	parent := ordersGroup("Base")
	child := &Group{Name: "Child", Parent: parent, Methods: []deployment.Method{deployment.Producer("other", ordersWar)}}

	_, err := f.coordinator.BeginGroup(context.Background(), child)
	require.Error(t, err)
	assert.True(t, api.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "more than one deployment method")
}

func TestBeginGroup_StartTimeoutKillsOnce(t *testing.T) {
	f := newFixture(t)
	f.settings.Timeout = config.Seconds(time.Millisecond)
	f.configure = func(h *mock.FakeHandle) { h.NeverReady = true }
	ctx := context.Background()

	_, err := f.coordinator.BeginGroup(ctx, ordersGroup("OrdersIT"))
	require.Error(t, err)
	assert.True(t, api.IsStartupTimeout(err))

	var timeoutErr *api.StartupTimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, time.Millisecond, timeoutErr.Timeout)

	h := f.handle(t)
	assert.Equal(t, 1, h.Kills())
	assert.Equal(t, 0, f.srv.Uploads())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.coordinator.Metrics().StartFailures))

	// a later group sees a stopped server and tries again
	h.NeverReady = false
	s, err := f.coordinator.BeginGroup(ctx, ordersGroup("OrdersIT"))
	require.NoError(t, err)
	defer s.End(ctx)
	assert.Equal(t, 2, h.Starts())
	assert.Equal(t, 1, h.Kills())
}

func TestBeginGroup_StartFailureIsNotTimeout(t *testing.T) {
	f := newFixture(t)
	f.configure = func(h *mock.FakeHandle) { h.StartErr = errors.New("standalone.sh: permission denied") }
	ctx := context.Background()

	_, err := f.coordinator.BeginGroup(ctx, ordersGroup("OrdersIT"))
	require.Error(t, err)
	assert.False(t, api.IsStartupTimeout(err))
	assert.Contains(t, err.Error(), "permission denied")

	h := f.handle(t)
	assert.Equal(t, 1, h.Kills())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.coordinator.Metrics().StartFailures))
}

func TestBeginGroup_DomainWithoutServerGroups(t *testing.T) {
	f := newFixture(t)

	_, err := f.coordinator.BeginGroup(context.Background(), &Group{
		Name:     "DomainIT",
		Topology: api.TopologyDomain,
		Methods:  []deployment.Method{deployment.Producer("deployment", ordersWar)},
	})
	require.Error(t, err)
	assert.True(t, api.IsConfigurationError(err))
	assert.Equal(t, 0, f.srv.Uploads())
}

func TestBeginGroup_DomainServerGroups(t *testing.T) {
	tests := []struct {
		name  string
		group *Group
		want  []string
	}{
		{
			name:  "declared on the method",
			group: &Group{Name: "DomainIT", Topology: api.TopologyDomain, Methods: ordersGroup("", "main-server-group").Methods},
			want:  []string{"main-server-group"},
		},
		{
			name: "deprecated group-wide list",
			group: &Group{
				Name:               "DomainIT",
				Topology:           api.TopologyDomain,
				DomainServerGroups: []string{"other-server-group"},
				Methods:            ordersGroup("").Methods,
			},
			want: []string{"other-server-group"},
		},
		{
			name: "method wins over group",
			group: &Group{
				Name:               "DomainIT",
				Topology:           api.TopologyDomain,
				DomainServerGroups: []string{"other-server-group"},
				Methods:            ordersGroup("", "main-server-group").Methods,
			},
			want: []string{"main-server-group"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			s, err := f.coordinator.BeginGroup(ctx, tt.group)
			require.NoError(t, err)

			rec, ok := s.Record()
			require.True(t, ok)
			assert.Equal(t, tt.want, rec.ServerGroups)
			assert.Equal(t, tt.want, f.srv.ServerGroupsOf("orders.war"))

			require.NoError(t, s.End(ctx))
			assert.Empty(t, f.srv.Deployments())
		})
	}
}

func TestBeginGroup_TopologyMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.coordinator.BeginGroup(ctx, &Group{Name: "A"})
	require.NoError(t, err)
	defer s.End(ctx)

	_, err = f.coordinator.BeginGroup(ctx, &Group{Name: "B", Topology: api.TopologyDomain})
	require.Error(t, err)
	assert.True(t, api.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "already runs a standalone server")
}

func TestBeginGroup_DeploymentFailure(t *testing.T) {
	f := newFixture(t)
	f.srv.FailOperation("add", "WFLYSRV0153: boom")
	ctx := context.Background()

	_, err := f.coordinator.BeginGroup(ctx, ordersGroup("OrdersIT"))
	require.Error(t, err)
	assert.True(t, api.IsDeploymentFailure(err))
	assert.Contains(t, err.Error(), "failed to deploy orders.war to server")
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.coordinator.Metrics().Deployments.WithLabelValues(outcomeFailure)))

	// the server stays up for other groups
	assert.True(t, f.handle(t).IsRunning(ctx))
	s, err := f.coordinator.BeginGroup(ctx, &Group{Name: "Other"})
	require.NoError(t, err)
	require.NoError(t, s.End(ctx))
}

func TestEnd_UndeployFailureOnlyWarns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.coordinator.BeginGroup(ctx, ordersGroup("OrdersIT"))
	require.NoError(t, err)
	_, err = s.BaseAddress(ctx, "")
	require.NoError(t, err)

	f.srv.FailOperation("undeploy", "WFLYCTL0158: nope")
	require.NoError(t, s.End(ctx))

	_, ok := s.Record()
	assert.False(t, ok)
	_, ok = s.Scope().Store().Get(store.AddressKey("OrdersIT", ""))
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.coordinator.Metrics().UndeployWarnings))
}

func TestResolveBaseAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plain, err := f.coordinator.BeginGroup(ctx, &Group{Name: "Plain"})
	require.NoError(t, err)
	defer plain.End(ctx)

	addr, err := plain.BaseAddress(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", addr.String())

	f.srv.SetAttribute(undertow(nil, "orders.war"), "context-root", "/app")
	s, err := f.coordinator.BeginGroup(ctx, ordersGroup("OrdersIT"))
	require.NoError(t, err)
	defer s.End(ctx)

	addr, err = s.BaseAddress(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/app", addr.String())

	for _, rel := range []string{"orders", "/orders", "orders/", "/orders/", "//orders//"} {
		assert.Equal(t, "http://localhost:8080/app/orders", addr.Join(rel).String(), rel)
	}

	reads := func() int {
		n := 0
		for _, op := range f.srv.Operations() {
			if op.Name == "read-attribute" && op.Params["name"] == "context-root" {
				n++
			}
		}
		return n
	}
	before := reads()
	_, err = s.BaseAddress(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, before, reads(), "address is memoized")
}

func TestResolveBaseAddress_FallsBackSilently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.coordinator.BeginGroup(ctx, ordersGroup("OrdersIT"))
	require.NoError(t, err)
	defer s.End(ctx)

	// no context-root attribute configured on the fake
	addr, err := s.BaseAddress(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", addr.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.coordinator.Metrics().AddressLookups.WithLabelValues(sourceFallback)))
}

func TestResolveBaseAddress_EnterpriseArchive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ear := []api.AddressElement{{Key: "deployment", Value: "shop.ear"}}
	f.srv.SetChildren(ear, "subdeployment", "lib.jar", "web.war")
	f.srv.SetAttribute(append(append([]api.AddressElement{}, ear...),
		api.AddressElement{Key: "subdeployment", Value: "web.war"},
		api.AddressElement{Key: "subsystem", Value: "undertow"}), "context-root", "/shop/")

	g := &Group{Name: "ShopIT", Methods: []deployment.Method{deployment.Producer("deployment", func() (*deployment.EnterpriseArchive, error) {
		e := deployment.NewEnterpriseArchive("shop")
		if err := e.AddModule(deployment.NewWebArchive("web")); err != nil {
			return nil, err
		}
		return e, nil
	})}}

	s, err := f.coordinator.BeginGroup(ctx, g)
	require.NoError(t, err)
	defer s.End(ctx)

	addr, err := s.BaseAddress(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/shop", addr.String())
}

func TestResolveBaseAddress_Node(t *testing.T) {
	t.Run("standalone server", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		s, err := f.coordinator.BeginGroup(ctx, ordersGroup("OrdersIT"))
		require.NoError(t, err)
		defer s.End(ctx)

		_, err = s.BaseAddress(ctx, "server-one")
		require.Error(t, err)
		assert.True(t, api.IsConfigurationError(err))
	})

	t.Run("domain server", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		prefix := []api.AddressElement{{Key: "host", Value: "primary"}, {Key: "server", Value: "server-one"}}
		f.srv.SetAttribute(undertow(prefix, "orders.war"), "context-root", "/orders-app")

		g := &Group{Name: "DomainIT", Topology: api.TopologyDomain, Methods: ordersGroup("", "main-server-group").Methods}
		s, err := f.coordinator.BeginGroup(ctx, g)
		require.NoError(t, err)
		defer s.End(ctx)

		addr, err := s.BaseAddress(ctx, "server-one")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080/orders-app", addr.String())

		// the default address is cached separately
		addr, err = s.BaseAddress(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080", addr.String())
	})
}

func TestManualMode_DeploysOnStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := ordersGroup("ManualIT")
	g.Manual = &ManualMode{}

	s, err := f.coordinator.BeginGroup(ctx, g)
	require.NoError(t, err)

	h := f.handle(t)
	assert.Equal(t, 0, h.Starts())
	assert.Equal(t, 1, h.Listeners())
	_, ok := s.Record()
	assert.False(t, ok, "no record before the server runs")

	raw, ok := s.ServerHandle()
	require.True(t, ok)
	require.NoError(t, raw.Start(ctx, time.Second))
	require.NoError(t, s.Err())

	rec, ok := s.Record()
	require.True(t, ok)
	assert.Equal(t, "orders.war", rec.Name)

	require.NoError(t, raw.Shutdown(ctx, time.Second))
	_, ok = s.Record()
	assert.False(t, ok)
	assert.Empty(t, f.srv.Deployments())

	require.NoError(t, s.End(ctx))
	assert.Equal(t, 0, h.Listeners())
	assert.Equal(t, 1, h.Shutdowns(), "End does not stop the server")
}

// gatedDeployments blocks Deploy until release is closed.
type gatedDeployments struct {
	api.DeploymentManager
	entered chan struct{}
	release chan struct{}
}

func (g *gatedDeployments) Deploy(ctx context.Context, d api.Deployment) (api.Result, error) {
	close(g.entered)
	<-g.release
	return g.DeploymentManager.Deploy(ctx, d)
}

func TestResolveBaseAddress_WaitsForDeployInFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.srv.SetAttribute(undertow(nil, "orders.war"), "context-root", "/app")

	gate := &gatedDeployments{entered: make(chan struct{}), release: make(chan struct{})}
	var fake *mock.FakeHandle
	f.launcher.New = func(topology api.Topology) (api.ServerHandle, error) {
		client := management.NewClient(f.srv.Address())
		gate.DeploymentManager = management.NewDeploymentManager(client, topology)
		fake = mock.NewFakeHandle(topology, client, gate)
		return fake, nil
	}

	g := ordersGroup("ManualIT")
	g.Manual = &ManualMode{}
	s, err := f.coordinator.BeginGroup(ctx, g)
	require.NoError(t, err)
	defer s.End(ctx)

	started := make(chan error, 1)
	go func() { started <- fake.Start(ctx, time.Second) }()
	<-gate.entered

	resolved := make(chan api.Address, 1)
	go func() {
		addr, err := s.BaseAddress(ctx, "")
		assert.NoError(t, err)
		resolved <- addr
	}()

	select {
	case addr := <-resolved:
		t.Fatalf("address %s resolved while the deployment was in flight", addr)
	case <-time.After(100 * time.Millisecond):
	}

	close(gate.release)
	require.NoError(t, <-started)
	require.NoError(t, s.Err())
	assert.Equal(t, "http://localhost:8080/app", (<-resolved).String())

	addr, err := s.BaseAddress(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/app", addr.String(), "the cached address stays current")
}

func TestManualMode_AlreadyRunning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	auto, err := f.coordinator.BeginGroup(ctx, &Group{Name: "Auto"})
	require.NoError(t, err)
	defer auto.End(ctx)

	g := ordersGroup("ManualIT")
	g.Manual = &ManualMode{}
	s, err := f.coordinator.BeginGroup(ctx, g)
	require.NoError(t, err)

	_, ok := s.Record()
	assert.True(t, ok)
	require.NoError(t, s.End(ctx))
	assert.Empty(t, f.srv.Deployments())
}

func TestManualMode_AutoStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := ordersGroup("ManualIT")
	g.Manual = &ManualMode{AutoStart: true}
	s, err := f.coordinator.BeginGroup(ctx, g)
	require.NoError(t, err)
	defer s.End(ctx)

	h := f.handle(t)
	assert.Equal(t, 1, h.Starts())
	_, ok := s.Record()
	assert.True(t, ok)

	raw, _ := s.ServerHandle()
	assert.NoError(t, raw.Kill(), "manual groups may control the server")
}

func TestServerHandle_ManagedForAutomaticGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.coordinator.BeginGroup(ctx, &Group{Name: "Auto"})
	require.NoError(t, err)
	defer s.End(ctx)

	h, ok := s.ServerHandle()
	require.True(t, ok)
	assert.True(t, errors.Is(h.Kill(), api.ErrUnmanaged))
	assert.True(t, errors.Is(h.Shutdown(ctx, time.Second), api.ErrUnmanaged))
	assert.Equal(t, 0, f.handle(t).Kills())
	assert.True(t, h.IsRunning(ctx))
}

func TestSuiteClose_StopsServer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coordinator.BeginGroup(ctx, &Group{Name: "Auto"})
	require.NoError(t, err)

	require.NoError(t, f.suite.Close(ctx))
	h := f.handle(t)
	assert.Equal(t, 1, h.Shutdowns())
	assert.Equal(t, 0, h.Kills())
	assert.False(t, h.IsRunning(ctx))
}

func TestStop_KillsWhenShutdownFails(t *testing.T) {
	f := newFixture(t)
	f.configure = func(h *mock.FakeHandle) { h.ShutdownErr = errors.New("management unavailable") }
	ctx := context.Background()

	s, err := f.coordinator.BeginGroup(ctx, &Group{Name: "Auto"})
	require.NoError(t, err)
	require.NoError(t, s.End(ctx))

	require.NoError(t, f.coordinator.Stop(ctx))
	h := f.handle(t)
	assert.Equal(t, 1, h.Shutdowns())
	assert.Equal(t, 1, h.Kills())
}

func TestGetHandle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, ok := f.coordinator.GetHandle(f.suite)
	assert.False(t, ok)
	assert.NoError(t, f.coordinator.Stop(ctx))
	assert.NoError(t, f.coordinator.Kill())

	s, err := f.coordinator.BeginGroup(ctx, &Group{Name: "Auto"})
	require.NoError(t, err)
	defer s.End(ctx)

	h, ok := f.coordinator.GetHandle(s.BeginCase("case-1"))
	require.True(t, ok)
	assert.Equal(t, f.handle(t).ID(), h.ID())
}

func TestMetrics_HandlerAndSummary(t *testing.T) {
	m := NewMetrics("harness")
	summary, err := m.Summary()
	require.NoError(t, err)
	assert.Empty(t, summary)

	m.ServerStarts.Inc()
	m.StartDuration.Observe(1.5)
	m.Deployments.WithLabelValues(outcomeSuccess).Inc()
	m.Deployments.WithLabelValues(outcomeFailure).Inc()

	summary, err = m.Summary()
	require.NoError(t, err)
	assert.Equal(t, "harness_deployments_total=2 harness_server_start_duration_seconds=1 harness_server_starts_total=1", summary)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `harness_deployments_total{outcome="success"} 1`)
}
