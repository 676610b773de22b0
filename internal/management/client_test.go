package management_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harness/internal/api"
	"harness/internal/management"
	"harness/internal/testing/mock"
)

func deploymentAt(name string) []api.AddressElement {
	return []api.AddressElement{{Key: "deployment", Value: name}, {Key: "subsystem", Value: "undertow"}}
}

func TestClient_ExecuteReadAttribute(t *testing.T) {
	srv := mock.NewManagementServer()
	defer srv.Close()
	srv.SetAttribute(deploymentAt("app.war"), "context-root", "/app")

	c := management.NewClient(srv.Address())
	r, err := c.Execute(context.Background(), api.ReadAttribute("context-root", deploymentAt("app.war")...))
	require.NoError(t, err)
	require.True(t, r.Success)

	v, ok := r.StringValue()
	assert.True(t, ok)
	assert.Equal(t, "/app", v)

	ops := srv.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, "read-attribute", ops[0].Name)
	assert.Equal(t, "/deployment=app.war/subsystem=undertow", ops[0].Address)
	assert.Equal(t, "context-root", ops[0].Params["name"])
}

func TestClient_FailedOutcomeIsNotAnError(t *testing.T) {
	srv := mock.NewManagementServer()
	defer srv.Close()

	c := management.NewClient(srv.Address())
	r, err := c.Execute(context.Background(), api.ReadAttribute("context-root", deploymentAt("missing.war")...))
	require.NoError(t, err)
	assert.False(t, r.Success)
	assert.Contains(t, r.FailureMessage, "WFLYCTL0216")

	_, ok := r.StringValue()
	assert.False(t, ok)
}

func TestClient_StructuredFailureDescription(t *testing.T) {
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"outcome":"failed","failure-description":{"domain-failure-description":"boom"}}`))
	}))
	defer hs.Close()

	addr, err := api.ParseAddress(hs.URL)
	require.NoError(t, err)

	r, err := management.NewClient(addr).Execute(context.Background(), api.NewOperation("whatever"))
	require.NoError(t, err)
	assert.False(t, r.Success)
	assert.Contains(t, r.FailureMessage, "domain-failure-description")
}

func TestClient_Unauthorized(t *testing.T) {
	var gotUser, gotPass string
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer hs.Close()

	addr, err := api.ParseAddress(hs.URL)
	require.NoError(t, err)

	c := management.NewClient(addr, management.WithCredentials("admin", "secret"))
	_, err = c.Execute(context.Background(), api.ReadAttribute("name"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, "admin", gotUser)
	assert.Equal(t, "secret", gotPass)
}

func TestClient_TransportError(t *testing.T) {
	srv := mock.NewManagementServer()
	addr := srv.Address()
	srv.Close()

	_, err := management.NewClient(addr).Execute(context.Background(), api.ReadAttribute("name"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "management request read-attribute failed")
}

func TestClient_Ping(t *testing.T) {
	srv := mock.NewManagementServer()
	defer srv.Close()

	c := management.NewClient(srv.Address())
	assert.NoError(t, c.Ping(context.Background()))

	srv.FailOperation("read-attribute", "not yet")
	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not yet")
}

func TestOperation_WireFormat(t *testing.T) {
	op := api.ReadAttribute("context-root", deploymentAt("app.war")...)
	data, err := json.Marshal(op)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"operation":"read-attribute","address":[{"deployment":"app.war"},{"subsystem":"undertow"}],"name":"context-root"}`,
		string(data))
}

func TestDeploymentManager_StandaloneRoundTrip(t *testing.T) {
	srv := mock.NewManagementServer()
	defer srv.Close()

	c := management.NewClient(srv.Address())
	dm := management.NewDeploymentManager(c, api.TopologyStandalone)
	ctx := context.Background()

	r, err := dm.Deploy(ctx, api.Deployment{Name: "app.war", Content: strings.NewReader("PK-content")})
	require.NoError(t, err)
	require.True(t, r.Success, r.FailureMessage)

	assert.Equal(t, 1, srv.Uploads())
	content, ok := srv.DeploymentContent("app.war")
	require.True(t, ok)
	assert.Equal(t, "PK-content", string(content))

	list, err := dm.Deployments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "app.war", list[0].Name)
	assert.Equal(t, "app.war", list[0].RuntimeName)
	assert.True(t, list[0].Enabled)

	// deploying again without undeploying is a duplicate
	r, err = dm.Deploy(ctx, api.Deployment{Name: "app.war", Content: bytes.NewReader(nil)})
	require.NoError(t, err)
	assert.False(t, r.Success)
	assert.Contains(t, r.FailureMessage, "Duplicate resource")

	r, err = dm.Undeploy(ctx, api.UndeployDescription{Name: "app.war", RemoveContent: true})
	require.NoError(t, err)
	require.True(t, r.Success, r.FailureMessage)
	assert.Empty(t, srv.Deployments())

	assert.Contains(t, srv.OperationNames(), "undeploy /deployment=app.war")
	assert.Contains(t, srv.OperationNames(), "remove /deployment=app.war")
}

func TestDeploymentManager_Domain(t *testing.T) {
	srv := mock.NewManagementServer()
	defer srv.Close()

	c := management.NewClient(srv.Address())
	dm := management.NewDeploymentManager(c, api.TopologyDomain)
	ctx := context.Background()

	_, err := dm.Deploy(ctx, api.Deployment{Name: "app.war", Content: strings.NewReader("x")})
	require.Error(t, err)
	assert.True(t, api.IsConfigurationError(err))
	assert.Equal(t, 0, srv.Uploads())

	r, err := dm.Deploy(ctx, api.Deployment{
		Name:         "app.war",
		Content:      strings.NewReader("x"),
		ServerGroups: []string{"main-server-group", "other-server-group"},
	})
	require.NoError(t, err)
	require.True(t, r.Success, r.FailureMessage)
	assert.Equal(t, []string{"main-server-group", "other-server-group"}, srv.ServerGroupsOf("app.war"))

	r, err = dm.Undeploy(ctx, api.UndeployDescription{
		Name:          "app.war",
		ServerGroups:  []string{"main-server-group", "other-server-group"},
		RemoveContent: true,
	})
	require.NoError(t, err)
	require.True(t, r.Success, r.FailureMessage)
	assert.Empty(t, srv.Deployments())

	names := srv.OperationNames()
	assert.Contains(t, names, "remove /server-group=main-server-group/deployment=app.war")
	assert.Contains(t, names, "remove /server-group=other-server-group/deployment=app.war")
}

func TestDeployOperation_Shapes(t *testing.T) {
	standalone := management.DeployOperation(api.TopologyStandalone, api.Deployment{Name: "a.war"})
	steps := standalone.Params["steps"].([]api.Operation)
	require.Len(t, steps, 1)
	assert.Equal(t, "add", steps[0].Name)
	assert.Equal(t, true, steps[0].Params["enabled"])

	domain := management.DeployOperation(api.TopologyDomain, api.Deployment{Name: "a.war", ServerGroups: []string{"g1", "g2"}})
	steps = domain.Params["steps"].([]api.Operation)
	require.Len(t, steps, 3)
	assert.Nil(t, steps[0].Params["enabled"])
	assert.Equal(t, "/server-group=g2/deployment=a.war", api.FormatAddress(steps[2].Address))

	undeploy := management.UndeployOperation(api.TopologyStandalone, api.UndeployDescription{Name: "a.war"})
	steps = undeploy.Params["steps"].([]api.Operation)
	require.Len(t, steps, 1)
	assert.Equal(t, "undeploy", steps[0].Name)
}
