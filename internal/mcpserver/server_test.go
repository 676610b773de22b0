package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harness/internal/api"
	"harness/internal/config"
	"harness/internal/management"
	"harness/internal/testing/mock"
	"harness/pkg/logging"
)

func newTestServer(t *testing.T, topology api.Topology) (*Server, *mock.ManagementServer) {
	t.Helper()
	logging.InitForTest(t, logging.LevelDebug)
	srv := mock.NewManagementServer()
	t.Cleanup(srv.Close)

	client := management.NewClient(srv.Address())
	settings := &config.Settings{
		Protocol:           "http",
		Host:               "localhost",
		ManagementProtocol: "http",
		ManagementHost:     "localhost",
		ManagementPort:     9990,
		DomainHost:         "primary",
	}
	return New(client, management.NewDeploymentManager(client, topology), settings, topology, "test"), srv
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, r.Content)
	tc, ok := mcp.AsTextContent(r.Content[0])
	require.True(t, ok)
	return tc.Text
}

func siteDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "site")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("hi"), 0o644))
	return dir
}

func TestServerStatus(t *testing.T) {
	s, _ := newTestServer(t, api.TopologyStandalone)

	r, err := s.handleServerStatus(context.Background(), call(nil))
	require.NoError(t, err)
	assert.False(t, r.IsError)

	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(text(t, r)), &status))
	assert.Equal(t, "running", status["state"])
	assert.Equal(t, true, status["reachable"])
	assert.Equal(t, "standalone", status["topology"])
}

func TestServerStatusUnreachable(t *testing.T) {
	s, srv := newTestServer(t, api.TopologyStandalone)
	srv.Close()

	r, err := s.handleServerStatus(context.Background(), call(nil))
	require.NoError(t, err)
	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(text(t, r)), &status))
	assert.Equal(t, false, status["reachable"])
	assert.NotEmpty(t, status["error"])
}

func TestDeployListUndeploy(t *testing.T) {
	s, srv := newTestServer(t, api.TopologyStandalone)
	ctx := context.Background()

	r, err := s.handleDeployDirectory(ctx, call(map[string]any{"path": siteDir(t)}))
	require.NoError(t, err)
	require.False(t, r.IsError, text(t, r))
	var deployed map[string]any
	require.NoError(t, json.Unmarshal([]byte(text(t, r)), &deployed))
	assert.Equal(t, "site.war", deployed["name"])
	assert.NotEmpty(t, deployed["execution_id"])
	assert.Equal(t, []string{"site.war"}, srv.Deployments())

	r, err = s.handleListDeployments(ctx, call(nil))
	require.NoError(t, err)
	var list []api.DeploymentDescription
	require.NoError(t, json.Unmarshal([]byte(text(t, r)), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "site.war", list[0].Name)

	r, err = s.handleDeployDirectory(ctx, call(map[string]any{"path": siteDir(t)}))
	require.NoError(t, err)
	assert.True(t, r.IsError, "duplicate deployment fails")

	r, err = s.handleUndeploy(ctx, call(map[string]any{"name": "site.war"}))
	require.NoError(t, err)
	assert.False(t, r.IsError)
	assert.Empty(t, srv.Deployments())
}

func TestDeployDirectoryArguments(t *testing.T) {
	s, _ := newTestServer(t, api.TopologyStandalone)
	r, err := s.handleDeployDirectory(context.Background(), call(nil))
	require.NoError(t, err)
	assert.True(t, r.IsError)
	assert.Contains(t, text(t, r), "path argument is required")

	r, err = s.handleDeployDirectory(context.Background(), call(map[string]any{"path": "/does/not/exist"}))
	require.NoError(t, err)
	assert.True(t, r.IsError)
}

func TestDomainDeployNeedsServerGroups(t *testing.T) {
	s, srv := newTestServer(t, api.TopologyDomain)
	ctx := context.Background()

	r, err := s.handleDeployDirectory(ctx, call(map[string]any{"path": siteDir(t)}))
	require.NoError(t, err)
	assert.True(t, r.IsError)
	assert.Zero(t, srv.Uploads())

	r, err = s.handleDeployDirectory(ctx, call(map[string]any{
		"path":          siteDir(t),
		"name":          "app.war",
		"server_groups": "main-server-group, other-server-group",
	}))
	require.NoError(t, err)
	require.False(t, r.IsError, text(t, r))
	assert.Equal(t, []string{"main-server-group", "other-server-group"}, srv.ServerGroupsOf("app.war"))
}

func TestResolveAddress(t *testing.T) {
	s, srv := newTestServer(t, api.TopologyStandalone)
	ctx := context.Background()

	r, err := s.handleResolveAddress(ctx, call(map[string]any{"name": "missing.war", "path": "x"}))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/x", text(t, r))

	srv.SetAttribute([]api.AddressElement{
		{Key: "deployment", Value: "orders.war"},
		{Key: "subsystem", Value: "undertow"},
	}, "context-root", "/orders")
	r, err = s.handleResolveAddress(ctx, call(map[string]any{"name": "orders.war", "path": "/items/"}))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/orders/items", text(t, r))
}

func TestToolsRegistered(t *testing.T) {
	s, _ := newTestServer(t, api.TopologyStandalone)
	resp := s.MCPServer().HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	for _, name := range []string{"server_status", "list_deployments", "deploy_directory", "undeploy", "resolve_address"} {
		assert.Contains(t, string(data), `"name":"`+name+`"`)
	}
}

func TestSplitGroups(t *testing.T) {
	assert.Nil(t, splitGroups(""))
	assert.Equal(t, []string{"a", "b"}, splitGroups(" a,,b ,"))
}
