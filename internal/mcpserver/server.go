package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"harness/internal/api"
	"harness/internal/config"
	"harness/internal/deployment"
	"harness/internal/lifecycle"
	"harness/pkg/logging"
)

// Server exposes the management interface of a running application server
// as MCP tools.
type Server struct {
	client      api.ManagementClient
	deployments api.DeploymentManager
	settings    *config.Settings
	topology    api.Topology
	mcpServer   *server.MCPServer
}

// New creates the tool server. client and deployments must point at the
// same management endpoint.
func New(client api.ManagementClient, deployments api.DeploymentManager, settings *config.Settings, topology api.Topology, version string) *Server {
	s := &Server{
		client:      client,
		deployments: deployments,
		settings:    settings,
		topology:    topology,
		mcpServer: server.NewMCPServer(
			"harness",
			version,
			server.WithToolCapabilities(false),
		),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio serves the tools over stdin/stdout until the client goes away.
func (s *Server) ServeStdio() error {
	logging.Info("MCP", "Serving harness tools over stdio")
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("server_status",
		mcp.WithDescription("Report the state of the application server behind the management endpoint"),
	), s.handleServerStatus)

	s.mcpServer.AddTool(mcp.NewTool("list_deployments",
		mcp.WithDescription("List the deployments known to the server"),
	), s.handleListDeployments)

	s.mcpServer.AddTool(mcp.NewTool("deploy_directory",
		mcp.WithDescription("Package a directory as an archive and deploy it"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Directory to package"),
		),
		mcp.WithString("name",
			mcp.Description("Archive name; the extension selects the kind (default: <directory>.war)"),
		),
		mcp.WithString("server_groups",
			mcp.Description("Comma separated domain server groups"),
		),
	), s.handleDeployDirectory)

	s.mcpServer.AddTool(mcp.NewTool("undeploy",
		mcp.WithDescription("Undeploy a deployment and remove its content"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Deployment name, e.g. orders.war"),
		),
		mcp.WithString("server_groups",
			mcp.Description("Comma separated domain server groups"),
		),
	), s.handleUndeploy)

	s.mcpServer.AddTool(mcp.NewTool("resolve_address",
		mcp.WithDescription("Resolve the HTTP address a deployment is reachable under"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Deployment name, e.g. orders.war"),
		),
		mcp.WithString("path",
			mcp.Description("Path to append to the deployment address"),
		),
	), s.handleResolveAddress)
}

// stateOperation reads the server state for the configured topology.
func (s *Server) stateOperation() api.Operation {
	if s.topology == api.TopologyDomain {
		return api.ReadAttribute("host-state", api.AddressElement{Key: "host", Value: s.settings.DomainHost})
	}
	return api.ReadAttribute("server-state")
}

func (s *Server) handleServerStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := map[string]any{
		"topology":   s.topology.String(),
		"management": s.settings.ManagementAddress().String(),
	}
	r, err := s.client.Execute(ctx, s.stateOperation())
	if err != nil {
		status["reachable"] = false
		status["error"] = err.Error()
		return jsonResult(status)
	}
	status["reachable"] = true
	if state, ok := r.StringValue(); ok {
		status["state"] = state
	} else {
		status["error"] = r.FailureMessage
	}
	return jsonResult(status)
}

func (s *Server) handleListDeployments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.deployments.Deployments(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list deployments: %v", err)), nil
	}
	if list == nil {
		list = []api.DeploymentDescription{}
	}
	return jsonResult(list)
}

func (s *Server) handleDeployDirectory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path argument is required"), nil
	}
	name := request.GetString("name", "")
	if name == "" {
		name = deployment.DirectoryArchiveName(dir)
	}
	groups := splitGroups(request.GetString("server_groups", ""))
	if s.topology == api.TopologyDomain && len(groups) == 0 {
		return mcp.NewToolResultError("server_groups is required for a domain server"), nil
	}

	archive, err := deployment.FromDirectory(dir, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := deployment.Bytes(archive)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to package %s: %v", dir, err)), nil
	}

	executionID := uuid.New().String()
	logging.Info("MCP", "Deploying %s from %s (execution %s)", archive.Name(), dir, executionID)
	r, err := s.deployments.Deploy(ctx, api.Deployment{
		Name:         archive.Name(),
		Content:      content,
		ServerGroups: groups,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to deploy %s: %v", archive.Name(), err)), nil
	}
	if !r.Success {
		return mcp.NewToolResultError(fmt.Sprintf("Deployment of %s failed: %s", archive.Name(), r.FailureMessage)), nil
	}
	return jsonResult(map[string]any{
		"execution_id":  executionID,
		"name":          archive.Name(),
		"server_groups": groups,
		"deployed":      true,
	})
}

func (s *Server) handleUndeploy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name argument is required"), nil
	}
	r, err := s.deployments.Undeploy(ctx, api.UndeployDescription{
		Name:          name,
		ServerGroups:  splitGroups(request.GetString("server_groups", "")),
		RemoveContent: true,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to undeploy %s: %v", name, err)), nil
	}
	if !r.Success {
		return mcp.NewToolResultError(fmt.Sprintf("Undeploy of %s failed: %s", name, r.FailureMessage)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Undeployed %s", name)), nil
}

func (s *Server) handleResolveAddress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name argument is required"), nil
	}
	addr := s.settings.BaseAddress()
	root, err := lifecycle.ContextRoot(ctx, s.client, nil, name)
	if err != nil {
		logging.Debug("MCP", "Context root of %s unavailable: %v", name, err)
	} else {
		addr = addr.WithPath(root)
	}
	addr = addr.Join(request.GetString("path", ""))
	return mcp.NewToolResultText(addr.String()), nil
}

func splitGroups(s string) []string {
	var groups []string
	for _, g := range strings.Split(s, ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
