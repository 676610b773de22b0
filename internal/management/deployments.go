package management

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"harness/internal/api"
	"harness/pkg/logging"
)

// DeploymentManager pushes artifacts through the management interface. It
// implements api.DeploymentManager.
type DeploymentManager struct {
	client   *Client
	topology api.Topology
}

// NewDeploymentManager creates a deployment manager for the given topology.
func NewDeploymentManager(client *Client, topology api.Topology) *DeploymentManager {
	return &DeploymentManager{client: client, topology: topology}
}

func deploymentAddress(name string) []api.AddressElement {
	return []api.AddressElement{{Key: "deployment", Value: name}}
}

func serverGroupDeploymentAddress(group, name string) []api.AddressElement {
	return []api.AddressElement{
		{Key: "server-group", Value: group},
		{Key: "deployment", Value: name},
	}
}

// DeployOperation builds the operation Deploy uploads. Standalone servers
// add and enable the content in one step; domains add the content once and
// then map it into each server group.
func DeployOperation(topology api.Topology, d api.Deployment) api.Operation {
	add := api.NewOperation("add", deploymentAddress(d.Name)...)
	add.Params["content"] = []map[string]any{{"input-stream-index": 0}}

	if topology == api.TopologyStandalone {
		add.Params["enabled"] = true
		return api.Composite(add)
	}

	steps := []api.Operation{add}
	for _, g := range d.ServerGroups {
		step := api.NewOperation("add", serverGroupDeploymentAddress(g, d.Name)...)
		step.Params["enabled"] = true
		steps = append(steps, step)
	}
	return api.Composite(steps...)
}

// UndeployOperation builds the operation Undeploy executes.
func UndeployOperation(topology api.Topology, d api.UndeployDescription) api.Operation {
	var steps []api.Operation
	if topology == api.TopologyStandalone {
		steps = append(steps, api.NewOperation("undeploy", deploymentAddress(d.Name)...))
	} else {
		for _, g := range d.ServerGroups {
			steps = append(steps, api.NewOperation("remove", serverGroupDeploymentAddress(g, d.Name)...))
		}
	}
	if d.RemoveContent {
		steps = append(steps, api.NewOperation("remove", deploymentAddress(d.Name)...))
	}
	return api.Composite(steps...)
}

// Deploy uploads d and enables it.
func (m *DeploymentManager) Deploy(ctx context.Context, d api.Deployment) (api.Result, error) {
	if m.topology == api.TopologyDomain && len(d.ServerGroups) == 0 {
		return api.Result{}, api.NewConfigurationError("deployment "+d.Name, "no server groups given for a domain deployment")
	}
	logging.Debug("Management", "Deploying %s (%s, server groups %v)", d.Name, m.topology, d.ServerGroups)
	return m.client.Upload(ctx, DeployOperation(m.topology, d), d.Name, d.Content)
}

// Undeploy disables and removes the deployment.
func (m *DeploymentManager) Undeploy(ctx context.Context, d api.UndeployDescription) (api.Result, error) {
	logging.Debug("Management", "Undeploying %s (%s, server groups %v)", d.Name, m.topology, d.ServerGroups)
	return m.client.Execute(ctx, UndeployOperation(m.topology, d))
}

// Deployments lists the deployments known to the server, sorted by name.
func (m *DeploymentManager) Deployments(ctx context.Context) ([]api.DeploymentDescription, error) {
	op := api.NewOperation("read-children-resources")
	op.Params["child-type"] = "deployment"

	r, err := m.client.Execute(ctx, op)
	if err != nil {
		return nil, err
	}
	if !r.Success {
		return nil, fmt.Errorf("failed to list deployments: %s", r.FailureMessage)
	}

	var byName map[string]api.DeploymentDescription
	if len(r.Value) > 0 {
		if err := json.Unmarshal(r.Value, &byName); err != nil {
			return nil, fmt.Errorf("failed to parse deployment list: %w", err)
		}
	}

	out := make([]api.DeploymentDescription, 0, len(byName))
	for name, d := range byName {
		if d.Name == "" {
			d.Name = name
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
