package inject

import (
	"context"

	"harness/internal/api"
)

func handleOf(gc GroupResources) (api.ServerHandle, error) {
	h, ok := gc.ServerHandle()
	if !ok {
		return nil, api.ErrNotRunning
	}
	return h, nil
}

type serverProducer struct{}

func (serverProducer) CanProduce(_ GroupResources, req Request) bool {
	return req.Type == TargetServer
}

func (serverProducer) Produce(_ context.Context, gc GroupResources, _ Request) (any, error) {
	return handleOf(gc)
}

type managementClientProducer struct{}

func (managementClientProducer) CanProduce(_ GroupResources, req Request) bool {
	return req.Type == TargetManagementClient
}

func (managementClientProducer) Produce(_ context.Context, gc GroupResources, _ Request) (any, error) {
	h, err := handleOf(gc)
	if err != nil {
		return nil, err
	}
	return h.Client(), nil
}

type deploymentManagerProducer struct{}

func (deploymentManagerProducer) CanProduce(_ GroupResources, req Request) bool {
	return req.Type == TargetDeploymentManager
}

func (deploymentManagerProducer) Produce(_ context.Context, gc GroupResources, _ Request) (any, error) {
	h, err := handleOf(gc)
	if err != nil {
		return nil, err
	}
	return h.Deployments(), nil
}

// addressProducer resolves the deployment address, joined with the path
// qualifier and scoped to the node qualifier.
type addressProducer struct{}

func (addressProducer) CanProduce(_ GroupResources, req Request) bool {
	return req.Type == TargetAddress
}

func (addressProducer) Produce(ctx context.Context, gc GroupResources, req Request) (any, error) {
	addr, err := gc.BaseAddress(ctx, req.Qualifier(QualifierNode))
	if err != nil {
		return nil, err
	}
	if p := req.Qualifier(QualifierPath); p != "" {
		addr = addr.Join(p)
	}
	return addr, nil
}

type settingsProducer struct{}

func (settingsProducer) CanProduce(_ GroupResources, req Request) bool {
	return req.Type == TargetSettings
}

func (settingsProducer) Produce(_ context.Context, gc GroupResources, _ Request) (any, error) {
	return gc.Settings(), nil
}
