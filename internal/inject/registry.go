package inject

import (
	"context"
	"sync"

	"harness/internal/api"
	"harness/internal/config"
	"harness/pkg/logging"
)

// TargetType names a kind of injectable resource.
type TargetType string

const (
	TargetServer            TargetType = "server"
	TargetManagementClient  TargetType = "management-client"
	TargetDeploymentManager TargetType = "deployment-manager"
	TargetAddress           TargetType = "address"
	TargetSettings          TargetType = "settings"
)

// Qualifier keys understood by the built-in producers.
const (
	QualifierPath = "path"
	QualifierNode = "node"
)

// GroupResources is what producers can draw on. *lifecycle.GroupSession
// implements it.
type GroupResources interface {
	ServerHandle() (api.ServerHandle, bool)
	Settings() *config.Settings
	BaseAddress(ctx context.Context, node string) (api.Address, error)
}

// Request asks for one resource.
type Request struct {
	Type       TargetType
	Qualifiers map[string]string
	// Target names the field or parameter being filled, for error messages.
	Target string
}

// Qualifier returns the qualifier value for key, or "".
func (r Request) Qualifier(key string) string {
	return r.Qualifiers[key]
}

// Producer creates resources for requests it accepts.
type Producer interface {
	CanProduce(gc GroupResources, req Request) bool
	Produce(ctx context.Context, gc GroupResources, req Request) (any, error)
}

// Registry holds producers in registration order. The first producer that
// accepts a request produces it.
type Registry struct {
	mu        sync.RWMutex
	producers []Producer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry creates a registry with the built-in producers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(serverProducer{})
	r.Register(managementClientProducer{})
	r.Register(deploymentManagerProducer{})
	r.Register(addressProducer{})
	r.Register(settingsProducer{})
	return r
}

// Register appends p.
func (r *Registry) Register(p Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers = append(r.producers, p)
}

// Resolve returns the first producer accepting req.
func (r *Registry) Resolve(gc GroupResources, req Request) (Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.producers {
		if p.CanProduce(gc, req) {
			return p, true
		}
	}
	return nil, false
}

// Produce resolves and runs a producer for req. Both a missing producer and
// a failing one are reported as *api.InjectionError; the producer's error is
// its Cause.
func (r *Registry) Produce(ctx context.Context, gc GroupResources, req Request) (any, error) {
	p, ok := r.Resolve(gc, req)
	if !ok {
		return nil, &api.InjectionError{Target: req.Target, Type: string(req.Type)}
	}
	v, err := p.Produce(ctx, gc, req)
	if err != nil {
		return nil, &api.InjectionError{Target: req.Target, Type: string(req.Type), Cause: err}
	}
	logging.Debug("Registry", "Produced %s for %s", req.Type, req.Target)
	return v, nil
}

// ProducerFuncs adapts two functions to Producer.
type ProducerFuncs struct {
	Can func(gc GroupResources, req Request) bool
	Run func(ctx context.Context, gc GroupResources, req Request) (any, error)
}

func (p ProducerFuncs) CanProduce(gc GroupResources, req Request) bool {
	return p.Can(gc, req)
}

func (p ProducerFuncs) Produce(ctx context.Context, gc GroupResources, req Request) (any, error) {
	return p.Run(ctx, gc, req)
}
