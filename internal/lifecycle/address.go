package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"harness/internal/api"
	"harness/internal/store"
	"harness/pkg/logging"
)

// ResolveBaseAddress returns the address under which the group's deployment
// is reachable, optionally on a specific domain server (node). The result is
// cached in the group scope until the deployment changes.
//
// Without a deployment the statically configured base address is returned.
// When the context root cannot be read the base address is returned as
// well; only a node qualifier on a non-domain server is an error.
func (s *GroupSession) ResolveBaseAddress(ctx context.Context, h api.ServerHandle, node string) (api.Address, error) {
	// DeployFor and UndeployFor evict cached addresses under s.mu; a lookup
	// must not read the record before such a change and store after it.
	s.mu.Lock()
	defer s.mu.Unlock()

	key := store.AddressKey(s.group.Name, node)
	return store.ComputeAs(s.scope.Store(), key, func() (api.Address, error) {
		return s.resolveAddress(ctx, h, node)
	})
}

// BaseAddress resolves the address against the suite's handle.
func (s *GroupSession) BaseAddress(ctx context.Context, node string) (api.Address, error) {
	h, ok := s.coordinator.GetHandle(s.scope)
	if !ok {
		return api.Address{}, api.ErrNotRunning
	}
	return s.ResolveBaseAddress(ctx, h, node)
}

func (s *GroupSession) resolveAddress(ctx context.Context, h api.ServerHandle, node string) (api.Address, error) {
	base := s.Settings().BaseAddress()
	metrics := s.coordinator.metrics

	var prefix []api.AddressElement
	if node != "" {
		d, ok := h.(api.DomainHandle)
		if !ok {
			return api.Address{}, api.NewConfigurationError("group "+s.group.Name,
				"address of node %q requested, but the server is %s, not a domain", node, h.Topology())
		}
		host, err := d.HostAddress(ctx)
		if err != nil {
			logging.Debug("Address", "Host controller lookup failed, using %s: %v", base, err)
			metrics.AddressLookups.WithLabelValues(sourceFallback).Inc()
			return base, nil
		}
		prefix = append(append(prefix, host...), api.AddressElement{Key: "server", Value: node})
	}

	rec, ok := s.Record()
	if !ok {
		metrics.AddressLookups.WithLabelValues(sourceFallback).Inc()
		return base, nil
	}

	root, err := ContextRoot(ctx, h.Client(), prefix, rec.Name)
	if err != nil {
		logging.Debug("Address", "Context root of %s unavailable, using %s: %v", rec.Name, base, err)
		metrics.AddressLookups.WithLabelValues(sourceFallback).Inc()
		return base, nil
	}

	addr := base.WithPath(root)
	logging.Debug("Address", "Resolved %s for group %s to %s", rec.Name, s.group.Name, addr)
	metrics.AddressLookups.WithLabelValues(sourceManagement).Inc()
	return addr, nil
}

// ContextRoot reads the web context root of a deployment, optionally on a
// domain server identified by prefix. For enterprise archives the first web
// module is used.
func ContextRoot(ctx context.Context, client api.ManagementClient, prefix []api.AddressElement, name string) (string, error) {
	address := make([]api.AddressElement, 0, len(prefix)+3)
	address = append(address, prefix...)
	address = append(address, api.AddressElement{Key: "deployment", Value: name})

	if strings.HasSuffix(name, ".ear") {
		war, err := firstWebModule(ctx, client, address)
		if err != nil {
			return "", err
		}
		address = append(address, api.AddressElement{Key: "subdeployment", Value: war})
	}
	address = append(address, api.AddressElement{Key: "subsystem", Value: "undertow"})

	r, err := client.Execute(ctx, api.ReadAttribute("context-root", address...))
	if err != nil {
		return "", err
	}
	root, ok := r.StringValue()
	if !ok {
		return "", fmt.Errorf("no context root at %s: %s", api.FormatAddress(address), r.FailureMessage)
	}
	return root, nil
}

func firstWebModule(ctx context.Context, client api.ManagementClient, ear []api.AddressElement) (string, error) {
	r, err := client.Execute(ctx, api.ReadChildrenNames("subdeployment", ear...))
	if err != nil {
		return "", err
	}
	names, ok := r.StringList()
	if !ok {
		return "", fmt.Errorf("could not list subdeployments of %s: %s", api.FormatAddress(ear), r.FailureMessage)
	}
	for _, n := range names {
		if strings.HasSuffix(n, ".war") {
			return n, nil
		}
	}
	return "", fmt.Errorf("%s contains no web module", api.FormatAddress(ear))
}
