package server

import (
	"context"
	"fmt"
	"time"

	"harness/internal/api"
)

// Managed wraps a handle whose lifecycle belongs to the harness. Everything
// except Start, Shutdown and Kill is passed through.
type Managed struct {
	api.ServerHandle
}

// managedDomain keeps HostAddress reachable through the wrapper.
type managedDomain struct {
	Managed
	domain api.DomainHandle
}

// NewManaged wraps h. A DomainHandle stays a DomainHandle.
func NewManaged(h api.ServerHandle) api.ServerHandle {
	if d, ok := h.(api.DomainHandle); ok {
		return &managedDomain{Managed: Managed{ServerHandle: h}, domain: d}
	}
	return &Managed{ServerHandle: h}
}

// Unwrap returns the wrapped handle.
func (m *Managed) Unwrap() api.ServerHandle { return m.ServerHandle }

func (m *Managed) Start(ctx context.Context, timeout time.Duration) error {
	return fmt.Errorf("start of %s rejected: %w", m.ID(), api.ErrUnmanaged)
}

func (m *Managed) Shutdown(ctx context.Context, timeout time.Duration) error {
	return fmt.Errorf("shutdown of %s rejected: %w", m.ID(), api.ErrUnmanaged)
}

func (m *Managed) Kill() error {
	return fmt.Errorf("kill of %s rejected: %w", m.ID(), api.ErrUnmanaged)
}

func (m *managedDomain) HostAddress(ctx context.Context) ([]api.AddressElement, error) {
	return m.domain.HostAddress(ctx)
}
