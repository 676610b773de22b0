package lifecycle

import (
	"bytes"
	"context"

	"harness/internal/api"
	"harness/internal/deployment"
	"harness/internal/store"
	"harness/pkg/logging"
)

// DeployFor deploys the group's artifact to h and records it. It does
// nothing when the group already has a record or declares no deployment.
func (s *GroupSession) DeployFor(ctx context.Context, h api.ServerHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.Record(); ok {
		return nil
	}

	dep, method, err := deployment.Resolve(s.group.Declarations())
	if err != nil {
		return err
	}
	if dep == nil {
		logging.Debug("Deployments", "Group %s declares no deployment", s.group.Name)
		return nil
	}

	serverGroups, err := s.nodeGroups(h, method)
	if err != nil {
		return err
	}

	var content bytes.Buffer
	if err := dep.Export(&content); err != nil {
		s.coordinator.metrics.Deployments.WithLabelValues(outcomeFailure).Inc()
		return &api.DeploymentFailureError{Name: dep.Name(), Message: "could not package archive: " + err.Error(), Cause: err}
	}

	logging.Info("Deployments", "Deploying %s for group %s (%d bytes)", dep.Name(), s.group.Name, content.Len())
	r, err := h.Deployments().Deploy(ctx, api.Deployment{
		Name:         dep.Name(),
		Content:      &content,
		ServerGroups: serverGroups,
	})
	if err != nil {
		s.coordinator.metrics.Deployments.WithLabelValues(outcomeFailure).Inc()
		return &api.DeploymentFailureError{Name: dep.Name(), Cause: err}
	}
	if !r.Success {
		s.coordinator.metrics.Deployments.WithLabelValues(outcomeFailure).Inc()
		return &api.DeploymentFailureError{Name: dep.Name(), Message: r.FailureMessage}
	}

	st := s.scope.Store()
	st.Put(store.DeploymentKey(s.group.Name), api.DeploymentRecord{Name: dep.Name(), ServerGroups: serverGroups})
	// addresses resolved before the deployment existed point at the base
	st.RemoveNamespace(store.NamespaceAddress)
	s.coordinator.metrics.Deployments.WithLabelValues(outcomeSuccess).Inc()
	return nil
}

// nodeGroups returns the domain server groups a deployment targets. The
// method's own list wins over the deprecated group-wide one.
func (s *GroupSession) nodeGroups(h api.ServerHandle, m *deployment.Method) ([]string, error) {
	if h.Topology() != api.TopologyDomain {
		return nil, nil
	}
	if len(m.ServerGroups) > 0 {
		return m.ServerGroups, nil
	}
	if len(s.group.DomainServerGroups) > 0 {
		logging.Warn("Deployments",
			"Group %s declares server groups on the group, which is deprecated; declare them on deployment method %s",
			s.group.Name, m.Name)
		return s.group.DomainServerGroups, nil
	}
	return nil, api.NewConfigurationError("group "+s.group.Name,
		"deployment method %s targets a domain server but declares no server groups", m.Name)
}

// UndeployFor removes the group's artifact from h. Failures are logged as
// warnings only. The deployment record and every cached address are
// evicted either way.
func (s *GroupSession) UndeployFor(ctx context.Context, h api.ServerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.Record()
	if !ok {
		return
	}
	defer s.evict()

	logging.Info("Deployments", "Undeploying %s for group %s", rec.Name, s.group.Name)
	r, err := h.Deployments().Undeploy(ctx, api.UndeployDescription{
		Name:          rec.Name,
		ServerGroups:  rec.ServerGroups,
		RemoveContent: true,
	})
	switch {
	case err != nil:
		s.coordinator.metrics.UndeployWarnings.Inc()
		logging.WarnErr("Deployments", err, "Failed to undeploy %s", rec.Name)
	case !r.Success:
		s.coordinator.metrics.UndeployWarnings.Inc()
		logging.Warn("Deployments", "Failed to undeploy %s: %s", rec.Name, r.FailureMessage)
	}
}

// evict drops the record and cached addresses. s.mu must be held.
func (s *GroupSession) evict() {
	st := s.scope.Store()
	st.Remove(store.DeploymentKey(s.group.Name))
	st.RemoveNamespace(store.NamespaceAddress)
}
