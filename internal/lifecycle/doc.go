// Package lifecycle coordinates the shared server and the per-group
// deployments of a test suite.
//
// A Coordinator is created once per suite. Each group calls BeginGroup, runs
// its cases and calls End:
//
//	suite := store.NewSuite("integration")
//	coord := lifecycle.NewCoordinator(suite, server.NewLauncher(settings), settings)
//	defer suite.Close(ctx) // stops the server
//
//	s, err := coord.BeginGroup(ctx, &lifecycle.Group{Name: "OrdersIT", Methods: ...})
//	if err != nil {
//	    return err
//	}
//	defer s.End(ctx)
//
//	addr, err := s.BaseAddress(ctx, "")
//
// # Server
//
// The handle is created on first use and stored in the suite scope, so it is
// created at most once however many groups run in parallel. Starts are
// serialized; a start that fails or times out kills the server, and the next
// group to need it tries again.
//
// # Deployments
//
// Each group deploys at most one artifact. The record lives in the group
// scope and exists exactly while the artifact is deployed. Undeploy failures
// are logged and never fail the group.
//
// Groups in manual mode without autostart do not start the server. Their
// deployment follows the server through a listener: deploy on start,
// undeploy on stop.
//
// # Addresses
//
// BaseAddress reads the context root of the deployment over the management
// interface and caches the result in the group scope. Anything that goes
// wrong falls back to the configured base address.
package lifecycle
