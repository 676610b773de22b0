// Package api holds the types, collaborator interfaces and error taxonomy
// shared by every harness package.
//
// Nothing in here imports another internal package. Implementations live in
// internal/server (process handles), internal/management (management client and
// deployment manager) and internal/lifecycle (coordination), and talk to each
// other only through the interfaces declared here.
//
// # Core Types
//
//   - **ServerHandle**: the live reference to the shared application server
//   - **DomainHandle**: a ServerHandle that manages several named server groups
//   - **ManagementClient**: executes management Operations and returns Results
//   - **DeploymentManager**: deploys, undeploys and lists artifacts
//   - **DeploymentRecord**: identity of one deployed artifact
//   - **Address**: an externally reachable base URL
//
// # Errors
//
// Every failure a caller may want to react to has a dedicated struct type with
// an IsX helper built on errors.As:
//
//   - ConfigurationError: caller misconfiguration, fatal and never retried
//   - StartupTimeoutError: the server did not become ready in time
//   - DeploymentFailureError: the deployment manager rejected an artifact
//   - InjectionError: a resource could not be produced for an injection target
//
// Example:
//
//	if err := coordinator.EnsureRunning(ctx, group); err != nil {
//	    if api.IsStartupTimeout(err) {
//	        // the shared server was killed
//	    }
//	    return err
//	}
package api
