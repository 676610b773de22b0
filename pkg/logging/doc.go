// Package logging provides the structured logging used across harness.
//
// It is a thin layer over Go's slog package: every record carries a
// subsystem tag, and callers use package-level helpers instead of passing
// loggers around.
//
// # Log Levels
//   - **Debug**: detailed information, such as readiness polling and cache hits
//   - **Info**: lifecycle milestones (server started, artifact deployed)
//   - **Warn**: recoverable problems, for example a failed undeploy or a kill fallback
//   - **Error**: failures that abort a group
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Coordinator", "Server %s started", handle.ID())
//	logging.Warn("Deployments", "Failed to undeploy %s", name)
//	logging.Error("Server", err, "Start failed")
//
// Inside tests, InitForTest sends records to t.Logf so output is attributed
// to the test that produced it:
//
//	func TestSomething(t *testing.T) {
//	    logging.InitForTest(t, logging.LevelDebug)
//	    ...
//	}
//
// # Subsystems
//
//   - **Coordinator**: shared server lifecycle
//   - **Deployments**: per-group deploy and undeploy
//   - **Address**: deployment address resolution
//   - **Registry**: resource producers and injection
//   - **Server**: process launching, readiness and shutdown
//   - **Management**: management API calls
//   - **ConfigLoader**: settings resolution
//   - **Gate**: module availability checks
//   - **CLI**: command line front-end
//
// # Thread Safety
//
// The helpers are safe for concurrent use. Swapping the logger with
// InitForCLI or InitForTest is guarded by a mutex.
package logging
