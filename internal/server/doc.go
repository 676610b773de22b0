// Package server launches and controls the application server process.
//
// A Launcher turns Settings into handles. Each handle owns at most one
// process at a time:
//
//	┌──────────────┐  NewHandle   ┌──────────────┐   exec    ┌────────────────────┐
//	│   Launcher   │ ───────────► │    Handle    │ ────────► │ bin/standalone.sh  │
//	│  (settings)  │              │ (listeners)  │           │ bin/domain.sh      │
//	└──────────────┘              └──────┬───────┘           └─────────┬──────────┘
//	                                     │  HTTP management (readiness,│
//	                                     │  deploy, shutdown)          │
//	                                     └─────────────────────────────┘
//
// # Start
//
// The start script runs in its own process group with stdout and stderr
// captured. Start then polls every 100ms: first until the management port
// accepts TCP connections, then until server-state (standalone) or the
// primary host's host-state (domain) reads "running". OnStart listeners run
// synchronously once the server is ready.
//
// # Shutdown
//
// Shutdown runs the OnStop listeners, sends the management shutdown
// operation and waits for the process to exit. When the timeout elapses the
// whole process group is killed. Kill skips the listeners and the management
// call.
//
// # Managed handles
//
// Managed wraps a handle so that test code can use it but cannot start,
// stop or kill the shared server. Only groups in manual mode get the
// unwrapped handle.
package server
