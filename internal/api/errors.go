package api

import (
	"errors"
	"fmt"
	"time"
)

// ConfigurationError reports a caller misconfiguration, such as two
// deployment declarations on one group or a domain deployment without server
// groups.
//
// Configuration errors are always fatal and never retried. Where the problem
// can be detected without touching the server, it is reported before any
// process is started.
type ConfigurationError struct {
	// Subject names what was misconfigured (a group, a field, a setting).
	Subject string

	// Reason describes the problem.
	Reason string
}

// Error implements the error interface for ConfigurationError.
//
// Returns:
//   - string: "configuration error in <subject>: <reason>"
func (e *ConfigurationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Subject, e.Reason)
}

// IsConfigurationError checks if an error is or wraps a ConfigurationError.
//
// Args:
//   - err: The error to check
//
// Returns:
//   - bool: true if the error is or wraps a ConfigurationError
//
// Example:
//
//	if _, _, err := resolver.Resolve(group); api.IsConfigurationError(err) {
//	    t.Fatalf("fix the group declaration: %v", err)
//	}
func IsConfigurationError(err error) bool {
	var configErr *ConfigurationError
	return errors.As(err, &configErr)
}

// NewConfigurationError creates a ConfigurationError with a formatted reason.
//
// Args:
//   - subject: What was misconfigured
//   - format: fmt format for the reason
//   - args: Format arguments
//
// Returns:
//   - *ConfigurationError: A new ConfigurationError
func NewConfigurationError(subject, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Subject: subject,
		Reason:  fmt.Sprintf(format, args...),
	}
}

// StartupTimeoutError reports that the shared server did not become ready
// within its configured timeout. The handle has been killed by the time the
// caller sees this error.
type StartupTimeoutError struct {
	// Timeout is the startup budget that was exceeded.
	Timeout time.Duration

	// Cause is the underlying start failure, if any.
	Cause error
}

// Error implements the error interface for StartupTimeoutError.
func (e *StartupTimeoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("server failed to start within %s: %v", e.Timeout, e.Cause)
	}
	return fmt.Sprintf("server failed to start within %s", e.Timeout)
}

// Unwrap returns the underlying start failure.
func (e *StartupTimeoutError) Unwrap() error {
	return e.Cause
}

// IsStartupTimeout checks if an error is or wraps a StartupTimeoutError.
//
// Args:
//   - err: The error to check
//
// Returns:
//   - bool: true if the error is or wraps a StartupTimeoutError
func IsStartupTimeout(err error) bool {
	var timeoutErr *StartupTimeoutError
	return errors.As(err, &timeoutErr)
}

// DeploymentFailureError reports that the deployment manager rejected an
// artifact. It is fatal for the owning group only; the shared server stays
// available to other groups.
type DeploymentFailureError struct {
	// Name is the deployment name.
	Name string

	// Message is the failure description returned by the server.
	Message string

	// Cause is set when the deploy call itself failed.
	Cause error
}

// Error implements the error interface for DeploymentFailureError.
func (e *DeploymentFailureError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	return fmt.Sprintf("failed to deploy %s to server: %s", e.Name, msg)
}

// Unwrap returns the transport failure, if any.
func (e *DeploymentFailureError) Unwrap() error {
	return e.Cause
}

// IsDeploymentFailure checks if an error is or wraps a DeploymentFailureError.
//
// Args:
//   - err: The error to check
//
// Returns:
//   - bool: true if the error is or wraps a DeploymentFailureError
func IsDeploymentFailure(err error) bool {
	var deployErr *DeploymentFailureError
	return errors.As(err, &deployErr)
}

// InjectionError reports that a value could not be produced for an injection
// target. Cause holds the producer's own failure, when there was one.
type InjectionError struct {
	// Target names the field or parameter being populated.
	Target string

	// Type is the requested resource type.
	Type string

	// Cause is the producer failure; nil when no producer matched.
	Cause error
}

// Error implements the error interface for InjectionError.
func (e *InjectionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("could not find a producer for %s (type %s)", e.Target, e.Type)
	}
	return fmt.Sprintf("failed to produce %s (type %s): %v", e.Target, e.Type, e.Cause)
}

// Unwrap returns the producer failure.
func (e *InjectionError) Unwrap() error {
	return e.Cause
}

// IsInjectionError checks if an error is or wraps an InjectionError.
//
// Args:
//   - err: The error to check
//
// Returns:
//   - bool: true if the error is or wraps an InjectionError
func IsInjectionError(err error) bool {
	var injectErr *InjectionError
	return errors.As(err, &injectErr)
}

// ErrNotRunning is returned by handle operations that need a running server.
var ErrNotRunning = errors.New("server is not running")

// ErrUnmanaged is returned when a test tries to control the lifecycle of a
// server the harness manages itself.
var ErrUnmanaged = errors.New("server lifecycle is managed by the harness; use manual mode to control it")
