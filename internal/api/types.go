package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Topology is the shape of the managed server: one standalone node, or a
// domain of centrally managed server groups.
type Topology int

const (
	TopologyStandalone Topology = iota
	TopologyDomain
)

// String makes Topology satisfy the fmt.Stringer interface.
func (t Topology) String() string {
	switch t {
	case TopologyStandalone:
		return "standalone"
	case TopologyDomain:
		return "domain"
	default:
		return "unknown"
	}
}

// AddressElement is one key=value segment of a management resource address,
// for example deployment=app.war.
type AddressElement struct {
	Key   string
	Value string
}

// MarshalJSON renders the element as a single-entry object {"key":"value"}.
func (e AddressElement) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{e.Key: e.Value})
}

// UnmarshalJSON accepts the single-entry object form.
func (e *AddressElement) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if len(m) != 1 {
		return fmt.Errorf("address element must have exactly one entry, got %d", len(m))
	}
	for k, v := range m {
		e.Key, e.Value = k, v
	}
	return nil
}

// FormatAddress renders an address the way the server's CLI does,
// /deployment=app.war/subsystem=undertow.
func FormatAddress(address []AddressElement) string {
	if len(address) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, e := range address {
		b.WriteString("/")
		b.WriteString(e.Key)
		b.WriteString("=")
		b.WriteString(e.Value)
	}
	return b.String()
}

// Operation is a management request against a resource address.
type Operation struct {
	Name    string
	Address []AddressElement
	Params  map[string]any
}

// NewOperation creates an operation with an empty parameter map.
func NewOperation(name string, address ...AddressElement) Operation {
	return Operation{
		Name:    name,
		Address: address,
		Params:  map[string]any{},
	}
}

// ReadAttribute builds a read-attribute operation.
func ReadAttribute(attribute string, address ...AddressElement) Operation {
	op := NewOperation("read-attribute", address...)
	op.Params["name"] = attribute
	return op
}

// ReadChildrenNames builds a read-children-names operation.
func ReadChildrenNames(childType string, address ...AddressElement) Operation {
	op := NewOperation("read-children-names", address...)
	op.Params["child-type"] = childType
	return op
}

// Composite wraps steps into a single atomic operation.
func Composite(steps ...Operation) Operation {
	op := NewOperation("composite")
	op.Params["steps"] = steps
	return op
}

// MarshalJSON flattens the operation into the management wire format:
// {"operation":..., "address":[...], <params>}.
func (o Operation) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(o.Params)+2)
	for k, v := range o.Params {
		m[k] = v
	}
	m["operation"] = o.Name
	address := o.Address
	if address == nil {
		address = []AddressElement{}
	}
	m["address"] = address
	return json.Marshal(m)
}

// Result is the outcome of a management operation.
type Result struct {
	Success        bool
	Value          json.RawMessage
	FailureMessage string
}

// StringValue returns the result value when it is a JSON string.
func (r Result) StringValue() (string, bool) {
	if !r.Success || len(r.Value) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(r.Value, &s); err != nil {
		return "", false
	}
	return s, true
}

// StringList returns the result value when it is a JSON array of strings.
func (r Result) StringList() ([]string, bool) {
	if !r.Success || len(r.Value) == 0 {
		return nil, false
	}
	var s []string
	if err := json.Unmarshal(r.Value, &s); err != nil {
		return nil, false
	}
	return s, true
}

// ManagementClient executes operations against a running server.
type ManagementClient interface {
	Execute(ctx context.Context, op Operation) (Result, error)
}

// Deployment is a packaged artifact ready to be pushed to the server.
type Deployment struct {
	Name    string
	Content io.Reader
	// ServerGroups lists the domain server groups to deploy to. Empty for
	// standalone servers.
	ServerGroups []string
}

// UndeployDescription identifies a deployment to remove.
type UndeployDescription struct {
	Name          string
	ServerGroups  []string
	RemoveContent bool
}

// DeploymentDescription describes a deployment known to the server.
type DeploymentDescription struct {
	Name         string   `json:"name"`
	RuntimeName  string   `json:"runtime-name"`
	Enabled      bool     `json:"enabled"`
	Status       string   `json:"status,omitempty"`
	ServerGroups []string `json:"server-groups,omitempty"`
}

// DeploymentManager deploys and undeploys artifacts.
type DeploymentManager interface {
	Deploy(ctx context.Context, d Deployment) (Result, error)
	Undeploy(ctx context.Context, d UndeployDescription) (Result, error)
	Deployments(ctx context.Context) ([]DeploymentDescription, error)
}

// ServerListener receives state changes of a ServerHandle. Callbacks run
// synchronously on the goroutine that changed the state.
type ServerListener interface {
	OnStart(h ServerHandle)
	OnStop(h ServerHandle)
}

// ListenerFuncs adapts two functions to ServerListener. Nil funcs are skipped.
type ListenerFuncs struct {
	Start func(h ServerHandle)
	Stop  func(h ServerHandle)
}

func (l ListenerFuncs) OnStart(h ServerHandle) {
	if l.Start != nil {
		l.Start(h)
	}
}

func (l ListenerFuncs) OnStop(h ServerHandle) {
	if l.Stop != nil {
		l.Stop(h)
	}
}

// ServerHandle is the live reference to the shared server process.
type ServerHandle interface {
	ID() string
	Topology() Topology
	IsRunning(ctx context.Context) bool
	// Start launches the server and blocks until it is ready or timeout elapses.
	Start(ctx context.Context, timeout time.Duration) error
	// Shutdown stops the server gracefully, waiting up to timeout.
	Shutdown(ctx context.Context, timeout time.Duration) error
	// Kill terminates the server immediately.
	Kill() error
	Client() ManagementClient
	Deployments() DeploymentManager
	// AddListener registers l and returns a func that removes it again.
	AddListener(l ServerListener) (remove func())
}

// DomainHandle is a ServerHandle for a domain topology.
type DomainHandle interface {
	ServerHandle
	// HostAddress returns the address of the primary host controller,
	// e.g. [host=primary].
	HostAddress(ctx context.Context) ([]AddressElement, error)
}

// DeploymentRecord identifies one deployed artifact.
type DeploymentRecord struct {
	Name         string
	ServerGroups []string
}
