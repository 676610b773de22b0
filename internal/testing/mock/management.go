package mock

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"harness/internal/api"
)

// RecordedOperation is an operation received by ManagementServer.
type RecordedOperation struct {
	Name    string
	Address string
	Params  map[string]any
}

type deploymentState struct {
	content      []byte
	enabled      bool
	serverGroups map[string]bool
}

// ManagementServer is an in-process fake of the HTTP management interface.
// It keeps a small resource model (deployments, attributes, children) and
// answers the operations the harness issues.
type ManagementServer struct {
	*httptest.Server

	mu          sync.Mutex
	state       string
	deployments map[string]*deploymentState
	attributes  map[string]json.RawMessage
	children    map[string][]string
	failures    map[string]string
	operations  []RecordedOperation
	uploads     int
	onShutdown  func()
}

// NewManagementServer starts a fake management server. Close it when done.
func NewManagementServer() *ManagementServer {
	m := &ManagementServer{
		state:       "running",
		deployments: make(map[string]*deploymentState),
		attributes:  make(map[string]json.RawMessage),
		children:    make(map[string][]string),
		failures:    make(map[string]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/management", m.handleOperation)
	mux.HandleFunc("/management-upload", m.handleUpload)
	m.Server = httptest.NewServer(mux)
	return m
}

// Address returns the management address of the fake.
func (m *ManagementServer) Address() api.Address {
	a, err := api.ParseAddress(m.URL)
	if err != nil {
		panic(err)
	}
	return a
}

func attributeKey(address []api.AddressElement, name string) string {
	return api.FormatAddress(address) + "#" + name
}

// SetAttribute makes read-attribute of name at address return value.
func (m *ManagementServer) SetAttribute(address []api.AddressElement, name string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attributes[attributeKey(address, name)] = data
}

// SetChildren makes read-children-names of childType at address return names.
func (m *ManagementServer) SetChildren(address []api.AddressElement, childType string, names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children[attributeKey(address, childType)] = names
}

// FailOperation makes every operation called name fail with message. An
// empty message clears the failure.
func (m *ManagementServer) FailOperation(name, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if message == "" {
		delete(m.failures, name)
		return
	}
	m.failures[name] = message
}

// SetState sets the server-state/host-state reported to readiness checks.
func (m *ManagementServer) SetState(state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

// OnShutdown registers a hook run when a shutdown operation arrives.
func (m *ManagementServer) OnShutdown(f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onShutdown = f
}

// Operations returns every operation received so far, composites expanded.
func (m *ManagementServer) Operations() []RecordedOperation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedOperation, len(m.operations))
	copy(out, m.operations)
	return out
}

// OperationNames returns "name address" strings for every received
// operation, which reads well in assertions.
func (m *ManagementServer) OperationNames() []string {
	var out []string
	for _, op := range m.Operations() {
		out = append(out, op.Name+" "+op.Address)
	}
	return out
}

// Uploads returns how many deployment uploads were received.
func (m *ManagementServer) Uploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads
}

// Deployments returns the names of the deployments currently present.
func (m *ManagementServer) Deployments() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.deployments))
	for n := range m.deployments {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DeploymentContent returns the uploaded bytes of a deployment.
func (m *ManagementServer) DeploymentContent(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deployments[name]
	if !ok {
		return nil, false
	}
	return d.content, true
}

// ServerGroupsOf returns the server groups a deployment is mapped to.
func (m *ManagementServer) ServerGroupsOf(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deployments[name]
	if !ok {
		return nil
	}
	var groups []string
	for g := range d.serverGroups {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

func (m *ManagementServer) handleOperation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeFailure(w, fmt.Sprintf("invalid operation: %v", err))
		return
	}
	m.respond(w, raw, nil)
}

func (m *ManagementServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeFailure(w, fmt.Sprintf("invalid upload: %v", err))
		return
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(r.FormValue("operation")), &raw); err != nil {
		writeFailure(w, fmt.Sprintf("invalid operation: %v", err))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeFailure(w, fmt.Sprintf("missing content: %v", err))
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		writeFailure(w, err.Error())
		return
	}

	m.mu.Lock()
	m.uploads++
	m.mu.Unlock()
	m.respond(w, raw, content)
}

func (m *ManagementServer) respond(w http.ResponseWriter, raw map[string]any, content []byte) {
	m.mu.Lock()
	result, failure := m.apply(raw, content)
	hook := m.onShutdown
	shutdown := raw["operation"] == "shutdown"
	m.mu.Unlock()

	if failure != "" {
		writeFailure(w, failure)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"outcome": "success", "result": result})

	if shutdown && hook != nil {
		go hook()
	}
}

func writeFailure(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]any{"outcome": "failed", "failure-description": msg})
}

func parseAddress(v any) []api.AddressElement {
	list, _ := v.([]any)
	var out []api.AddressElement
	for _, item := range list {
		entry, _ := item.(map[string]any)
		for k, val := range entry {
			out = append(out, api.AddressElement{Key: k, Value: fmt.Sprint(val)})
		}
	}
	return out
}

func value(address []api.AddressElement, key string) string {
	for _, e := range address {
		if e.Key == key {
			return e.Value
		}
	}
	return ""
}

// apply executes one operation against the model. m.mu must be held.
func (m *ManagementServer) apply(raw map[string]any, content []byte) (any, string) {
	name, _ := raw["operation"].(string)
	address := parseAddress(raw["address"])
	params := map[string]any{}
	for k, v := range raw {
		if k != "operation" && k != "address" {
			params[k] = v
		}
	}
	m.operations = append(m.operations, RecordedOperation{Name: name, Address: api.FormatAddress(address), Params: params})

	if msg, ok := m.failures[name]; ok {
		return nil, msg
	}

	notFound := func() (any, string) {
		return nil, fmt.Sprintf("WFLYCTL0216: Management resource '%s' not found", api.FormatAddress(address))
	}

	switch name {
	case "composite":
		steps, _ := params["steps"].([]any)
		results := map[string]any{}
		for i, s := range steps {
			step, _ := s.(map[string]any)
			r, failure := m.apply(step, content)
			if failure != "" {
				return nil, fmt.Sprintf("step-%d: %s", i+1, failure)
			}
			results[fmt.Sprintf("step-%d", i+1)] = map[string]any{"outcome": "success", "result": r}
		}
		return results, ""

	case "read-attribute":
		attr, _ := params["name"].(string)
		if len(address) == 0 && attr == "server-state" || value(address, "host") != "" && attr == "host-state" && len(address) == 1 {
			return m.state, ""
		}
		if len(address) == 0 && attr == "name" {
			return "fake", ""
		}
		if v, ok := m.attributes[attributeKey(address, attr)]; ok {
			return json.RawMessage(v), ""
		}
		if dep := value(address, "deployment"); dep != "" {
			if _, ok := m.deployments[dep]; !ok {
				return notFound()
			}
		}
		return nil, fmt.Sprintf("WFLYCTL0201: Unknown attribute '%s'", attr)

	case "read-children-names":
		childType, _ := params["child-type"].(string)
		if names, ok := m.children[attributeKey(address, childType)]; ok {
			return names, ""
		}
		if childType == "host" {
			return []string{"primary"}, ""
		}
		return []string{}, ""

	case "read-children-resources":
		if params["child-type"] != "deployment" {
			return map[string]any{}, ""
		}
		out := map[string]any{}
		for n, d := range m.deployments {
			status := "STOPPED"
			if d.enabled {
				status = "OK"
			}
			out[n] = map[string]any{"name": n, "runtime-name": n, "enabled": d.enabled, "status": status}
		}
		return out, ""

	case "add":
		dep := value(address, "deployment")
		if dep == "" {
			return nil, "unsupported add"
		}
		if group := value(address, "server-group"); group != "" {
			d, ok := m.deployments[dep]
			if !ok {
				return nil, fmt.Sprintf("WFLYCTL0175: Resource [(\"deployment\" => \"%s\")] does not exist", dep)
			}
			d.serverGroups[group] = true
			d.enabled = true
			return nil, ""
		}
		if _, exists := m.deployments[dep]; exists {
			return nil, fmt.Sprintf("WFLYCTL0212: Duplicate resource [(\"deployment\" => \"%s\")]", dep)
		}
		enabled, _ := params["enabled"].(bool)
		m.deployments[dep] = &deploymentState{content: content, enabled: enabled, serverGroups: map[string]bool{}}
		return nil, ""

	case "undeploy":
		d, ok := m.deployments[value(address, "deployment")]
		if !ok {
			return notFound()
		}
		d.enabled = false
		return nil, ""

	case "remove":
		dep := value(address, "deployment")
		d, ok := m.deployments[dep]
		if !ok {
			return notFound()
		}
		if group := value(address, "server-group"); group != "" {
			if !d.serverGroups[group] {
				return notFound()
			}
			delete(d.serverGroups, group)
			return nil, ""
		}
		delete(m.deployments, dep)
		return nil, ""

	case "shutdown":
		m.state = "stopped"
		return nil, ""
	}

	if strings.HasPrefix(name, "read-") {
		return nil, ""
	}
	return nil, fmt.Sprintf("WFLYCTL0031: No operation named '%s' exists", name)
}
