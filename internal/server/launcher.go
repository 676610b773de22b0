package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"harness/internal/api"
	"harness/internal/config"
	"harness/internal/management"
)

// Launcher creates process handles from settings.
type Launcher struct {
	settings   *config.Settings
	httpClient *http.Client
	goos       string
}

// LauncherOption configures a Launcher.
type LauncherOption func(*Launcher)

// WithManagementHTTPClient sets the HTTP client used for management calls.
func WithManagementHTTPClient(hc *http.Client) LauncherOption {
	return func(l *Launcher) {
		l.httpClient = hc
	}
}

// NewLauncher creates a launcher for the given settings.
func NewLauncher(settings *config.Settings, opts ...LauncherOption) *Launcher {
	l := &Launcher{settings: settings, goos: runtime.GOOS}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewHandle creates a stopped handle for topology. It fails with a
// configuration error when the server installation cannot be found.
func (l *Launcher) NewHandle(topology api.Topology) (api.ServerHandle, error) {
	home, err := l.settings.ResolveJBossHome()
	if err != nil {
		return nil, err
	}
	script := l.scriptPath(home, topology)
	if _, err := os.Stat(script); err != nil {
		return nil, api.NewConfigurationError("settings", "server start script %s not found: %v", script, err)
	}

	var clientOpts []management.ClientOption
	if l.httpClient != nil {
		clientOpts = append(clientOpts, management.WithHTTPClient(l.httpClient))
	}
	if l.settings.ManagementUser != "" {
		clientOpts = append(clientOpts, management.WithCredentials(l.settings.ManagementUser, l.settings.ManagementPassword))
	}
	client := management.NewClient(l.settings.ManagementAddress(), clientOpts...)

	h := &Handle{
		id:          uuid.New().String(),
		topology:    topology,
		launcher:    l,
		client:      client,
		deployments: management.NewDeploymentManager(client, topology),
		listeners:   newListenerSet(),
	}
	if topology == api.TopologyDomain {
		d := &DomainHandle{Handle: h}
		h.self = d
		return d, nil
	}
	h.self = h
	return h, nil
}

func (l *Launcher) scriptPath(home string, topology api.Topology) string {
	name := "standalone"
	if topology == api.TopologyDomain {
		name = "domain"
	}
	ext := ".sh"
	if l.goos == "windows" {
		ext = ".bat"
	}
	return filepath.Join(home, "bin", name+ext)
}

// commandLine is everything needed to exec the start script.
type commandLine struct {
	Path string
	Args []string
	Env  []string
}

// command builds the start command for topology.
func (l *Launcher) command(topology api.Topology) (commandLine, error) {
	s := l.settings
	home, err := s.ResolveJBossHome()
	if err != nil {
		return commandLine{}, err
	}

	args := []string{"-Djboss.home.dir=" + home}
	if s.Protocol == "https" {
		args = append(args, fmt.Sprintf("-Djboss.https.port=%d", s.HTTPPort()))
	} else {
		args = append(args, fmt.Sprintf("-Djboss.http.port=%d", s.HTTPPort()))
	}
	args = append(args,
		fmt.Sprintf("-Djboss.management.http.port=%d", s.ManagementPort),
		"-Djboss.bind.address="+s.Host,
		"-Djboss.bind.address.management="+s.ManagementHost,
	)

	switch topology {
	case api.TopologyDomain:
		if s.DomainConfig != "" {
			args = append(args, "--domain-config="+s.DomainConfig)
		}
		if s.HostConfig != "" {
			args = append(args, "--host-config="+s.HostConfig)
		}
	default:
		if s.ServerConfig != "" {
			args = append(args, "--server-config="+s.ServerConfig)
		}
	}

	extra, err := s.ServerArguments()
	if err != nil {
		return commandLine{}, api.NewConfigurationError("settings", "%v", err)
	}
	args = append(args, extra...)

	javaOpts, err := s.JavaOptions()
	if err != nil {
		return commandLine{}, api.NewConfigurationError("settings", "%v", err)
	}

	env := []string{"LAUNCH_JBOSS_IN_BACKGROUND=1"}
	if len(javaOpts) > 0 {
		env = append(env, "JAVA_OPTS="+joinArguments(javaOpts))
	}
	if s.JavaHome != "" {
		env = append(env, "JAVA_HOME="+s.JavaHome)
	}
	if s.ModulePath != "" {
		env = append(env, "JBOSS_MODULEPATH="+s.ModulePath)
	}

	return commandLine{
		Path: l.scriptPath(home, topology),
		Args: args,
		Env:  env,
	}, nil
}

// joinArguments is the inverse of config.SplitArguments.
func joinArguments(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t") {
			a = `"` + a + `"`
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}
