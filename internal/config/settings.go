package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"harness/internal/api"
)

const (
	// DefaultTimeout bounds server start and shutdown.
	DefaultTimeout = 60 * time.Second

	defaultHTTPPort  = 8080
	defaultHTTPSPort = 8443
)

// Seconds is a duration that also accepts a bare number of seconds, so that
// both WILDFLY_TIMEOUT=60 and WILDFLY_TIMEOUT=1m30s work.
type Seconds time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Seconds) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = Seconds(time.Duration(n) * time.Second)
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*s = Seconds(d)
	return nil
}

// Duration converts to time.Duration.
func (s Seconds) Duration() time.Duration { return time.Duration(s) }

// Settings is the resolved configuration of a harness run. Keys are looked up
// as environment-style names; dotted run-time parameters such as
// wildfly.timeout map onto the same names (WILDFLY_TIMEOUT).
type Settings struct {
	// Server installation
	JBossHome    string `env:"JBOSS_HOME"`
	JBossHomeDir string `env:"JBOSS_HOME_DIR"`
	JavaHome     string `env:"WILDFLY_JAVA_HOME"`
	ModulePath   string `env:"WILDFLY_MODULE_PATH"`
	JavaOpts     string `env:"WILDFLY_JAVA_OPTS"`
	ServerArgs   string `env:"WILDFLY_SERVER_ARGS"`
	ServerConfig string `env:"WILDFLY_SERVER_CONFIG"`
	DomainConfig string `env:"WILDFLY_DOMAIN_CONFIG"`
	HostConfig   string `env:"WILDFLY_HOST_CONFIG"`

	Timeout Seconds `env:"WILDFLY_TIMEOUT" envDefault:"60" validate:"gt=0"`

	// Application endpoint
	Protocol string `env:"WILDFLY_HTTP_PROTOCOL" envDefault:"http" validate:"oneof=http https"`
	Host     string `env:"WILDFLY_HTTP_HOST" envDefault:"localhost" validate:"required,hostname_rfc1123|ip"`
	Port     int    `env:"WILDFLY_HTTP_PORT" validate:"omitempty,min=1,max=65535"`

	// Management endpoint
	ManagementProtocol string `env:"WILDFLY_MANAGEMENT_PROTOCOL" envDefault:"http" validate:"oneof=http https"`
	ManagementHost     string `env:"WILDFLY_MANAGEMENT_HOST" envDefault:"localhost" validate:"required,hostname_rfc1123|ip"`
	ManagementPort     int    `env:"WILDFLY_MANAGEMENT_PORT" envDefault:"9990" validate:"min=1,max=65535"`
	ManagementUser     string `env:"WILDFLY_MANAGEMENT_USER"`
	ManagementPassword string `env:"WILDFLY_MANAGEMENT_PASSWORD"`

	// DomainHost is the name of the primary host controller in domain mode.
	DomainHost string `env:"WILDFLY_DOMAIN_HOST" envDefault:"primary" validate:"required"`

	LogLevel string `env:"HARNESS_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn warning error"`
}

// TimeoutDuration returns the start/shutdown timeout.
func (s *Settings) TimeoutDuration() time.Duration {
	return s.Timeout.Duration()
}

// HTTPPort returns the configured application port, defaulting to 8080, or
// 8443 when the protocol is https.
func (s *Settings) HTTPPort() int {
	if s.Port > 0 {
		return s.Port
	}
	if s.Protocol == "https" {
		return defaultHTTPSPort
	}
	return defaultHTTPPort
}

// BaseAddress is the statically configured application address used when no
// deployment-specific path can be resolved.
func (s *Settings) BaseAddress() api.Address {
	return api.Address{
		Scheme: s.Protocol,
		Host:   s.Host,
		Port:   s.HTTPPort(),
	}
}

// ManagementAddress is the address of the HTTP management interface.
func (s *Settings) ManagementAddress() api.Address {
	return api.Address{
		Scheme: s.ManagementProtocol,
		Host:   s.ManagementHost,
		Port:   s.ManagementPort,
	}
}

// ResolveJBossHome returns the server installation directory. JBOSS_HOME
// (from a run-time parameter or the environment) wins over JBOSS_HOME_DIR.
func (s *Settings) ResolveJBossHome() (string, error) {
	if s.JBossHome != "" {
		return s.JBossHome, nil
	}
	if s.JBossHomeDir != "" {
		return s.JBossHomeDir, nil
	}
	return "", api.NewConfigurationError("settings",
		"the server home could not be resolved; set jboss.home, JBOSS_HOME or jboss.home.dir")
}
