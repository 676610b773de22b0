package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"harness/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolated returns options that never touch the working directory or the
// real environment.
func isolated(t *testing.T) Options {
	dir := t.TempDir()
	return Options{
		EnvFile:    filepath.Join(dir, ".env"),
		ParamsFile: filepath.Join(dir, "harness.yaml"),
		Environ:    []string{},
	}
}

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(isolated(t))
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, s.TimeoutDuration())
	assert.Equal(t, "http", s.Protocol)
	assert.Equal(t, "localhost", s.Host)
	assert.Equal(t, 8080, s.HTTPPort())
	assert.Equal(t, "http://localhost:8080", s.BaseAddress().String())
	assert.Equal(t, "http://localhost:9990", s.ManagementAddress().String())
	assert.Equal(t, "primary", s.DomainHost)
}

func TestLoad_HTTPSDefaultPort(t *testing.T) {
	opts := isolated(t)
	opts.Environ = []string{"WILDFLY_HTTP_PROTOCOL=https"}

	s, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, 8443, s.HTTPPort())
	assert.Equal(t, "https://localhost:8443", s.BaseAddress().String())
}

func TestLoad_LayerPriority(t *testing.T) {
	opts := isolated(t)
	require.NoError(t, os.WriteFile(opts.EnvFile, []byte("WILDFLY_HTTP_HOST=from-dotenv\nWILDFLY_HTTP_PORT=1111\nJBOSS_HOME=/dotenv\n"), 0o600))
	require.NoError(t, os.WriteFile(opts.ParamsFile, []byte("wildfly:\n  http:\n    port: 3333\n  timeout: 15\n"), 0o600))
	opts.Environ = []string{"WILDFLY_HTTP_PORT=2222", "WILDFLY_HTTP_HOST=from-env"}
	opts.Params = map[string]string{"wildfly.http.host": "from-params"}
	opts.Override = MapSource{"wildfly.timeout": "5"}

	s, err := Load(opts)
	require.NoError(t, err)

	assert.Equal(t, "/dotenv", s.JBossHome, "dotenv layer applies when nothing overrides it")
	assert.Equal(t, 3333, s.Port, "parameter file wins over the environment")
	assert.Equal(t, "from-params", s.Host, "explicit params win over the parameter file")
	assert.Equal(t, 5*time.Second, s.TimeoutDuration(), "override wins over everything")
}

func TestLoad_TimeoutFormats(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"60", 60 * time.Second},
		{"1", time.Second},
		{"90s", 90 * time.Second},
		{"250ms", 250 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			opts := isolated(t)
			opts.Environ = []string{"WILDFLY_TIMEOUT=" + tt.value}
			s, err := Load(opts)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, s.TimeoutDuration())
		})
	}
}

func TestLoad_InvalidSettings(t *testing.T) {
	tests := []struct {
		name    string
		environ []string
		message string
	}{
		{"bad protocol", []string{"WILDFLY_HTTP_PROTOCOL=ftp"}, "Protocol must be one of"},
		{"port out of range", []string{"WILDFLY_HTTP_PORT=70000"}, "Port must be at most 65535"},
		{"zero timeout", []string{"WILDFLY_TIMEOUT=0"}, "Timeout must be greater than 0"},
		{"unparseable timeout", []string{"WILDFLY_TIMEOUT=soon"}, "invalid duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := isolated(t)
			opts.Environ = tt.environ
			_, err := Load(opts)
			require.Error(t, err)
			assert.True(t, api.IsConfigurationError(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestResolveJBossHome(t *testing.T) {
	s := &Settings{}
	_, err := s.ResolveJBossHome()
	assert.True(t, api.IsConfigurationError(err))

	s.JBossHomeDir = "/opt/fallback"
	home, err := s.ResolveJBossHome()
	require.NoError(t, err)
	assert.Equal(t, "/opt/fallback", home)

	s.JBossHome = "/opt/wildfly"
	home, err = s.ResolveJBossHome()
	require.NoError(t, err)
	assert.Equal(t, "/opt/wildfly", home)
}

func TestSplitArguments(t *testing.T) {
	tests := []struct {
		in       string
		expected []string
	}{
		{"", nil},
		{"-Xmx512m -Dfoo=bar", []string{"-Xmx512m", "-Dfoo=bar"}},
		{`-Da=b "-Dmsg=hello world"`, []string{"-Da=b", "-Dmsg=hello world"}},
		{`"quoted arg"   plain`, []string{"quoted arg", "plain"}},
		{`""`, []string{""}},
		{`"unterminated`, []string{`"unterminated`}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, SplitArguments(tt.in), "input %q", tt.in)
	}
}

func TestJavaOptions_Template(t *testing.T) {
	s := &Settings{
		JBossHome: "/opt/wildfly",
		JavaOpts:  `-Dhome={{ .JBossHome }} -Xmx{{ default "512m" "" }} -Dname={{ upper "app" }}`,
	}
	opts, err := s.JavaOptions()
	require.NoError(t, err)
	assert.Equal(t, []string{"-Dhome=/opt/wildfly", "-Xmx512m", "-Dname=APP"}, opts)

	s.JavaOpts = "{{ .Missing"
	_, err = s.JavaOptions()
	assert.Error(t, err)
}

func TestNormalizeKeyAndKeys(t *testing.T) {
	assert.Equal(t, "WILDFLY_HTTP_PORT", NormalizeKey("wildfly.http.port"))
	assert.Equal(t, "JBOSS_HOME_DIR", NormalizeKey("jboss.home.dir"))
	assert.Equal(t, "WILDFLY_JAVA_HOME", NormalizeKey("wildfly-java-home"))

	keys := Keys()
	assert.Contains(t, keys, "WILDFLY_TIMEOUT")
	assert.Contains(t, keys, "JBOSS_HOME")
	assert.IsIncreasing(t, keys)
}
