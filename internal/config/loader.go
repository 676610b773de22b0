package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"harness/internal/api"
	"harness/pkg/logging"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultEnvFile is read when present; a missing file is not an error.
	DefaultEnvFile = ".env"
	// DefaultParamsFile holds run-time parameters as YAML.
	DefaultParamsFile = "harness.yaml"
)

// Source is a pluggable override layer. It takes priority over every other
// layer. Keys are environment-style names (WILDFLY_TIMEOUT).
type Source interface {
	Lookup(key string) (string, bool)
}

// MapSource is a Source backed by a map. Keys may be given in either dotted
// (wildfly.timeout) or environment form.
type MapSource map[string]string

// Lookup implements Source.
func (m MapSource) Lookup(key string) (string, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if NormalizeKey(k) == key {
			return v, true
		}
	}
	return "", false
}

// Options controls where Load looks for settings. Layers, lowest priority
// first: defaults, EnvFile, Environ, ParamsFile, Params, Override.
type Options struct {
	// EnvFile is a dotenv file. Empty means DefaultEnvFile.
	EnvFile string
	// ParamsFile is a YAML file of run-time parameters. Empty means
	// DefaultParamsFile.
	ParamsFile string
	// Params are run-time parameters, typically from the command line.
	Params map[string]string
	// Override is consulted last and wins over everything else.
	Override Source
	// Environ replaces os.Environ() when non-nil.
	Environ []string
}

// NormalizeKey maps a dotted parameter name onto its environment form:
// wildfly.http.port becomes WILDFLY_HTTP_PORT.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(strings.TrimSpace(key)))
}

// Load resolves Settings from all layers and validates them.
func Load(opts Options) (*Settings, error) {
	merged := map[string]string{}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	dotenv, err := godotenv.Read(envFile)
	switch {
	case err == nil:
		logging.Debug("ConfigLoader", "Loaded %d entries from %s", len(dotenv), envFile)
		mergeInto(merged, dotenv)
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("ConfigLoader", "No env file found at %s", envFile)
	default:
		return nil, fmt.Errorf("error loading env file %s: %w", envFile, err)
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}

	paramsFile := opts.ParamsFile
	if paramsFile == "" {
		paramsFile = DefaultParamsFile
	}
	params, err := LoadParamsFile(paramsFile)
	if err != nil {
		return nil, err
	}
	mergeInto(merged, params)
	mergeInto(merged, opts.Params)

	if opts.Override != nil {
		for _, key := range Keys() {
			if v, ok := opts.Override.Lookup(key); ok {
				merged[key] = v
			}
		}
	}

	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{Environment: merged}); err != nil {
		return nil, api.NewConfigurationError("settings", "%v", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadParamsFile reads run-time parameters from a YAML file. Nested maps are
// flattened with dots, so
//
//	wildfly:
//	  timeout: 30
//
// yields wildfly.timeout=30. A missing file yields no parameters.
func LoadParamsFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("ConfigLoader", "No parameter file found at %s, using environment only", path)
			return nil, nil
		}
		return nil, fmt.Errorf("error reading parameter file %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error loading parameters from %s: %w", path, err)
	}

	out := map[string]string{}
	flatten("", raw, out)
	logging.Info("ConfigLoader", "Loaded %d run-time parameters from %s", len(out), path)
	return out, nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch typed := v.(type) {
		case map[string]any:
			flatten(key, typed, out)
		case []any:
			parts := make([]string, 0, len(typed))
			for _, p := range typed {
				parts = append(parts, fmt.Sprint(p))
			}
			out[key] = strings.Join(parts, " ")
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(typed)
		}
	}
}

func mergeInto(dst map[string]string, src map[string]string) {
	for k, v := range src {
		dst[NormalizeKey(k)] = v
	}
}

// Keys lists every environment key Settings understands, sorted.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Settings{})
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("env")
		if tag == "" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}
