package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"harness/internal/api"
	"harness/internal/config"
	"harness/internal/management"
	"harness/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfiguration indicates invalid settings or declarations.
	ExitCodeConfiguration = 2
	// ExitCodeStartupTimeout indicates the server did not become ready in time.
	ExitCodeStartupTimeout = 3
	// ExitCodeDeploymentFailure indicates the server rejected a deployment.
	ExitCodeDeploymentFailure = 4
)

var (
	rootDebug      bool
	rootParams     []string
	rootParamsFile string
	rootEnvFile    string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "harness",
	Short: "Run and inspect a shared application server for integration tests",
	Long: `harness starts a WildFly style application server, deploys artifacts to it
and reports on what is running. It uses the same settings as the test
harness library:

  - harness.yaml run-time parameters (or --param key=value)
  - the process environment
  - a .env file in the working directory`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelInfo
		if rootDebug {
			level = logging.LevelDebug
		}
		logging.InitForCLI(level, cmd.ErrOrStderr())
	},
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with a code describing the
// failure, if any.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "harness version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps the harness error taxonomy onto exit codes.
func getExitCode(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case api.IsConfigurationError(err):
		return ExitCodeConfiguration
	case api.IsStartupTimeout(err):
		return ExitCodeStartupTimeout
	case api.IsDeploymentFailure(err):
		return ExitCodeDeploymentFailure
	default:
		return ExitCodeError
	}
}

// parseParams turns key=value flags into run-time parameters.
func parseParams(params []string) (map[string]string, error) {
	out := make(map[string]string, len(params))
	for _, p := range params {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, api.NewConfigurationError("--param", "expected key=value, got %q", p)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

// loadSettings resolves settings from the persistent flags and applies the
// configured log level unless --debug was given.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	params, err := parseParams(rootParams)
	if err != nil {
		return nil, err
	}
	settings, err := config.Load(config.Options{
		EnvFile:    rootEnvFile,
		ParamsFile: rootParamsFile,
		Params:     params,
	})
	if err != nil {
		return nil, err
	}
	if !rootDebug {
		logging.InitForCLI(logging.ParseLevel(settings.LogLevel), cmd.ErrOrStderr())
	}
	return settings, nil
}

// newManagementClient connects to the management endpoint of the settings.
func newManagementClient(settings *config.Settings) *management.Client {
	var opts []management.ClientOption
	if settings.ManagementUser != "" {
		opts = append(opts, management.WithCredentials(settings.ManagementUser, settings.ManagementPassword))
	}
	return management.NewClient(settings.ManagementAddress(), opts...)
}

func topologyOf(domain bool) api.Topology {
	if domain {
		return api.TopologyDomain
	}
	return api.TopologyStandalone
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringArrayVar(&rootParams, "param", nil, "Run-time parameter as key=value (repeatable), e.g. wildfly.timeout=120")
	rootCmd.PersistentFlags().StringVar(&rootParamsFile, "params-file", "", "YAML file with run-time parameters (default harness.yaml)")
	rootCmd.PersistentFlags().StringVar(&rootEnvFile, "env-file", "", "dotenv file to load (default .env)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newCheckModuleCmd())
}
