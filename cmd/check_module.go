package cmd

import (
	"errors"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"harness/internal/gate"
	"harness/pkg/harness"
)

var (
	checkSlot       string
	checkMinVersion string
)

func newCheckModuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-module NAME",
		Short: "Check that a server module is installed in a minimum version",
		Long: `Looks up the module NAME in the modules directory of the configured server
installation (JBOSS_HOME) and compares its version with --min-version.
Exits with a non-zero code when the module is missing or too old.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			dir, err := harness.ModulesDir(settings)
			if err != nil {
				return err
			}
			res := gate.RequireModule(dir, args[0], checkSlot, checkMinVersion)
			if !res.Enabled {
				printf(cmd, "%s\n", text.FgRed.Sprint(res.Reason))
				return errors.New("module requirement not met")
			}
			printf(cmd, "%s\n", text.FgGreen.Sprintf("Module %s is available", args[0]))
			return nil
		},
	}
	cmd.Flags().StringVar(&checkSlot, "slot", gate.DefaultSlot, "Module slot")
	cmd.Flags().StringVar(&checkMinVersion, "min-version", "", "Minimum module version, e.g. 2.0.0.Final")
	return cmd
}
