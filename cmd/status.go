package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"harness/internal/api"
	"harness/internal/management"
)

var statusDomain bool

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the server state and its deployments",
		Long: `Connects to the management endpoint of a running server and prints its
state followed by a table of deployments.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
	cmd.Flags().BoolVar(&statusDomain, "domain", false, "The server is a managed domain")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	topology := topologyOf(statusDomain)
	client := newManagementClient(settings)

	op := api.ReadAttribute("server-state")
	if topology == api.TopologyDomain {
		op = api.ReadAttribute("host-state", api.AddressElement{Key: "host", Value: settings.DomainHost})
	}
	r, err := client.Execute(ctx, op)
	if err != nil {
		return fmt.Errorf("server at %s is not reachable: %w", client.BaseURL(), err)
	}
	state, ok := r.StringValue()
	if !ok {
		state = "unknown (" + r.FailureMessage + ")"
	}

	list, err := management.NewDeploymentManager(client, topology).Deployments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list deployments: %w", err)
	}
	renderStatus(cmd.OutOrStdout(), client.BaseURL(), state, list)
	return nil
}

// renderStatus prints the server state and a table of deployments.
func renderStatus(w io.Writer, endpoint, state string, list []api.DeploymentDescription) {
	stateColor := text.FgYellow
	if state == "running" {
		stateColor = text.FgGreen
	}
	fmt.Fprintf(w, "%s %s (%s)\n", text.FgHiBlue.Sprint("Server:"), stateColor.Sprint(state), endpoint)

	if len(list) == 0 {
		fmt.Fprintf(w, "%s\n", text.FgYellow.Sprint("No deployments found"))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("NAME"),
		text.FgHiCyan.Sprint("RUNTIME NAME"),
		text.FgHiCyan.Sprint("ENABLED"),
		text.FgHiCyan.Sprint("STATUS"),
	})
	for _, d := range list {
		enabled := text.FgRed.Sprint(strconv.FormatBool(d.Enabled))
		if d.Enabled {
			enabled = text.FgGreen.Sprint(strconv.FormatBool(d.Enabled))
		}
		t.AppendRow(table.Row{d.Name, d.RuntimeName, enabled, d.Status})
	}
	t.Render()
	fmt.Fprintf(w, "%s %s %s\n", text.FgHiBlue.Sprint("Total:"), text.FgHiWhite.Sprint(len(list)), text.FgHiBlue.Sprint("deployments"))
}
