package cmd

import (
	"github.com/spf13/cobra"

	"harness/internal/management"
	"harness/internal/mcpserver"
)

var mcpDomain bool

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve server management tools to AI assistants over stdio",
		Long: `Starts a Model Context Protocol server on stdin/stdout. Its tools act on the
management endpoint of a running server:

  server_status     report the server state
  list_deployments  list deployments
  deploy_directory  package a directory and deploy it
  undeploy          undeploy and remove a deployment
  resolve_address   resolve the HTTP address of a deployment`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			topology := topologyOf(mcpDomain)
			client := newManagementClient(settings)
			s := mcpserver.New(client, management.NewDeploymentManager(client, topology), settings, topology, GetVersion())
			return s.ServeStdio()
		},
	}
	cmd.Flags().BoolVar(&mcpDomain, "domain", false, "The server is a managed domain")
	return cmd
}
