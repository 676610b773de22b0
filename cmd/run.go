package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"harness/internal/api"
	"harness/internal/deployment"
	"harness/internal/watch"
	"harness/pkg/harness"
	"harness/pkg/logging"
)

var (
	runDomain       bool
	runServerGroups []string
	runName         string
	runWatch        bool
	runQuiet        bool
	runMetricsAddr  string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run DIR",
		Short: "Start the server and deploy a directory until interrupted",
		Long: `Starts the application server, packages DIR as an archive and deploys it.
The archive is named after the directory unless --name is given; its
extension selects the archive kind and defaults to .war.

The command prints the address the deployment is reachable under and
blocks until interrupted. On exit the archive is undeployed and the server
is stopped.

With --watch, changes below DIR redeploy the archive. With --metrics-addr,
lifecycle metrics are served in the Prometheus format under /metrics.`,
		Args: cobra.ExactArgs(1),
		RunE: runRun,
	}
	cmd.Flags().BoolVar(&runDomain, "domain", false, "Start a managed domain instead of a standalone server")
	cmd.Flags().StringArrayVar(&runServerGroups, "server-group", nil, "Domain server group to deploy to (repeatable)")
	cmd.Flags().StringVar(&runName, "name", "", "Archive name (default: <DIR>.war)")
	cmd.Flags().BoolVar(&runWatch, "watch", false, "Redeploy when files below DIR change")
	cmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Do not show progress")
	cmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve lifecycle metrics on this address under /metrics, e.g. :9464")
	return cmd
}

// directoryGroup declares a group whose deployment is dir, re-read on every
// deploy.
func directoryGroup(dir, name string, topology api.Topology, serverGroups []string) *harness.Group {
	if name == "" {
		name = deployment.DirectoryArchiveName(dir)
	}
	produce := func() (*deployment.Archive, error) {
		return deployment.FromDirectory(dir, name)
	}
	return &harness.Group{
		Name:     name,
		Topology: topology,
		Methods:  []harness.Method{deployment.Producer("directory", produce, serverGroups...)},
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	dir := args[0]
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return api.NewConfigurationError("run", "%s is not a directory", dir)
	}

	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	suite, err := harness.NewSuite("cli", harness.WithSettings(settings))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runMetricsAddr != "" {
		srv, addr, err := serveMetrics(runMetricsAddr, suite.Coordinator().Metrics().Handler())
		if err != nil {
			closeSuite(suite)
			return err
		}
		defer srv.Close()
		logging.Info("CLI", "Serving metrics on http://%s/metrics", addr)
	}

	group := directoryGroup(dir, runName, topologyOf(runDomain), runServerGroups)

	var s *spinner.Spinner
	if !runQuiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = fmt.Sprintf(" Starting server and deploying %s...", group.Name)
		s.Writer = cmd.ErrOrStderr()
		s.Start()
	}
	gc, err := suite.BeginGroup(ctx, group, nil)
	if s != nil {
		if err != nil {
			s.FinalMSG = text.FgRed.Sprint("Failed to start "+group.Name) + "\n"
		}
		s.Stop()
	}
	if err != nil {
		closeSuite(suite)
		return err
	}

	addr, err := gc.Address(ctx, "")
	if err != nil {
		logging.WarnErr("CLI", err, "Could not resolve the address of %s", group.Name)
	} else {
		printf(cmd, "%s %s\n", text.FgGreen.Sprint(group.Name+" deployed at"), addr)
	}

	if runWatch {
		w := watch.NewDirWatcher(watch.Config{
			Dir:      dir,
			OnChange: func() { redeploy(ctx, cmd, suite, gc) },
		})
		if err := w.Start(); err != nil {
			logging.WarnErr("CLI", err, "Could not watch %s", dir)
		} else {
			defer w.Stop()
		}
	}

	printf(cmd, "Press Ctrl+C to stop\n")
	<-ctx.Done()

	endCtx, cancel := context.WithTimeout(context.Background(), settings.TimeoutDuration())
	defer cancel()
	if err := gc.End(endCtx); err != nil {
		logging.WarnErr("CLI", err, "Failed to end %s", group.Name)
	}
	return closeSuite(suite)
}

// redeploy replaces the deployment with a fresh package of the directory.
func redeploy(ctx context.Context, cmd *cobra.Command, suite *harness.Suite, gc *harness.GroupContext) {
	h, ok := suite.Handle()
	if !ok || ctx.Err() != nil {
		return
	}
	session := gc.Session()
	logging.Info("CLI", "Changes detected, redeploying %s", session.Group().Name)
	session.UndeployFor(ctx, h)
	if err := session.DeployFor(ctx, h); err != nil {
		logging.Error("CLI", err, "Redeploy of %s failed", session.Group().Name)
		return
	}
	printf(cmd, "%s\n", text.FgGreen.Sprint("Redeployed "+session.Group().Name))
}

func closeSuite(suite *harness.Suite) error {
	ctx, cancel := context.WithTimeout(context.Background(), suite.Settings().TimeoutDuration())
	defer cancel()
	return suite.Close(ctx)
}

// serveMetrics serves h under /metrics on addr and returns the bound
// address.
func serveMetrics(addr string, h http.Handler) (*http.Server, string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", api.NewConfigurationError("--metrics-addr", "cannot listen on %s: %v", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("CLI", err, "Metrics server stopped")
		}
	}()
	return srv, ln.Addr().String(), nil
}
