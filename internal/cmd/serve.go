package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/ticketops/internal/server"
	"github.com/3leaps/ticketops/internal/server/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Start the HTTP API: operation catalog and execution endpoints,
job management, and health probes. The server runs until interrupted and
shuts down gracefully, letting in-flight background jobs record their
terminal state.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Listen host (default from config)")
	serveCmd.Flags().Int("port", 0, "Listen port (default from config)")
}

// dbHealthChecker reports the job database reachable.
type dbHealthChecker struct {
	app *app
}

func (c dbHealthChecker) CheckHealth(ctx context.Context) error {
	return c.app.db.PingContext(ctx)
}

// queueHealthChecker reports the task queue accepting work.
type queueHealthChecker struct {
	app *app
}

func (c queueHealthChecker) CheckHealth(ctx context.Context) error {
	_ = ctx
	if c.app.queue == nil {
		return errors.New("task queue not running")
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seed, _ := cmd.Flags().GetString("seed")
	a, err := buildApp(ctx, cmd, seed)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to start", err)
	}
	defer a.close()

	host := a.cfg.Server.Host
	port := a.cfg.Server.Port
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		host = v
	}
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		port = v
	}

	handlers.InitHealthManager(versionInfo.Version)
	handlers.GetHealthManager().RegisterChecker("database", dbHealthChecker{app: a})
	handlers.GetHealthManager().RegisterChecker("queue", queueHealthChecker{app: a})

	srv := server.New(host, port, server.Deps{
		Store:      a.store,
		Queue:      a.queue,
		Registry:   a.registry,
		Dispatcher: a.dispatcher,
		Log:        a.log.Named("http"),
	})

	a.log.Info("server starting",
		zap.String("addr", srv.Addr()),
		zap.String("version", versionInfo.Version),
		zap.String("db", a.cfg.Store.Path))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(server.Timeouts{
			Read:  a.cfg.Server.ReadTimeout,
			Write: a.cfg.Server.WriteTimeout,
			Idle:  a.cfg.Server.IdleTimeout,
		})
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return exitError(foundry.ExitSignalInt, "Shutdown incomplete", err)
	}
	return nil
}
