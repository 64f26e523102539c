package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/ticketops/internal/config"
	"github.com/3leaps/ticketops/internal/dispatch"
	"github.com/3leaps/ticketops/internal/observability"
	"github.com/3leaps/ticketops/internal/tools"
	"github.com/3leaps/ticketops/pkg/batch"
	"github.com/3leaps/ticketops/pkg/jobstore"
	"github.com/3leaps/ticketops/pkg/ops"
	"github.com/3leaps/ticketops/pkg/queue"
	"github.com/3leaps/ticketops/pkg/ticketapi"
)

// app bundles the engine collaborators one command run needs.
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	db         *sql.DB
	store      *jobstore.Store
	queue      *queue.InProc
	client     ticketapi.Client
	registry   *ops.Registry
	dispatcher *dispatch.Dispatcher
}

// buildApp loads configuration and assembles the engine. Flag values
// override config; seedOverride wins over both when non-empty.
func buildApp(ctx context.Context, cmd *cobra.Command, seedOverride string) (*app, error) {
	overrides := flagOverrides(cmd)
	cfg, err := config.Load(ctx, overrides)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	profile := cfg.Logging.Profile
	if cmd != nil && cmd.Name() != "serve" {
		profile = "CLI"
	}
	log, err := observability.NewLogger(cfg.Logging.Level, profile)
	if err != nil {
		return nil, err
	}

	db, err := jobstore.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open job database: %w", err)
	}
	if err := jobstore.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate job database: %w", err)
	}
	store := jobstore.NewStore(db)

	seed := cfg.Store.Seed
	if seedOverride != "" {
		seed = seedOverride
	}
	var client ticketapi.Client
	if seed != "" {
		mem, err := ticketapi.LoadSeed(seed)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("load ticket seed: %w", err)
		}
		client = mem
	} else {
		client = ticketapi.NewMemory()
	}

	q := queue.NewInProc(cfg.Engine.Workers, cfg.Engine.QueueBuffer, log.Named("queue"))

	reg := ops.NewRegistry()
	err = tools.RegisterAll(reg, tools.Deps{
		Client: client,
		Jobs:   store,
		Queue:  q,
		Exec:   batch.New(cfg.Engine.Delay, cfg.Engine.Cooldown),
		Log:    log.Named("tools"),
	})
	if err != nil {
		q.Close()
		_ = db.Close()
		return nil, fmt.Errorf("register operations: %w", err)
	}

	return &app{
		cfg:        cfg,
		log:        log,
		db:         db,
		store:      store,
		queue:      q,
		client:     client,
		registry:   reg,
		dispatcher: dispatch.New(reg, log.Named("dispatch")),
	}, nil
}

// close releases the queue and database. Queue first: workers may still
// write job rows while draining.
func (a *app) close() {
	a.queue.Close()
	_ = a.db.Close()
	_ = a.log.Sync()
}

// flagOverrides translates set command flags into config overrides.
func flagOverrides(cmd *cobra.Command) map[string]any {
	o := map[string]any{}
	if cmd == nil {
		return o
	}
	if v, err := cmd.Flags().GetString("log-level"); err == nil && v != "" {
		o["logging"] = map[string]any{"level": v}
	}
	if v, err := cmd.Flags().GetString("db"); err == nil && v != "" {
		o["store"] = map[string]any{"path": v}
	}
	return o
}
