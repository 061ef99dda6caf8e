package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"flowkit/internal/backends"
	"flowkit/internal/config"
	"flowkit/internal/flows"
	"flowkit/internal/logging"
	"flowkit/internal/orchestrator"
	"flowkit/internal/repository"
	"flowkit/internal/services"
	"flowkit/internal/validation"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "flowkit",
		Short:         "Run multi-step LLM workflows over MCP, HTTP or the command line",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Override log.level")

	rootCmd.AddCommand(
		serveCmd(),
		stdioCmd(),
		runCmd(),
		flowsCmd(),
		migrateCmd(),
	)
	return rootCmd
}

// app holds the components shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	store  repository.RunStore
	flows  *services.FlowService
	close  func()
}

func loadConfig(cmd *cobra.Command) (*config.Config, *logging.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration loading failed: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}

	// Logs always go to stderr; stdout carries results and the stdio transport.
	logger := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	logger.Debug("Configuration loaded",
		"config_file", cfg.ConfigFile,
		"environment", cfg.Environment,
		"flows_file", cfg.Flows.File,
		"flows_bucket", cfg.Flows.Bucket,
		"default_model", cfg.LLM.DefaultModel,
		"external_commands", cfg.Validation.AllowExternalCommands,
	)
	return cfg, logger, nil
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	orch := orchestrator.New(
		flows.NewSource(cfg.Flows),
		backends.NewSelector(cfg.LLM, logger),
		validation.NewFromConfig(cfg.Validation),
		logger,
	).WithDefaultModel(cfg.LLM.DefaultModel).WithContextDir(cfg.Flows.ContextDir)

	svc, err := services.NewFlowService(orch, store, services.WithLogger(logger))
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("failed to initialize flow service: %w", err)
	}

	return &app{cfg: cfg, logger: logger, store: store, flows: svc, close: closeStore}, nil
}

// openStore connects to PostgreSQL when db.url is set and falls back to an
// in-memory run history otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (repository.RunStore, func(), error) {
	if cfg.DB.URL == "" {
		logger.Debug("No database configured, keeping run history in memory")
		return repository.NewMemoryRunStore(), func() {}, nil
	}

	pool, err := repository.Connect(ctx, cfg.DB.URL, cfg.DB.MaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("database initialization failed: %w", err)
	}
	store := repository.NewPostgresRunStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to create run history schema: %w", err)
	}
	logger.Info("Database connected")
	return store, pool.Close, nil
}
