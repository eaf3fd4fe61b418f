package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"firefly/internal/config"
	"firefly/internal/storage"
)

// app carries state shared by the subcommands once the root command has loaded config
type app struct {
	cfg *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "firefly",
		Short: "Client and deploy journal for an F1R3FLY node",
		Long: `firefly talks to an F1R3FLY node: it signs and submits deploys, proposes blocks,
runs exploratory queries against an observer and waits for deploys to finalize.

"firefly serve" runs the event bus, journals the finalized deploys of tracked wallets
and exposes /health, /metrics and journal lookups over HTTP.

Configuration is read from FIREFLY_* environment variables and an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			a.cfg = config.Load()
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			setupLogger(a.cfg, cmd.ErrOrStderr())
			return nil
		},
	}

	root.AddCommand(
		a.newAddressCmd(),
		a.newURICmd(),
		a.newDeployCmd(),
		a.newProposeCmd(),
		a.newQueryCmd(),
		a.newWaitCmd(),
		a.newServeCmd(),
	)

	return root
}

// setupLogger sends logs to w, stderr by default. Stdout carries command results.
func setupLogger(cfg *config.Config, w io.Writer) {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
}

// openJournal connects to Postgres when DATABASE_URL is set and keeps the journal in
// memory otherwise
func (a *app) openJournal(ctx context.Context) (storage.Repository, error) {
	if a.cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, journal is kept in memory")
		return storage.NewMemoryRepository(), nil
	}

	repository, err := storage.NewPostgresRepository(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("Database connected successfully")
	return repository, nil
}
