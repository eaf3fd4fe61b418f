package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"firefly/internal/api"
	"firefly/internal/events"
	"firefly/internal/journal"
)

func (a *app) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the event bus, the wallet journal and the ops HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			slog.Info("Configuration loaded",
				"events_url", a.cfg.EventsURL(),
				"observer", a.cfg.ObserverURL,
				"tracked_wallets", len(a.cfg.TrackedWallets),
				"log_level", a.cfg.LogLevel,
			)

			repository, err := a.openJournal(ctx)
			if err != nil {
				return err
			}
			defer repository.Close()

			wallets, err := a.cfg.Wallets()
			if err != nil {
				return err
			}

			bus := events.New(a.cfg.EventsURL(), events.WithRetryConfig(a.cfg.Retry))
			bus.Start(ctx)

			tracked := make(chan struct{})
			go func() {
				defer close(tracked)
				journal.NewRecorder(repository).Track(ctx, bus, wallets)
			}()

			server := api.NewServer(a.cfg.APIPort, repository)
			if err := server.Start(); err != nil {
				return err
			}

			<-ctx.Done()
			slog.Warn("Interrupt received, shutting down...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				slog.Error("Error stopping API server", "error", err)
			}

			<-tracked
			slog.Info("firefly stopped")
			return nil
		},
	}
}
