package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"firefly/internal/events"
	"firefly/internal/identity"
	"firefly/internal/journal"
	"firefly/internal/models"
	"firefly/internal/node"
)

func (a *app) connect(ctx context.Context) (*node.WriteClient, error) {
	return node.ConnectWithRetry(ctx, a.cfg.DeployServiceURL, a.cfg.ProposeServiceURL,
		node.WithRetryConfig(a.cfg.Retry))
}

func (a *app) newDeployCmd() *cobra.Command {
	var (
		source     sourceFlags
		phloLimit  uint64
		validAfter int64
		propose    bool
		wait       bool
	)

	cmd := &cobra.Command{
		Use:   "deploy [file | -]",
		Short: "Sign and submit a deploy",
		Long: `Sign a deploy with FIREFLY_SERVICE_KEY and submit it to the validator.

The deploy id is printed on success. With --propose a block is proposed afterwards and its
hash printed as well. With --wait the command returns once the deploy is finalized.
The submission is journaled when FIREFLY_DATABASE_URL is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			term, err := source.load(cmd, args)
			if err != nil {
				return err
			}
			key, err := a.cfg.SigningKey()
			if err != nil {
				return err
			}

			opts := []models.DeployOption{models.WithPhloLimit(phloLimit)}
			if validAfter >= 0 {
				opts = append(opts, models.WithValidAfter(models.ValidAfterIndex(uint64(validAfter))))
			}
			data := models.NewDeployData(term, opts...)

			var bus *events.Bus
			if wait {
				bus = events.New(a.cfg.EventsURL(), events.WithRetryConfig(a.cfg.Retry))
				bus.Start(ctx)
			}

			client, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			id, err := client.Deploy(ctx, key, data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)

			var waiter *events.DeployWaiter
			if bus != nil {
				waiter = bus.Watch(id)
				defer waiter.Cancel()
			}

			if a.cfg.DatabaseURL != "" {
				a.journalSubmitted(ctx, id, identity.AddressFromPublicKey(key.PubKey()), data)
			}

			if propose {
				block, err := client.Propose(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), block)
			}

			if waiter != nil {
				if !waiter.Wait(ctx, a.cfg.DeployWait) {
					return fmt.Errorf("deploy %s not finalized within %s", id, a.cfg.DeployWait)
				}
				slog.Info("Deploy finalized", "deploy_id", id)
			}
			return nil
		},
	}

	source.register(cmd)
	cmd.Flags().Uint64Var(&phloLimit, "phlo-limit", models.DefaultPhloLimit, "phlo limit of the deploy")
	cmd.Flags().Int64Var(&validAfter, "valid-after", -1, "block number the deploy is valid after (-1 = current head)")
	cmd.Flags().BoolVar(&propose, "propose", false, "propose a block after the deploy is accepted")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the deploy to finalize")

	return cmd
}

// journalSubmitted records a submission. Failures are logged, the deploy already went through.
func (a *app) journalSubmitted(ctx context.Context, id models.DeployID, deployer identity.WalletAddress, data models.DeployData) {
	repository, err := a.openJournal(ctx)
	if err != nil {
		slog.Error("Failed to open journal", "error", err)
		return
	}
	defer repository.Close()

	if err := journal.NewRecorder(repository).RecordSubmitted(ctx, id, deployer, data); err != nil {
		slog.Error("Failed to journal deploy", "deploy_id", id, "error", err)
	}
}

func (a *app) newProposeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "propose",
		Short: "Ask the validator to propose a block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			block, err := client.Propose(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), block)
			return nil
		},
	}
}

func (a *app) newWaitCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "wait <deploy-id>",
		Short: "Wait for a deploy to finalize",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if timeout <= 0 {
				timeout = a.cfg.DeployWait
			}

			bus := events.New(a.cfg.EventsURL(), events.WithRetryConfig(a.cfg.Retry))
			bus.Start(cmd.Context())

			id := models.DeployID(args[0])
			if !bus.WaitForDeploy(cmd.Context(), id, timeout) {
				return fmt.Errorf("deploy %s not finalized within %s", id, timeout)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "finalized")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "how long to wait (default FIREFLY_DEPLOY_WAIT_SEC)")
	return cmd
}
