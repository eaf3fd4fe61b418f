package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"firefly/internal/node"
)

func (a *app) newQueryCmd() *cobra.Command {
	var source sourceFlags

	cmd := &cobra.Command{
		Use:   "query [file | -]",
		Short: "Run an exploratory deploy on the observer and print its value as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			term, err := source.load(cmd, args)
			if err != nil {
				return err
			}

			expr, err := node.NewReadClient(a.cfg.ObserverURL).Explore(cmd.Context(), term)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(expr.Generic(), "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	source.register(cmd)
	return cmd
}
