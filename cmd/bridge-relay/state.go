package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/devblac/bridge-relay/internal/checkpoint"
	"github.com/devblac/bridge-relay/internal/config"
	"github.com/devblac/bridge-relay/internal/journal"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show checkpoint height, chain lag, and journal totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		store := checkpoint.NewStore(cfg.State.CheckpointPath)
		height, ok, err := store.Load()
		if err != nil {
			return fmt.Errorf("checkpoint: %w", err)
		}
		if !ok {
			fmt.Fprintln(out, "checkpoint: none (first run pending)")
		} else {
			fmt.Fprintf(out, "checkpoint: %d (%s)\n", height, store.Path())
		}

		// Lag is best effort; the command still reports local state when
		// the RPC endpoint is down.
		if cli, err := chain.NewRPCClient(cfg.Source.RPCURL); err == nil {
			ctx, cancel := context.WithTimeout(cmd.Context(), 8*time.Second)
			if header, err := cli.HeaderByNumber(ctx, nil); err == nil {
				latest := header.Number.Uint64()
				fmt.Fprintf(out, "chain tip: %d\n", latest)
				if ok && latest >= cfg.Relayer.Confirmations {
					safeHead := latest - cfg.Relayer.Confirmations
					if safeHead > height {
						fmt.Fprintf(out, "lag: %d confirmed blocks behind\n", safeHead-height)
					} else {
						fmt.Fprintln(out, "lag: caught up")
					}
				}
			} else {
				fmt.Fprintf(out, "chain tip: unavailable (%v)\n", err)
			}
			cancel()
		}

		jrnl, err := journal.Open(cfg.State.JournalPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer jrnl.Close()

		delivered, failed, err := jrnl.Totals(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "deliveries: %d delivered, %d failed\n", delivered, failed)
		return nil
	},
}
