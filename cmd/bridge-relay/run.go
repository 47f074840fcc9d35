package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/devblac/bridge-relay/internal/checkpoint"
	"github.com/devblac/bridge-relay/internal/config"
	"github.com/devblac/bridge-relay/internal/engine"
	"github.com/devblac/bridge-relay/internal/health"
	"github.com/devblac/bridge-relay/internal/journal"
	"github.com/devblac/bridge-relay/internal/logging"
	"github.com/devblac/bridge-relay/internal/metrics"
	"github.com/devblac/bridge-relay/internal/relay"
	"github.com/devblac/bridge-relay/internal/scanner"
)

var (
	flagOnce    bool
	flagDryRun  bool
	flagHealth  string
	flagMetrics string
)

func init() {
	runCmd.Flags().BoolVar(&flagOnce, "once", false, "Process one iteration and exit")
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Scan but do not deliver or advance the checkpoint")
	runCmd.Flags().StringVar(&flagHealth, "health", "", "Health check HTTP address (e.g., :8080)")
	runCmd.Flags().StringVar(&flagMetrics, "metrics", "", "Metrics HTTP address (e.g., :9090)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the relay loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.NewWithLevel(os.Getenv("LOG_LEVEL"))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		store := checkpoint.NewStore(cfg.State.CheckpointPath)
		if height, ok, err := store.Load(); err != nil {
			// A corrupt resume point cannot be recovered from safely.
			return fmt.Errorf("checkpoint: %w", err)
		} else if ok {
			log.Info("resuming from checkpoint", "height", height, "path", store.Path())
		} else {
			log.Info("no prior checkpoint, starting at the safe head", "path", store.Path())
		}

		jrnl, err := journal.Open(cfg.State.JournalPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer jrnl.Close()

		cli, err := chain.NewRPCClient(cfg.Source.RPCURL)
		if err != nil {
			return err
		}
		contractABI, err := chain.LoadABI(cfg.Source.ABIPath)
		if err != nil {
			return err
		}
		decoder, err := chain.NewEventDecoder(cfg.Source.Event, contractABI)
		if err != nil {
			return err
		}
		source := chain.NewSource(cli, cfg.Source.Contract, decoder)

		startupCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		latest, err := source.LatestHeight(startupCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("source chain unreachable: %w", err)
		}
		log.Info("connected to source chain", "latest_block", latest, "contract", cfg.Source.Contract, "event", decoder.Name())

		sender, err := relay.NewHTTPSender(cfg.Destination.Endpoint, cfg.Destination.Timeout.Std())
		if err != nil {
			return err
		}

		var mtr *metrics.Metrics
		if flagMetrics != "" {
			mtr = metrics.Init()
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				srv := &http.Server{Addr: flagMetrics, Handler: mux}
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server error", "error", err)
				}
			}()
			log.Info("metrics enabled", "addr", flagMetrics)
		}

		if flagHealth != "" {
			healthSrv := health.Serve(flagHealth, health.Checker{
				RPCPing:     health.NewRPCChecker(source).Ping,
				JournalPing: jrnl.Ping,
			})
			log.Info("health check enabled", "addr", flagHealth)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = health.Shutdown(shutdownCtx, healthSrv)
			}()
		}

		orch, err := engine.New(engine.Options{
			Chain:         source,
			Scanner:       scanner.New(source),
			Sender:        sender,
			Checkpoints:   store,
			Journal:       jrnl,
			Metrics:       mtr,
			Log:           log,
			PollInterval:  cfg.Relayer.PollInterval.Std(),
			Confirmations: cfg.Relayer.Confirmations,
			ReorgMargin:   cfg.Relayer.ReorgMargin,
			MaxAttempts:   cfg.Relayer.MaxAttempts,
			BackoffBase:   cfg.Relayer.BackoffBase.Std(),
			BackoffMax:    cfg.Relayer.BackoffMax.Std(),
			DryRun:        flagDryRun,
		})
		if err != nil {
			return err
		}

		if flagOnce {
			return orch.RunOnce(ctx)
		}

		log.Info("starting relay loop",
			"poll_interval", cfg.Relayer.PollInterval.Std(),
			"confirmations", cfg.Relayer.Confirmations,
			"reorg_margin", cfg.Relayer.ReorgMargin,
			"dry_run", flagDryRun,
		)
		if err := orch.Run(ctx); err != nil {
			return err
		}
		log.Info("shutdown complete")
		return nil
	},
}
