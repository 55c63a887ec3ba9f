package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"outing/internal/evaluator"
	"outing/internal/executor"
	"outing/internal/llm"
	"outing/internal/metrics"
	"outing/internal/orchestrator"
	"outing/internal/places"
	"outing/internal/planner"
	"outing/internal/scenario"
	"outing/internal/server"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var (
		addr    string
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if err := cfg.Validate(offline); err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			m := metrics.Default()

			// Clients are shared across sessions; per-session state lives
			// in the orchestrator.
			var factory server.EngineFactory
			if offline {
				factory = func() *orchestrator.Orchestrator {
					s := scenario.Default()
					return orchestrator.New(
						s.Planner(), s.Executor(), evaluator.New(logger),
						orchestrator.WithLogger(logger),
						orchestrator.WithMetrics(m),
						orchestrator.WithMinRating(cfg.Engine.MinRating),
					)
				}
			} else {
				policy := cfg.RetryPolicy()
				client := llm.NewOpenAIClient(cfg.LLMConfig(), policy, logger, m)
				placesClient := places.NewClient(cfg.PlacesClientConfig(), policy, logger, m)
				factory = func() *orchestrator.Orchestrator {
					return orchestrator.New(
						planner.New(client, logger, m),
						executor.New(placesClient, logger, m),
						evaluator.New(logger),
						orchestrator.WithLogger(logger),
						orchestrator.WithMetrics(m),
						orchestrator.WithRetryPolicy(policy),
						orchestrator.WithMinRating(cfg.Engine.MinRating),
					)
				}
			}

			serverCfg := server.DefaultConfig()
			serverCfg.Addr = cfg.Server.Addr
			serverCfg.Debug = flags.debug

			srv := server.New(factory, runContextFrom(cfg), serverCfg, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return <-errCh
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Serve fixture data, no external APIs")

	return cmd
}
