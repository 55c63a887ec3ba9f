package main

import (
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"

	"outing/internal/config"
	"outing/internal/evaluator"
	"outing/internal/executor"
	"outing/internal/llm"
	"outing/internal/logging"
	"outing/internal/metrics"
	"outing/internal/orchestrator"
	"outing/internal/places"
	"outing/internal/planner"
	"outing/internal/scenario"
)

// buildEngine wires a session-scoped orchestrator. Offline mode swaps the
// LLM planner and the venue API for scenario fixtures; everything else in
// the loop is the real thing.
func buildEngine(cfg *config.Config, logger *logging.Logger, offline bool, scenarioPath string) (*orchestrator.Orchestrator, error) {
	m := metrics.Default()

	var (
		plannerImpl  orchestrator.Planner
		executorImpl orchestrator.Executor
	)

	if offline {
		s := scenario.Default()
		if scenarioPath != "" {
			loaded, err := scenario.Load(scenarioPath)
			if err != nil {
				return nil, err
			}
			s = loaded
		}
		logger.Info("running offline", "scenario", s.Name)
		plannerImpl = s.Planner()
		executorImpl = s.Executor()
	} else {
		if err := ensureAPIKeys(cfg); err != nil {
			return nil, err
		}
		policy := cfg.RetryPolicy()
		client := llm.NewOpenAIClient(cfg.LLMConfig(), policy, logger, m)
		placesClient := places.NewClient(cfg.PlacesClientConfig(), policy, logger, m)
		plannerImpl = planner.New(client, logger, m)
		executorImpl = executor.New(placesClient, logger, m)
	}

	return orchestrator.New(
		plannerImpl,
		executorImpl,
		evaluator.New(logger),
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(m),
		orchestrator.WithRetryPolicy(cfg.RetryPolicy()),
		orchestrator.WithMinRating(cfg.Engine.MinRating),
	), nil
}

func runContextFrom(cfg *config.Config) orchestrator.RunContext {
	return orchestrator.RunContext{
		MaxIterations: cfg.Engine.MaxIterations,
		MaxToolCalls:  cfg.Engine.MaxToolCalls,
	}
}

// ensureAPIKeys prompts for missing provider keys when running on a
// terminal, so a first run does not require editing config files. Piped or
// scripted invocations fail fast instead.
func ensureAPIKeys(cfg *config.Config) error {
	interactive := term.IsTerminal(int(os.Stdin.Fd()))

	if cfg.OpenAI.APIKey == "" && interactive {
		key, err := promptSecret("OpenAI API key")
		if err != nil {
			return err
		}
		cfg.OpenAI.APIKey = key
	}
	if cfg.Places.APIKey == "" && interactive {
		key, err := promptSecret("Places API key")
		if err != nil {
			return err
		}
		cfg.Places.APIKey = key
	}

	return cfg.Validate(false)
}

func promptSecret(label string) (string, error) {
	prompt := promptui.Prompt{
		Label: label,
		Mask:  '*',
		Validate: func(s string) error {
			if s == "" {
				return fmt.Errorf("%s must not be empty", label)
			}
			return nil
		},
	}
	return prompt.Run()
}
