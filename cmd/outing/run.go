package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"outing/internal/orchestrator"
	"outing/internal/render"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	var (
		offline      bool
		scenarioPath string
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:   "run \"<request>\"",
		Short: "Run one recommendation",
		Example: `  outing run "quiet tea house this Sunday afternoon in Seattle"
  outing run --offline "quiet tea this sunday"
  outing run --offline --scenario fixtures/portland.yaml "coffee saturday"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}

			engine, err := buildEngine(cfg, logger, offline, scenarioPath)
			if err != nil {
				return err
			}

			prompt := strings.Join(args, " ")
			result := engine.Run(cmd.Context(), prompt, runContextFrom(cfg))

			if jsonOutput {
				raw, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(raw))
			} else {
				printMarkdown(render.Result(result))
			}

			switch result.Status {
			case orchestrator.StatusOK:
				color.Green("Done in %d iteration(s). Request ID: %s", result.Iterations, result.RequestID)
				return nil
			case orchestrator.StatusNoResult:
				color.Yellow("No venues matched after %d iteration(s).", result.Iterations)
				return nil
			default:
				if result.Err != nil {
					color.Red("Run failed: %s", result.Err.Message)
					return fmt.Errorf("%s", result.Err.Code)
				}
				return fmt.Errorf("run failed")
			}
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Run against fixture data, no external APIs")
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "Scenario YAML file for offline runs")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the raw result as JSON")

	return cmd
}
