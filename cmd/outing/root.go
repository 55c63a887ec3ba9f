package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"outing/internal/config"
	"outing/internal/logging"
)

// Version is stamped at build time via -ldflags.
var Version = "0.2.0"

type rootFlags struct {
	configFile string
	debug      bool
	logFormat  string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "outing",
		Short: "Venue recommendation engine",
		Long: "Outing turns a free-form request like \"quiet tea house this Sunday\n" +
			"afternoon in Seattle\" into a ranked venue plan with backups,\n" +
			"a schedule and rationale.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Config file (default: outing-config.yaml in $HOME or .)")
	cmd.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "Debug logging")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log format: text or json")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("outing %s\n", Version)
		},
	}
}

// loadConfig resolves configuration and builds the root logger.
func loadConfig(flags *rootFlags) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Log.Level
	if flags.debug {
		level = "debug"
	}
	format := cfg.Log.Format
	if flags.logFormat != "" {
		format = flags.logFormat
	}
	logger := logging.New(logging.Config{Level: level, Format: format})
	return cfg, logger, nil
}
