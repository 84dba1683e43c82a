// Package cli implements the actionloop command tree.
package cli

import (
	"io"

	"github.com/soyeahso/actionloop/internal/config"
	"github.com/soyeahso/actionloop/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths     config.Paths
	cfg       config.Config
	cfgErr    error
	log       *logging.Logger
	logCloser io.Closer
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actionloop",
		Short: "actionloop runs tool-using LLM agents",
		Long: "actionloop drives a language model through a bounded loop of tool calls\n" +
			"until it produces a final answer, recording every step.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}

			// A broken config file must not stop "config" subcommands from
			// repairing it; commands that need it check cfgErr.
			cfg, cfgErr = config.Load(paths.Config)

			opts := logging.Options{
				Level:        cfg.Logging.Level,
				ConsoleStyle: cfg.Logging.ConsoleStyle,
				File:         cfg.Logging.File,
			}
			if logLevel != "" {
				opts.Level = logLevel
			}
			if opts.Level == "" {
				opts.Level = "info"
			}
			log, logCloser, err = logging.NewWithOptions(opts)
			if err != nil {
				log = logging.New(nil, opts.Level)
				logCloser = nil
				log.Warn().Err(err).Msg("log file unavailable, logging to console only")
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.actionloop/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newToolsCmd())
	cmd.AddCommand(newRunsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// loadedConfig returns the config read at startup, or the load error.
func loadedConfig() (config.Config, error) {
	return cfg, cfgErr
}
