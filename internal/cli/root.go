// Package cli implements the berth command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/berth-sh/berth/internal/config"
	"github.com/berth-sh/berth/internal/logging"
)

var (
	cfgFile       string
	logLevelFlag  string
	logFormatFlag string

	loadedConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "berth",
	Short: "Supervise local IPFS daemons",
	Long: `berth launches, supervises, and configures local IPFS (kubo) daemons.

It keeps a registry of nodes in SQLite, spawns ipfs daemon processes,
waits for their API to come up, and wires them to peers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/berth/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	rootCmd.PersistentFlags().BoolVar(&jsonlOutput, "jsonl", false, "output JSON Lines")
	rootCmd.PersistentFlags().BoolVarP(&quietOutput, "quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolVarP(&verboseOutput, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt; fail instead")
	rootCmd.PersistentFlags().BoolVar(&watchMode, "watch", false, "stream events after the command (requires --jsonl)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "log format (console, json)")
	rootCmd.PersistentFlags().Bool("robot-help", false, "Machine-readable help output")
}

// Execute runs the root command with the given context.
func Execute(ctx context.Context) error {
	if hasRobotHelpFlag(os.Args[1:]) {
		printRobotHelp(os.Stdout)
		return nil
	}
	return rootCmd.ExecuteContext(ctx)
}

// hasRobotHelpFlag checks the raw arguments so --robot-help works even
// when the rest of the command line would not parse.
func hasRobotHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--robot-help" {
			return true
		}
		if arg == "--" {
			break
		}
	}
	return false
}

// GetConfig returns the loaded configuration. Before PersistentPreRunE
// has run (early startup, tests) it returns defaults.
func GetConfig() *config.Config {
	if loadedConfig == nil {
		return config.DefaultConfig()
	}
	return loadedConfig
}

// SetConfig replaces the loaded configuration. Used by tests.
func SetConfig(cfg *config.Config) {
	loadedConfig = cfg
}

func initializeConfig() error {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.SetConfigFile(cfgFile)
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	// Flags win over config file and environment.
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	if logFormatFlag != "" {
		cfg.Logging.Format = logFormatFlag
	}

	applyLogging(cfg)
	loadedConfig = cfg
	return nil
}

func applyLogging(cfg *config.Config) {
	logCfg := logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		EnableCaller: cfg.Logging.EnableCaller,
	}

	// Machine-readable stdout deserves machine-readable stderr.
	if IsJSONOutput() || IsJSONLOutput() {
		logCfg.Format = "json"
	}
	if IsQuiet() && logCfg.Level == "info" {
		logCfg.Level = "warn"
	}
	if IsVerbose() && logCfg.Level == "info" {
		logCfg.Level = "debug"
	}

	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: cannot open log file %s: %v\n", cfg.Logging.File, err)
		} else {
			logCfg.Output = f
		}
	}

	logging.Init(logCfg)
}
