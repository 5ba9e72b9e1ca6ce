package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aretw0/weft/internal/cli"
	"github.com/aretw0/weft/internal/config"
	"github.com/aretw0/weft/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "weft runs workflows written as mermaid state diagrams",
	Long: `weft executes workflows described as Mermaid stateDiagram-v2 files.
States carry actions (prompts, shell commands, sub-workflows, waits) and
transitions carry conditions. Runs are checkpointed after every state and
can be inspected, signalled, cancelled and resumed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	flags := rootCmd.PersistentFlags()
	flags.String("dir", ".", "Directory containing the weft project")
	flags.String("config", "", "Config file (default <dir>/weft.yaml)")
	flags.String("store", "", "Run store driver: memory, file or redis")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-format", "", "Log format: text or json")
	flags.Bool("debug", false, "Log every lifecycle event")
}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"store":      "store.driver",
	"log-level":  "log.level",
	"log-format": "log.format",
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	dir, _ := cmd.Flags().GetString("dir")
	file, _ := cmd.Flags().GetString("config")

	overrides := map[string]any{}
	for flag, key := range flagKeys {
		if cmd.Flags().Changed(flag) {
			v, _ := cmd.Flags().GetString(flag)
			overrides[key] = v
		}
	}
	if cmd.Flags().Changed("debug") {
		overrides["log.level"] = "debug"
	}
	return config.Load(config.Options{Dir: dir, File: file, Overrides: overrides})
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(level, format), nil
}

// openEngine loads configuration and builds the engine. The returned
// function shuts it down.
func openEngine(cmd *cobra.Command) (*cli.Engine, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	debug, _ := cmd.Flags().GetBool("debug")

	eng, err := cli.NewEngine(cfg, logger, cli.EngineOptions{Debug: debug})
	if err != nil {
		return nil, nil, err
	}
	return eng, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := eng.Close(ctx); err != nil {
			logger.Warn("shutdown incomplete", "err", err)
		}
	}, nil
}
