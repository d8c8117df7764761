// Package main implements the memoryd development shell: a line-oriented
// REPL around the memory engine for exercising ingestion, retrieval and
// snapshots. Production chat shells embed the engine directly.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "memoryd",
	Short: "Hierarchical conversational-memory engine",
	Long: `memoryd maintains three conversation memory tiers (short-term,
mid-term, hybrid long-term) and produces token-budgeted, relevance-ranked
context bundles for prompt assembly.

Running without a subcommand starts the development REPL.`,
	Version: version,
	RunE:    runREPL,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
}

// loadConfig builds config and logger for a command run.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runREPL(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	return repl(cmd.Context(), engine, cfg, os.Stdin, os.Stdout)
}
