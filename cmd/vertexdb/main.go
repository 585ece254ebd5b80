// Command vertexdb is a thin operational wrapper around the graph engine:
// it loads configuration, opens an engine.Engine, and exposes a handful
// of subcommands that exercise the transaction API (serve, stats, bench
// insert). It is not a client/server protocol -- the engine is an
// in-process library, so every subcommand constructs and owns its own
// Engine rather than dialing a remote one.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/vertexdb/pkg/log"
	"github.com/cuemby/vertexdb/pkg/metrics"
	"github.com/cuemby/vertexdb/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vertexdb",
	Short: "vertexdb - in-memory MVCC graph storage engine",
	Long: `vertexdb is an embeddable, in-memory multi-version-concurrent graph
storage engine: vertices and directed edges versioned per shard, with
snapshot-isolated readers and a choice of batched or single-op writes.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"vertexdb version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (defaults to the built-in tunables)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(benchCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
	metrics.SetVersion(Version)
}

func loadConfig(cmd *cobra.Command) (types.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return types.DefaultConfig(), nil
	}
	return types.LoadConfig(path)
}
