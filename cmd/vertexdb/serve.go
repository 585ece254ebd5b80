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

	"github.com/cuemby/vertexdb/pkg/engine"
	"github.com/cuemby/vertexdb/pkg/log"
	"github.com/cuemby/vertexdb/pkg/metrics"
	"github.com/cuemby/vertexdb/pkg/snapshot"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open an engine and expose its metrics/health surface over HTTP",
	Long: `serve opens a fresh, empty engine and listens for /metrics, /health,
/ready, and /live requests until interrupted. It does not accept graph
writes over the network -- vertexdb is an embeddable library, not a
server protocol -- this subcommand exists to exercise the ambient
operational surface (metrics, health checks, the periodic snapshot
exporter) the way an embedder's own process would.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "HTTP listen address for /metrics, /health, /ready, /live")
	serveCmd.Flags().String("snapshot-path", "", "bbolt file to receive periodic shard summaries (disabled if empty)")
	serveCmd.Flags().Duration("snapshot-interval", 30*time.Second, "interval between periodic snapshot summary exports")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	addr, _ := cmd.Flags().GetString("addr")
	snapPath, _ := cmd.Flags().GetString("snapshot-path")
	snapInterval, _ := cmd.Flags().GetDuration("snapshot-interval")

	e := engine.Open(cfg)
	metrics.SetVersion(Version)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())

	srv := &http.Server{Addr: addr, Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if snapPath != "" {
		store, err := snapshot.Open(snapPath)
		if err != nil {
			return fmt.Errorf("open snapshot store: %w", err)
		}
		defer store.Close()

		go snapshot.RunPeriodic(ctx, e.Txn, e, store, snapInterval, func(err error) {
			log.Logger.Error().Err(err).Msg("periodic snapshot export failed")
		})
		fmt.Printf("Periodic snapshot summaries: %s (every %s)\n", snapPath, snapInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	fmt.Printf("vertexdb engine serving %s (metrics/health only)\n", addr)
	fmt.Println("Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	fmt.Println("Shutdown complete")
	return nil
}
