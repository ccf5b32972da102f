// Command reaper runs C8 standalone, for deployments that schedule segment
// cleanup as its own process rather than inside cmd/sectify. Exit codes
// follow spec.md §6: 0 on a clean stop (SIGTERM), 2 on invalid configuration, 130 on
// cancellation (SIGINT), matching the shell convention of 128+signal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sectify/sectify/internal/config"
	"github.com/sectify/sectify/internal/reaper"
)

func main() {
	cmd := &cobra.Command{
		Use:   "reaper",
		Short: "Periodically delete stale HLS segment files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	if err := cmd.Execute(); err != nil {
		if err == errCancelled {
			os.Exit(130)
		}
		slog.Error("fatal", "err", err)
		os.Exit(2)
	}
}

var errCancelled = fmt.Errorf("reaper: cancelled")

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	interrupted := false
	go func() {
		interrupted = <-sigs == syscall.SIGINT
		cancel()
	}()

	r := reaper.New(cfg.HLSRoot, cfg.ReaperInterval, cfg.ReaperAge, slog.Default())
	slog.Info("reaper starting", "root", cfg.HLSRoot, "interval", cfg.ReaperInterval, "age", cfg.ReaperAge)
	r.Run(ctx)

	if interrupted {
		return errCancelled
	}
	return nil
}
