// Command arena runs either side of the character-slot arena protocol.
//
// `arena serve` starts:
// - the game listener (TCP, plus WebSocket on the status port),
// - the single-threaded game loop and its session sweeper, and
// - the status endpoint (/, /healthz, /metrics, /ws).
//
// `arena join` connects a headless client that handshakes, selects a
// character and keeps reporting its position.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/u1974754/p-final-multi/internal/config"
	"github.com/u1974754/p-final-multi/internal/ident"
	"github.com/u1974754/p-final-multi/internal/logging"
	"github.com/u1974754/p-final-multi/internal/packetlog"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func fatal(msg string, err error, attrs ...any) {
	args := make([]any, 0, 2+len(attrs))
	args = append(args, "err", err)
	args = append(args, attrs...)
	slog.Error(msg, args...)
	os.Exit(1)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "arena",
		Short: "Character-slot arena server and headless client",
		Long: `arena coordinates a small multiplayer session: clients handshake,
claim one of a fixed set of characters and report their positions, and the
server arbitrates who owns which character.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		serveCmd(),
		joinCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fatal("arena failed", err)
	}
}

// setupLogging installs the default logger and returns the run ID.
func setupLogging(cfg config.Config) (string, io.Closer) {
	runID := ident.MakeRunID()
	logger, closer := logging.New(os.Stderr, logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
		RunID: runID,
	})
	slog.SetDefault(logger)
	return runID, closer
}

// shutdownWatch allows a bounded window for goroutines to exit cleanly once a
// shutdown signal is received, then forces termination.
func shutdownWatch(ctx context.Context) {
	<-ctx.Done()
	t := time.NewTimer(60 * time.Second)
	defer t.Stop()
	<-t.C
	slog.Error("shutdown timed out after 60s, forcing exit")
	os.Exit(2)
}

func openPacketLog(cfg config.Config) (*packetlog.Logger, error) {
	if cfg.PacketLogPath == "" {
		slog.Info("ndjson telemetry disabled (default); set ARENA_TELEMETRY_NDJSON_PATH to enable")
		return nil, nil
	}
	pl, err := packetlog.New(cfg.PacketLogPath, cfg.PacketLogMaxMB)
	if err != nil {
		return nil, err
	}
	slog.Info("ndjson telemetry enabled", "path", cfg.PacketLogPath, "max_size_mb", cfg.PacketLogMaxMB)
	return pl, nil
}
