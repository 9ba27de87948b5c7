package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/u1974754/p-final-multi/internal/config"
	"github.com/u1974754/p-final-multi/internal/dispatch"
	"github.com/u1974754/p-final-multi/internal/engine"
	"github.com/u1974754/p-final-multi/internal/game"
	"github.com/u1974754/p-final-multi/internal/metrics"
	"github.com/u1974754/p-final-multi/internal/state"
	"github.com/u1974754/p-final-multi/internal/status"
	"github.com/u1974754/p-final-multi/internal/transport"
	"github.com/u1974754/p-final-multi/internal/wire"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		Long: `Run the game server.

Examples:
  arena serve
  arena serve --port=7777 --status-port=0
  ARENA_TIMEOUTS_IDLE=30s arena serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	config.AddServerFlags(cmd.Flags())
	return cmd
}

func runServe(parent context.Context, cfg config.Config) error {
	runID, logCloser := setupLogging(cfg)
	defer func() { _ = logCloser.Close() }()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go shutdownWatch(ctx)

	slog.Info(
		"starting arena server",
		"name", cfg.Server.Name,
		"port", cfg.Server.Port,
		"status_port", cfg.StatusPort,
		"slots", cfg.Slots,
		"tick", cfg.Tick,
	)

	pl, err := openPacketLog(cfg)
	if err != nil {
		return fmt.Errorf("open ndjson telemetry file: %w", err)
	}
	defer func() { _ = pl.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(metrics.Config{Subsystem: "server", Registry: reg})

	hub := transport.NewHub(transport.HubConfig{})
	defer hub.Shutdown()
	addr, err := transport.ListenTCP(ctx, cfg.ListenAddr(), hub)
	if err != nil {
		return fmt.Errorf("game listener: %w", err)
	}

	slots := state.NewArbiter(cfg.Slots)
	sessions := state.NewSessionStore()
	started := time.Now().UTC()
	coord := game.NewCoordinator(cfg.GameConfig(), slots, sessions, game.NewValidator(cfg.Bounds),
		game.WithMetrics(m),
		game.WithStartTime(started),
	)
	disp := dispatch.New(wire.ToServer)
	coord.Register(disp)

	eng := engine.New(engine.Config{Tick: cfg.Tick, Role: "server", RunID: runID}, hub, disp,
		engine.WithPacketLog(pl),
		engine.WithMetrics(m),
	)
	eng.Every(cfg.SweepEvery, func(now time.Time, out engine.Sender) {
		for _, conn := range coord.Sweep(now) {
			_ = out.Close(conn)
		}
	})

	if statusAddr := cfg.StatusAddr(); statusAddr != "" {
		base := status.Data{ServerName: cfg.Server.Name, Version: version, GameAddr: addr.String()}
		st, err := status.Start(ctx, statusAddr, status.Options{
			Provider: func() status.Data {
				return status.Snapshot(base, started, time.Now().UTC(), slots, sessions)
			},
			Gatherer: reg,
			WS:       hub.WSHandler(),
		})
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		slog.Info("status server listening", "addr", st.Addr().String())
	}

	slog.Info("game server listening", "addr", addr.String())
	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("game loop: %w", err)
	}
	slog.Info("shutdown requested", "sessions", sessions.Count(), "slots_taken", slots.Taken())
	return nil
}
