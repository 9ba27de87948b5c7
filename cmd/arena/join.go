package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/u1974754/p-final-multi/internal/client"
	"github.com/u1974754/p-final-multi/internal/config"
	"github.com/u1974754/p-final-multi/internal/dispatch"
	"github.com/u1974754/p-final-multi/internal/engine"
	"github.com/u1974754/p-final-multi/internal/game"
	"github.com/u1974754/p-final-multi/internal/transport"
	"github.com/u1974754/p-final-multi/internal/wire"
)

func joinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Connect a headless client to a server",
		Long: `Connect a headless client to a server.

With --character the client claims that character right after the handshake
and moves on to the next index while the requested one is taken. Without it,
type a character index on stdin.

Examples:
  arena join --character=0
  arena join --addr=ws://127.0.0.1:7778/ws`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			return runJoin(cmd.Context(), cfg, cmd.InOrStdin())
		},
	}
	config.AddClientFlags(cmd.Flags())
	return cmd
}

func runJoin(parent context.Context, cfg config.Config, stdin io.Reader) error {
	runID, logCloser := setupLogging(cfg)
	defer func() { _ = logCloser.Close() }()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go shutdownWatch(ctx)

	pl, err := openPacketLog(cfg)
	if err != nil {
		return fmt.Errorf("open ndjson telemetry file: %w", err)
	}
	defer func() { _ = pl.Close() }()

	hub := transport.NewHub(transport.HubConfig{})
	defer hub.Shutdown()

	var sess *client.Session
	attempt := cfg.Client.Character
	hooks := client.Hooks{
		CharacterSelection: func(hs wire.Handshake) {
			slog.Info("choose a character", "server", hs.ServerName, "you", hs.ClientName, "previous_client", hs.PreviousClientName)
		},
		SelectionFailed: func(reason string) {
			if cfg.Client.Character < 0 {
				return
			}
			if reason != game.ReasonAlreadyTaken {
				slog.Warn("no free character; leaving", "reason", reason)
				stop()
				return
			}
			attempt++
			if err := sess.Select(attempt); err != nil {
				slog.Warn("no free character; leaving", "err", err)
				stop()
			}
		},
		EnterGameplay: func(slot int) {
			slog.Info("entered gameplay", "slot", slot)
		},
		Spawn: func(slot int, pos wire.Vec3) {
			slog.Info("spawned", "slot", slot, "x", pos.X, "y", pos.Y, "z", pos.Z)
		},
		Flagged: func(slot int) {
			slog.Warn("server flagged this client as cheating", "slot", slot)
		},
		Disconnected: stop,
	}
	sess = client.New(client.NewPuppet(cfg.Client.Lives), hooks, client.Config{
		AutoSelect:     cfg.Client.Character,
		ReportInterval: cfg.Client.ReportInterval,
	})
	disp := dispatch.New(wire.ToClient)
	sess.Register(disp)

	eng := engine.New(engine.Config{Tick: cfg.Tick, Role: "client", RunID: runID}, hub, disp,
		engine.WithPacketLog(pl),
	)
	eng.OnTick(sess.Tick)

	if err := dial(ctx, cfg.Client.Addr, hub); err != nil {
		return err
	}
	if cfg.Client.Character < 0 && stdin != nil {
		go readSelections(ctx, stdin, sess)
	}

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("game loop: %w", err)
	}
	slog.Info("client stopped", "phase", sess.Phase(), "last_error", sess.LastError())
	return nil
}

func dial(ctx context.Context, addr string, hub *transport.Hub) error {
	var err error
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		_, err = transport.DialWS(ctx, addr, hub)
	} else {
		_, err = transport.DialTCP(ctx, addr, hub)
	}
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	return nil
}

// readSelections turns lines like "1" into Select calls.
func readSelections(ctx context.Context, r io.Reader, sess *client.Session) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		idx, err := strconv.Atoi(line)
		if err != nil {
			slog.Warn("not a character index", "input", line)
			continue
		}
		if err := sess.Select(idx); err != nil {
			slog.Warn("select rejected locally", "index", idx, "err", err)
		}
	}
}
