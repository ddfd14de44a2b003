// Command bargein runs the interruption arbitration service: it decides, in
// real time, whether user speech detected during the agent's spoken turn
// should interrupt the agent or be ignored as backchannel.
//
// The binary serves /healthz, /readyz, /metrics (Prometheus), and /events (a
// websocket feed of terminal decisions). With -sim it additionally plays a
// scripted conversation through the arbitration core, which is the quickest
// way to watch decisions happen:
//
//	bargein -config config.yaml -sim
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/openvoicekit/bargein/internal/config"
	"github.com/openvoicekit/bargein/internal/eventfeed"
	"github.com/openvoicekit/bargein/internal/health"
	"github.com/openvoicekit/bargein/internal/interrupt"
	"github.com/openvoicekit/bargein/internal/observe"
	"github.com/openvoicekit/bargein/internal/session"
	"github.com/openvoicekit/bargein/pkg/voice/mock"
)

// maxHealthyBacklog is the pending-interruption count above which /readyz
// reports unready. Normal operation stays in single digits.
const maxHealthyBacklog = 32

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file (default: built-in defaults)")
	simulate := flag.Bool("sim", false, "run a scripted conversation through the filter")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bargein: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("bargein starting",
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"filter_enabled", cfg.Filter.Enabled,
		"buffer_time_s", cfg.Filter.BufferTime,
	)

	// ── Signal context ────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────
	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "bargein"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Session wiring ────────────────────────────────────────────────────
	feed := eventfeed.NewHub(eventfeed.WithMetrics(metrics))
	defer feed.Close()

	src := mock.NewStream()
	sess, err := session.New(session.Config{
		Filter:      cfg.Filter.ToFilter(),
		Onsets:      src,
		Transcripts: src,
		States:      src,
		Sinks:       []interrupt.Emitter{feed},
		Metrics:     metrics,
	})
	if err != nil {
		slog.Error("failed to assemble session", "err", err)
		return 1
	}

	// ── HTTP server ───────────────────────────────────────────────────────
	mux := http.NewServeMux()
	health.New(
		health.BacklogChecker("tracker", sess.PendingCount, maxHealthyBacklog),
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /events", feed)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		return sess.Run(gctx)
	})
	if *simulate {
		g.Go(func() error {
			runScript(gctx, src)
			return nil
		})
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// runScript plays a short conversation through the filter: backchannel while
// the agent speaks (filtered), a real command (allowed), input while the
// agent is silent (allowed), and an onset whose transcription arrives too
// late (fallback allow).
func runScript(ctx context.Context, src *mock.Stream) {
	defer src.Close()

	step := func(d time.Duration) bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	// Agent starts talking; the user murmurs acknowledgement.
	src.EmitState(true)
	if !step(100 * time.Millisecond) {
		return
	}
	id := uuid.NewString()
	src.EmitOnset(id)
	src.EmitPartial(id, "yeah")
	if !step(150 * time.Millisecond) {
		return
	}
	src.EmitFinal(id, "yeah yeah okay")

	// The user actually wants the agent to stop.
	if !step(300 * time.Millisecond) {
		return
	}
	id = uuid.NewString()
	src.EmitOnset(id)
	if !step(100 * time.Millisecond) {
		return
	}
	src.EmitFinal(id, "okay stop for a second")

	// Agent is silent now; anything the user says is live input.
	src.EmitState(false)
	if !step(200 * time.Millisecond) {
		return
	}
	id = uuid.NewString()
	src.EmitOnset(id)
	src.EmitFinal(id, "ok")

	// Agent speaks again; STT never finalises, so the deadline decides.
	src.EmitState(true)
	if !step(200 * time.Millisecond) {
		return
	}
	id = uuid.NewString()
	src.EmitOnset(id)
	src.EmitPartial(id, "hmm")

	// Give the buffer timeout room to fire before the script ends.
	step(3 * time.Second)
}

// newLogger builds the process-wide slog logger for the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
