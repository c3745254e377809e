package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ngenohkevin/hivetop/config"
	"github.com/ngenohkevin/hivetop/internal/docker"
	"github.com/ngenohkevin/hivetop/internal/monitor"
	"github.com/ngenohkevin/hivetop/internal/process"
	"github.com/ngenohkevin/hivetop/internal/server"
	"github.com/ngenohkevin/hivetop/internal/system"
	"github.com/ngenohkevin/hivetop/internal/systemd"
	"github.com/ngenohkevin/hivetop/internal/telemetry"
	"github.com/ngenohkevin/hivetop/internal/term"
)

const (
	hostRefresh      = 5 * time.Second
	containerRefresh = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(2)
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log: %v\n", err)
		os.Exit(2)
	}

	code := 0
	if err := run(cfg, logger); err != nil {
		logger.Error("hivetop stopped", "error", err)
		code = 1
	}
	closeLog()
	os.Exit(code)
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sampler := process.NewSampler(process.NewOSSource(),
		process.WithWorkers(cfg.Workers),
		process.WithInspectTimeout(cfg.InspectTimeout()),
		process.WithLogger(logger),
	)

	metrics := telemetry.New()
	notifier := systemd.NewNotifier(logger)
	defer notifier.Stopping()

	presenters := []monitor.Presenter{metrics, notifier}
	var annotators []monitor.Annotator

	if cfg.DockerEnabled {
		if a, closeDocker := dockerAnnotator(ctx, logger); a != nil {
			defer closeDocker()
			annotators = append(annotators, a)
		}
	}

	var srv *server.Server
	if cfg.HTTP.Enabled {
		srv = server.New(cfg, metrics.Handler(), logger)
		presenters = append(presenters, srv)
	}

	if cfg.Terminal {
		host := system.NewReader(hostRefresh)

		tp, restore := term.NewStdout(logger, term.WithHeader(term.HostHeader(host)))
		defer restore()
		presenters = append(presenters, tp)
	}

	mon := monitor.New(sampler, monitor.Settings{
		Period:      cfg.Period(),
		SettleDelay: cfg.SettleDelay(),
		TopN:        cfg.TopN,
	},
		monitor.WithPresenters(presenters...),
		monitor.WithAnnotators(annotators...),
		monitor.WithLogger(logger),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mon.Run(gctx)
	})
	if srv != nil {
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}
	return g.Wait()
}

// dockerAnnotator connects to the daemon. Attribution is skipped, not fatal,
// when Docker cannot be reached.
func dockerAnnotator(ctx context.Context, logger *slog.Logger) (*docker.Annotator, func()) {
	mgr, err := docker.NewManager()
	if err != nil {
		logger.Warn("docker attribution disabled", "error", err)
		return nil, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if !mgr.IsAvailable(pingCtx) {
		logger.Warn("docker attribution disabled", "error", errors.New("daemon not reachable"))
		mgr.Close()
		return nil, nil
	}

	return docker.NewAnnotator(mgr, containerRefresh, logger), func() { mgr.Close() }
}

func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out = f
		closeFn = func() { f.Close() }
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, closeFn, nil
}
