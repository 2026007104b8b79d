package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sitepulse/internal/collector"
	"sitepulse/internal/config"
	"sitepulse/internal/display"
	"sitepulse/internal/fetch"
	"sitepulse/internal/model"
	"sitepulse/internal/poller"
	"sitepulse/internal/reviews"
	"sitepulse/internal/stream"
	"sitepulse/internal/tracker"
)

type Agent struct {
	cfg       config.Config
	logger    *slog.Logger
	board     *display.Board
	pollers   []*poller.Poller
	scheduler *collector.Scheduler
	sink      *stream.Fanout
	paginator *reviews.Paginator
	tracker   *tracker.Tracker
	sessions  tracker.SessionStore
	health    *HealthStatus
	handler   http.Handler

	baseCtx context.Context
}

func New(cfg config.Config, logger *slog.Logger) (*Agent, error) {
	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}

	remote, err := stream.NewSinkFromConfig(cfg, tlsCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("stream sink: %w", err)
	}

	client, err := fetch.NewHTTPClient(cfg.RequestTimeout, nil)
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}
	fetcher := fetch.NewFetcher(client, cfg.SnapshotDir)

	health := NewHealthStatus(cfg.StreamMode != config.StreamModeNone)
	board := display.NewBoard()
	sink := stream.NewFanout(board, remote, logger, func(id string, r model.MetricResult, err error) {
		health.MarkCycle(id, r.Source, r.ResolvedAt)
		if cfg.StreamMode != config.StreamModeNone {
			health.SetStreamConnected(err == nil)
		}
	})

	pollers := make([]*poller.Poller, 0, len(cfg.Targets))
	loops := make([]collector.Loop, 0, len(cfg.Targets))
	for _, spec := range cfg.Targets {
		target, err := spec.PollTarget()
		if err != nil {
			return nil, err
		}
		if target.Parse, err = poller.ParserFor(target.Kind); err != nil {
			return nil, fmt.Errorf("target %s: %w", target.ID, err)
		}
		p, err := poller.New(target, fetcher, sink, logger)
		if err != nil {
			return nil, err
		}
		board.Register(target.ID, spec.Plain)
		pollers = append(pollers, p)
		loops = append(loops, p)
	}

	var paginator *reviews.Paginator
	if spec, ok := cfg.ReviewsTarget(); ok {
		paginator = reviews.NewPaginator(reviews.Config{
			LiveURL:      spec.LiveURL,
			SnapshotPath: spec.SnapshotPath,
			PageSize:     cfg.ReviewsPageSize,
		}, fetcher, logger)
	}

	sessions, err := tracker.OpenPebbleStore(cfg.SessionDir)
	if err != nil {
		return nil, err
	}
	geo := tracker.NewGeoClient(client, cfg.GeoLookupURL, logger)
	visits := tracker.New(client, cfg.BackendBaseURL, geo, sessions, cfg.VisitDelay, logger)

	a := &Agent{
		cfg:       cfg,
		logger:    logger,
		board:     board,
		pollers:   pollers,
		scheduler: collector.NewScheduler(logger, loops...),
		sink:      sink,
		paginator: paginator,
		tracker:   visits,
		sessions:  sessions,
		health:    health,
		baseCtx:   context.Background(),
	}
	a.handler = a.routes()
	return a, nil
}

func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("starting sitepulse", "service", a.cfg.ServiceName, "version", a.cfg.AgentVersion, "targets", len(a.pollers), "stream_mode", a.cfg.StreamMode)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- a.run(runCtx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
		// Agent terminated by itself (startup error/runtime error/parent ctx canceled).
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received, starting graceful shutdown", "signal", sig.String(), "timeout", a.cfg.ShutdownTimeout)
		cancelRun()

		graceTimer := time.NewTimer(a.cfg.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
		case sig2 := <-sigCh:
			a.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			runErr = context.Canceled
		case <-graceTimer.C:
			a.logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", a.cfg.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancelShutdown()
	a.shutdown(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	a.logger.Info("sitepulse stopped")
	return nil
}

func BuildLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hOpts := &slog.HandlerOptions{Level: level}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, hOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, hOpts))
}
