package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

func (a *Agent) run(ctx context.Context) error {
	a.baseCtx = ctx

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		return a.runHealthLoop(gctx)
	})
	g.Go(func() error {
		return a.runProbeListener(gctx)
	})
	g.Go(func() error {
		return a.runHTTPServer(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *Agent) runHealthLoop(ctx context.Context) error {
	t := time.NewTicker(a.cfg.HealthInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			now := time.Now().UTC()
			for _, p := range a.pollers {
				target := p.Target()
				st := p.State()
				if target.Interval > 0 && st.Resolved() && now.Sub(st.LastAttemptAt) > 3*target.Interval {
					a.logger.Warn("widget poller is stale", "target", target.ID, "last_attempt_at", st.LastAttemptAt)
				}
			}
			a.logger.Log(ctx, slog.LevelDebug, "agent health", "snapshot", a.health.Snapshot())
		}
	}
}

func (a *Agent) shutdown(ctx context.Context) {
	if err := a.sink.Close(ctx); err != nil {
		a.logger.Warn("stream sink close failed", "error", err)
	}
	a.health.SetStreamConnected(false)

	waited := make(chan struct{})
	go func() {
		a.tracker.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		a.logger.Warn("pending visit posts abandoned at shutdown")
	}
	if err := a.sessions.Close(); err != nil {
		a.logger.Warn("session store close failed", "error", err)
	}
}
