package collector

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"sitepulse/internal/model"
)

// Loop is one independently scheduled widget poller.
type Loop interface {
	Run(ctx context.Context) error
	Target() model.PollTarget
}

type Scheduler struct {
	logger *slog.Logger
	loops  []Loop
}

func NewScheduler(logger *slog.Logger, loops ...Loop) *Scheduler {
	return &Scheduler{logger: logger, loops: loops}
}

// Run drives every loop until ctx is cancelled. Targets share no state, so a
// slow target never delays another.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range s.loops {
		l := l
		t := l.Target()
		s.logger.Info("scheduling widget poller", "target", t.ID, "kind", t.Kind, "interval", t.Interval)
		g.Go(func() error {
			return l.Run(gctx)
		})
	}
	return g.Wait()
}

func (s *Scheduler) Len() int {
	return len(s.loops)
}
