package stream

import (
	"context"
	"log/slog"

	"sitepulse/internal/model"
)

// Display is the local consumer every cycle lands in first.
type Display interface {
	Publish(ctx context.Context, elementID string, r model.MetricResult) error
}

// Fanout writes each cycle to the display and then forwards it to the remote
// sink. Remote failures are reported through onRemote and never returned.
type Fanout struct {
	display  Display
	remote   Sink
	logger   *slog.Logger
	onRemote func(elementID string, r model.MetricResult, err error)
}

func NewFanout(display Display, remote Sink, logger *slog.Logger, onRemote func(string, model.MetricResult, error)) *Fanout {
	if remote == nil {
		remote = NopSink{}
	}
	return &Fanout{display: display, remote: remote, logger: logger, onRemote: onRemote}
}

func (f *Fanout) Publish(ctx context.Context, elementID string, r model.MetricResult) error {
	if err := f.display.Publish(ctx, elementID, r); err != nil {
		return err
	}
	err := f.remote.Publish(ctx, elementID, r)
	if err != nil {
		f.logger.Warn("remote widget publish failed", "target", elementID, "error", err)
	}
	if f.onRemote != nil {
		f.onRemote(elementID, r, err)
	}
	return nil
}

func (f *Fanout) Close(ctx context.Context) error {
	return f.remote.Close(ctx)
}
