// Package poller resolves widget values through the live → snapshot → default
// fallback chain and publishes each resolved cycle to a sink.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sitepulse/internal/fetch"
	"sitepulse/internal/model"
)

// Source is where a poller reads raw documents from.
type Source interface {
	Live(ctx context.Context, url string) ([]byte, error)
	Snapshot(ctx context.Context, path string) ([]byte, error)
}

// Publisher receives every resolved cycle.
type Publisher interface {
	Publish(ctx context.Context, elementID string, r model.MetricResult) error
}

type Poller struct {
	target model.PollTarget
	source Source
	sink   Publisher
	logger *slog.Logger
	now    func() time.Time

	inFlight atomic.Bool

	mu    sync.RWMutex
	state model.PollState

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(target model.PollTarget, source Source, sink Publisher, logger *slog.Logger) (*Poller, error) {
	if target.ID == "" {
		return nil, errors.New("poll target id is required")
	}
	if target.Parse == nil {
		return nil, fmt.Errorf("poll target %s: parser is required", target.ID)
	}
	if target.Default == nil {
		return nil, fmt.Errorf("poll target %s: default value is required", target.ID)
	}
	if source == nil || sink == nil {
		return nil, fmt.Errorf("poll target %s: source and sink are required", target.ID)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		target: target,
		source: source,
		sink:   sink,
		logger: logger.With("target", target.ID),
		now:    time.Now,
	}, nil
}

func (p *Poller) Target() model.PollTarget {
	return p.target
}

// State returns a copy of the last completed cycle.
func (p *Poller) State() model.PollState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Poll resolves one value. It always returns a result from exactly one tier.
func (p *Poller) Poll(ctx context.Context) model.MetricResult {
	v, err := p.resolve(ctx, p.target.LiveURL, p.source.Live)
	if err == nil {
		return p.result(v, model.SourceLive)
	}
	p.logger.Warn("live fetch failed, trying snapshot", "kind", fetch.Kind(err), "error", err)

	v, err = p.resolve(ctx, p.target.SnapshotPath, p.source.Snapshot)
	if err == nil {
		return p.result(v, model.SourceSnapshot)
	}
	p.logger.Warn("snapshot fetch failed, using default", "kind", fetch.Kind(err), "error", err)

	return p.result(p.target.Default, model.SourceDefault)
}

// Tick runs one full cycle: poll, record state, publish. It returns false
// without doing anything when a previous cycle is still in flight.
func (p *Poller) Tick(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Debug("poll skipped, previous cycle still in flight")
		return false
	}
	defer p.inFlight.Store(false)

	attemptAt := p.now().UTC()
	r := p.Poll(ctx)

	p.mu.Lock()
	p.state = model.PollState{LastValue: r.Value, LastSource: r.Source, LastAttemptAt: attemptAt}
	p.mu.Unlock()

	if err := p.sink.Publish(ctx, p.target.ID, r); err != nil {
		p.logger.Warn("publish failed", "source", r.Source, "error", err)
	}
	return true
}

// Run ticks immediately and then every Interval until ctx is done. A zero
// interval ticks once.
func (p *Poller) Run(ctx context.Context) error {
	p.Tick(ctx)
	if p.target.Interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(p.target.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Start runs the poll loop in the background until Stop or ctx cancellation.
func (p *Poller) Start(ctx context.Context) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.cancel != nil {
		return fmt.Errorf("poller %s already started", p.target.ID)
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	go func() {
		defer close(done)
		_ = p.Run(runCtx)
	}()
	return nil
}

// Stop cancels the loop started by Start and waits for it to exit.
func (p *Poller) Stop() {
	p.lifeMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.lifeMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) resolve(ctx context.Context, location string, get func(context.Context, string) ([]byte, error)) (v any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			v, err = nil, &fetch.ParseError{URL: location, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	body, err := get(ctx, location)
	if err != nil {
		return nil, err
	}
	v, err = p.target.Parse(body)
	if err != nil {
		return nil, &fetch.ParseError{URL: location, Err: err}
	}
	if v == nil {
		return nil, &fetch.ParseError{URL: location, Err: errors.New("empty value")}
	}
	return v, nil
}

func (p *Poller) result(v any, src model.Source) model.MetricResult {
	return model.MetricResult{Value: v, Source: src, ResolvedAt: p.now().UTC()}
}
