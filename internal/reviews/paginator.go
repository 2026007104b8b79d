// Package reviews keeps the paginated reviews feed.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"sitepulse/internal/fetch"
	"sitepulse/internal/model"
	"sitepulse/internal/poller"
)

var ErrNoMore = errors.New("no more reviews")

const defaultPageSize = 6

type Config struct {
	LiveURL      string
	SnapshotPath string
	PageSize     int
}

// Paginator owns the feed cursor: offset, hasMore and the lastUpdate marker
// used to detect that the backend feed changed underneath us.
type Paginator struct {
	cfg    Config
	source poller.Source
	logger *slog.Logger
	now    func() time.Time

	opMu sync.Mutex

	mu         sync.RWMutex
	loaded     bool
	offset     int
	hasMore    bool
	lastUpdate time.Time
	reviews    []model.Review
	feedSource model.Source
}

func NewPaginator(cfg Config, source poller.Source, logger *slog.Logger) *Paginator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Paginator{cfg: cfg, source: source, logger: logger.With("component", "reviews"), now: time.Now}
}

// Refresh loads the first page, falling back to the snapshot. The feed is
// reset only when the backend reports a different lastUpdate.
func (p *Paginator) Refresh(ctx context.Context) (model.Source, error) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	src := model.SourceLive
	page, err := p.fetchPage(ctx, 0)
	if err != nil {
		p.logger.Warn("reviews refresh failed, trying snapshot", "kind", fetch.Kind(err), "error", err)
		page, err = p.snapshotPage(ctx)
		if err != nil {
			return "", fmt.Errorf("refresh reviews: %w", err)
		}
		src = model.SourceSnapshot
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded && !page.LastUpdate.IsZero() && page.LastUpdate.Equal(p.lastUpdate) && p.feedSource == src {
		return src, nil
	}
	p.loaded = true
	p.reviews = append([]model.Review(nil), page.Reviews...)
	p.offset = len(page.Reviews)
	p.hasMore = page.HasMore && src == model.SourceLive
	p.lastUpdate = page.LastUpdate
	p.feedSource = src
	return src, nil
}

// LoadMore appends the next live page. A failed fetch leaves the cursor unchanged.
func (p *Paginator) LoadMore(ctx context.Context) ([]model.Review, error) {
	p.mu.RLock()
	loaded := p.loaded
	p.mu.RUnlock()
	if !loaded {
		if _, err := p.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.RLock()
	offset, hasMore := p.offset, p.hasMore
	p.mu.RUnlock()
	if !hasMore {
		return nil, ErrNoMore
	}

	page, err := p.fetchPage(ctx, offset)
	if err != nil {
		return nil, fmt.Errorf("load reviews at offset %d: %w", offset, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.reviews = append(p.reviews, page.Reviews...)
	p.offset += len(page.Reviews)
	p.hasMore = page.HasMore && len(page.Reviews) > 0
	if !page.LastUpdate.IsZero() {
		p.lastUpdate = page.LastUpdate
	}
	return page.Reviews, nil
}

// Feed returns rendered cards for everything loaded so far.
func (p *Paginator) Feed() []Card {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Cards(p.reviews, p.now())
}

func (p *Paginator) HasMore() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hasMore
}

func (p *Paginator) Offset() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.offset
}

func (p *Paginator) fetchPage(ctx context.Context, offset int) (model.ReviewPage, error) {
	u, err := url.Parse(p.cfg.LiveURL)
	if err != nil {
		return model.ReviewPage{}, &fetch.NetworkError{URL: p.cfg.LiveURL, Err: err}
	}
	q := u.Query()
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(p.cfg.PageSize))
	u.RawQuery = q.Encode()

	body, err := p.source.Live(ctx, u.String())
	if err != nil {
		return model.ReviewPage{}, err
	}
	return decodePage(u.String(), body)
}

func (p *Paginator) snapshotPage(ctx context.Context) (model.ReviewPage, error) {
	body, err := p.source.Snapshot(ctx, p.cfg.SnapshotPath)
	if err != nil {
		return model.ReviewPage{}, err
	}
	return decodePage(p.cfg.SnapshotPath, body)
}

func decodePage(location string, body []byte) (model.ReviewPage, error) {
	v, err := poller.ParseReviews(body)
	if err != nil {
		return model.ReviewPage{}, &fetch.ParseError{URL: location, Err: err}
	}
	return v.(model.ReviewPage), nil
}
