// Package tracker posts one anonymous visit per browser session.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"sitepulse/internal/model"
)

type Tracker struct {
	client  *http.Client
	baseURL string
	geo     *GeoClient
	store   SessionStore
	delay   time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	marked   map[string]struct{} // flags the store failed to persist
	pending  sync.WaitGroup
}

func New(client *http.Client, baseURL string, geo *GeoClient, store SessionStore, delay time.Duration, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		client:   client,
		baseURL:  baseURL,
		geo:      geo,
		store:    store,
		delay:    delay,
		logger:   logger.With("component", "visit-tracker"),
		inFlight: make(map[string]struct{}),
		marked:   make(map[string]struct{}),
	}
}

// Track posts v once for sessionID. It reports whether this call produced the
// acknowledged post; every failure is swallowed.
func (t *Tracker) Track(ctx context.Context, sessionID string, v model.Visit) bool {
	if sessionID == "" {
		return false
	}
	if t.tracked(ctx, sessionID) {
		return false
	}
	if !t.claim(sessionID) {
		return false
	}
	defer t.release(sessionID)

	// A concurrent attempt may have finished between the first check and the claim.
	if t.tracked(ctx, sessionID) {
		return false
	}

	geo := t.geo.Lookup(ctx, v.ClientIP)
	v = v.Normalize()
	v.Location = &geo
	if err := t.post(ctx, v); err != nil {
		t.logger.Debug("visit post failed", "error", err)
		return false
	}
	if err := t.store.MarkTracked(ctx, sessionID); err != nil {
		t.logger.Warn("session flag write failed, keeping it in memory", "error", err)
		t.mu.Lock()
		t.marked[sessionID] = struct{}{}
		t.mu.Unlock()
	}
	return true
}

// tracked reports whether sessionID already posted. A store read error counts
// as tracked so an unreadable flag never produces a duplicate post.
func (t *Tracker) tracked(ctx context.Context, sessionID string) bool {
	t.mu.Lock()
	_, ok := t.marked[sessionID]
	t.mu.Unlock()
	if ok {
		return true
	}
	done, err := t.store.Tracked(ctx, sessionID)
	if err != nil {
		t.logger.Debug("session flag read failed", "error", err)
		return true
	}
	return done
}

// Schedule runs Track after the configured delay without blocking the caller.
func (t *Tracker) Schedule(ctx context.Context, sessionID string, v model.Visit) {
	t.pending.Add(1)
	go func() {
		defer t.pending.Done()
		if t.delay > 0 {
			timer := time.NewTimer(t.delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
		t.Track(ctx, sessionID, v)
	}()
}

// Wait blocks until every scheduled attempt has finished.
func (t *Tracker) Wait() {
	t.pending.Wait()
}

func (t *Tracker) claim(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.inFlight[sessionID]; busy {
		return false
	}
	t.inFlight[sessionID] = struct{}{}
	return true
}

func (t *Tracker) release(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inFlight, sessionID)
}

func (t *Tracker) post(ctx context.Context, v model.Visit) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode visit: %w", err)
	}
	url := t.baseURL + "/api/visit"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post %s: unexpected status %d", url, resp.StatusCode)
	}
	return nil
}
