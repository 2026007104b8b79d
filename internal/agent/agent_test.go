package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"sitepulse/internal/config"
	"sitepulse/internal/display"
)

type fakeBackend struct {
	visits      atomic.Int32
	reviewsDown atomic.Bool
	geoPaths    chan string
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	b := &fakeBackend{geoPaths: make(chan string, 8)}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/members", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":1234}`))
	})
	mux.HandleFunc("/api/configs-count", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/live-status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"emoji":"🟡","color":"Yellow","text":"Degraded"}`))
	})
	mux.HandleFunc("/api/reviews", func(w http.ResponseWriter, r *http.Request) {
		if b.reviewsDown.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		const total = 3
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit == 0 {
			limit = total
		}
		var items []string
		for i := offset; i < total && i < offset+limit; i++ {
			items = append(items, fmt.Sprintf(`{"author":{"username":"user%d"},"content":"nice","rating":4,"timestamp":"2026-10-01T00:00:00Z"}`, i))
		}
		hasMore := offset+len(items) < total
		_, _ = fmt.Fprintf(w, `{"reviews":[%s],"hasMore":%t,"lastUpdate":"2026-10-01T00:00:00Z"}`, strings.Join(items, ","), hasMore)
	})
	mux.HandleFunc("/geo/", func(w http.ResponseWriter, r *http.Request) {
		b.geoPaths <- r.URL.Path
		_, _ = w.Write([]byte(`{"country_name":"Slovenia","country_code":"SI","ip":"192.0.2.1"}`))
	})
	mux.HandleFunc("/api/visit", func(w http.ResponseWriter, r *http.Request) {
		b.visits.Add(1)
		w.WriteHeader(http.StatusCreated)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return b, server
}

func newTestAgent(t *testing.T, backendURL string) *Agent {
	t.Helper()
	cfg := config.Config{
		ServiceName:     "sitepulse",
		ListenAddr:      "127.0.0.1:0",
		ProbeListenAddr: "127.0.0.1:0",
		BackendBaseURL:  backendURL,
		SnapshotDir:     t.TempDir(),
		PollInterval:    time.Hour,
		RequestTimeout:  5 * time.Second,
		HealthInterval:  time.Hour,
		ShutdownTimeout: 5 * time.Second,
		StreamMode:      config.StreamModeNone,
		SessionCookie:   "sitepulse_session",
		GeoLookupURL:    backendURL + "/geo/{ip}/json/",
		ReviewsPageSize: 2,
		Targets:         config.DefaultTargets(backendURL, time.Hour),
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate config: %v", err)
	}
	a, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	t.Cleanup(func() { _ = a.sessions.Close() })
	return a
}

func serve(a *Agent, method, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(`{"page":"/en/reviews.html?x=1","referrer":""}`))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func TestWidgetsReflectPollCycles(t *testing.T) {
	_, server := newFakeBackend(t)
	a := newTestAgent(t, server.URL)

	rec := serve(a, http.MethodGet, "/api/widgets/member-count")
	var el display.Element
	_ = json.Unmarshal(rec.Body.Bytes(), &el)
	if !el.Loading {
		t.Fatalf("expected loading element before the first cycle, got %+v", el)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, p := range a.pollers {
		if !p.Tick(ctx) {
			t.Fatalf("tick %s skipped", p.Target().ID)
		}
	}

	rec = serve(a, http.MethodGet, "/api/widgets")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var els []display.Element
	if err := json.Unmarshal(rec.Body.Bytes(), &els); err != nil {
		t.Fatalf("decode widgets: %v", err)
	}
	byID := make(map[string]display.Element, len(els))
	for _, el := range els {
		byID[el.ID] = el
	}
	if got := byID["member-count"]; got.Text != "1,234" || got.Source != "live" {
		t.Fatalf("unexpected member-count %+v", got)
	}
	if got := byID["config-count"]; got.Text != "4" || got.Source != "default" {
		t.Fatalf("unexpected config-count %+v", got)
	}
	if got := byID["live-status"]; got.Text != "🟡 Degraded" || got.Class != "yellow" {
		t.Fatalf("unexpected live-status %+v", got)
	}
	if got := byID["reviews-grid"]; got.Text != "3 reviews" {
		t.Fatalf("unexpected reviews-grid %+v", got)
	}

	if rec := serve(a, http.MethodGet, "/api/widgets/captcha"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown widget, got %d", rec.Code)
	}

	rec = serve(a, http.MethodGet, "/healthz")
	var health struct {
		Targets map[string]struct {
			Source string `json:"source"`
		} `json:"targets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Targets["config-count"].Source != "default" || len(health.Targets) != 4 {
		t.Fatalf("unexpected health targets %+v", health.Targets)
	}
}

func TestVisitPostsOncePerSessionCookie(t *testing.T) {
	backend, server := newFakeBackend(t)
	a := newTestAgent(t, server.URL)

	first := serve(a, http.MethodPost, "/api/visit")
	if first.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", first.Code)
	}
	cookies := first.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "sitepulse_session" || cookies[0].Value == "" {
		t.Fatalf("expected session cookie, got %+v", cookies)
	}
	a.tracker.Wait()

	second := serve(a, http.MethodPost, "/api/visit", cookies[0])
	if second.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", second.Code)
	}
	if len(second.Result().Cookies()) != 0 {
		t.Fatalf("existing session must not be reissued")
	}
	a.tracker.Wait()

	if got := backend.visits.Load(); got != 1 {
		t.Fatalf("expected one visit post per session, got %d", got)
	}
	// httptest requests come from 192.0.2.1.
	if got := <-backend.geoPaths; got != "/geo/192.0.2.1/json/" {
		t.Fatalf("expected geo lookup for the visitor address, got %q", got)
	}
}

func TestReviewsPagination(t *testing.T) {
	_, server := newFakeBackend(t)
	a := newTestAgent(t, server.URL)

	rec := serve(a, http.MethodGet, "/api/reviews")
	var feed feedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &feed); err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	if len(feed.Reviews) != 2 || !feed.HasMore {
		t.Fatalf("expected first page of 2 with more, got %d %v", len(feed.Reviews), feed.HasMore)
	}

	rec = serve(a, http.MethodPost, "/api/reviews/more")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &feed)
	if len(feed.Reviews) != 3 || feed.HasMore {
		t.Fatalf("expected full feed of 3, got %d %v", len(feed.Reviews), feed.HasMore)
	}

	if rec := serve(a, http.MethodPost, "/api/reviews/more"); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 once exhausted, got %d", rec.Code)
	}
}

func TestReviewsFeedLeavesSnapshotAfterRecovery(t *testing.T) {
	backend, server := newFakeBackend(t)
	a := newTestAgent(t, server.URL)
	snapshot := `{"reviews":[{"author":{"username":"snap"},"content":"old","rating":3,"timestamp":"2026-09-01T00:00:00Z"}],"hasMore":false,"lastUpdate":"2026-09-01T00:00:00Z"}`
	if err := os.WriteFile(filepath.Join(a.cfg.SnapshotDir, "reviews.json"), []byte(snapshot), 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	backend.reviewsDown.Store(true)
	var feed feedResponse
	rec := serve(a, http.MethodGet, "/api/reviews")
	if err := json.Unmarshal(rec.Body.Bytes(), &feed); err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	if len(feed.Reviews) != 1 || feed.Reviews[0].Username != "snap" || feed.HasMore {
		t.Fatalf("expected snapshot feed during outage, got %+v", feed)
	}

	backend.reviewsDown.Store(false)
	rec = serve(a, http.MethodGet, "/api/reviews")
	if err := json.Unmarshal(rec.Body.Bytes(), &feed); err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	if len(feed.Reviews) != 2 || feed.Reviews[0].Username != "user0" || !feed.HasMore {
		t.Fatalf("expected live feed after recovery, got %+v", feed)
	}
}

func TestVersionRoute(t *testing.T) {
	_, server := newFakeBackend(t)
	a := newTestAgent(t, server.URL)

	rec := serve(a, http.MethodGet, "/version")
	var info struct {
		Service string `json:"service"`
		Targets int    `json:"targets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if info.Service != "sitepulse" || info.Targets != 4 {
		t.Fatalf("unexpected version info %+v", info)
	}
}

func TestPageName(t *testing.T) {
	cases := map[string]string{
		"":                      "",
		"/":                     "",
		"/en/reviews.html?x=1":  "reviews.html",
		"members.html#top":      "members.html",
		"/docs/getting-started": "getting-started",
	}
	for in, want := range cases {
		if got := pageName(in); got != want {
			t.Fatalf("pageName(%q): expected %q, got %q", in, want, got)
		}
	}
}
