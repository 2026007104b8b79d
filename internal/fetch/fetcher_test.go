package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLiveDisablesCaching(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cache-Control") != "no-cache" || r.Header.Get("Pragma") != "no-cache" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"count":7}`))
	}))
	t.Cleanup(server.Close)

	body, err := NewFetcher(server.Client(), "").Live(testContext(t), server.URL)
	if err != nil {
		t.Fatalf("live: %v", err)
	}
	if string(body) != `{"count":7}` {
		t.Fatalf("unexpected body %q", string(body))
	}
}

func TestLiveNon2xxIsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	_, err := NewFetcher(server.Client(), "").Live(testContext(t), server.URL)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", httpErr.StatusCode)
	}
	if Kind(err) != "http" {
		t.Fatalf("expected http kind, got %q", Kind(err))
	}
}

func TestLiveUnreachableIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewFetcher(&http.Client{Timeout: time.Second}, "").Live(testContext(t), url)
	if Kind(err) != "network" {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestSnapshotReadsFromDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data", "members.json"), []byte(`{"count":4}`), 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	f := NewFetcher(nil, dir)
	body, err := f.Snapshot(testContext(t), "data/members.json")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if string(body) != `{"count":4}` {
		t.Fatalf("unexpected body %q", string(body))
	}

	if _, err := f.Snapshot(testContext(t), "../../etc/passwd"); err == nil {
		t.Fatalf("expected path outside snapshot dir to miss")
	}
}

func TestSnapshotAbsolutePathStaysInDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "members.json"), []byte(`{"count":4}`), 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	outside := filepath.Join(t.TempDir(), "secret.json")
	if err := os.WriteFile(outside, []byte(`{"count":1}`), 0o644); err != nil {
		t.Fatalf("write outside file: %v", err)
	}

	f := NewFetcher(nil, dir)
	body, err := f.Snapshot(testContext(t), "/members.json")
	if err != nil {
		t.Fatalf("absolute snapshot path: %v", err)
	}
	if string(body) != `{"count":4}` {
		t.Fatalf("unexpected body %q", string(body))
	}
	if _, err := f.Snapshot(testContext(t), outside); err == nil {
		t.Fatalf("expected absolute path outside snapshot dir to miss")
	}
}

func TestSnapshotOverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":9}`))
	}))
	t.Cleanup(server.Close)

	body, err := NewFetcher(server.Client(), "").Snapshot(testContext(t), server.URL+"/snapshot.json")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if string(body) != `{"count":9}` {
		t.Fatalf("unexpected body %q", string(body))
	}
}

func TestSnapshotMissingPath(t *testing.T) {
	if _, err := NewFetcher(nil, "").Snapshot(testContext(t), ""); err == nil {
		t.Fatalf("expected error for empty snapshot path")
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
