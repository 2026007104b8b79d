package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const maxBodyBytes = 4 << 20

// Fetcher reads JSON documents from live endpoints and snapshot files.
type Fetcher struct {
	client      *http.Client
	snapshotDir string
}

func NewFetcher(client *http.Client, snapshotDir string) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, snapshotDir: snapshotDir}
}

// Live performs an uncached GET and returns the body of a 2xx response.
func (f *Fetcher) Live(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// Snapshot loads a fallback document. http(s) paths go through Live, anything
// else is read from inside the snapshot directory.
func (f *Fetcher) Snapshot(ctx context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, &NetworkError{URL: path, Err: errors.New("no snapshot configured")}
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return f.Live(ctx, path)
	}
	if err := ctx.Err(); err != nil {
		return nil, &NetworkError{URL: path, Err: err}
	}
	root := f.snapshotDir
	if root == "" {
		root = "."
	}
	// Absolute and dot-dot paths both resolve inside root.
	full := filepath.Join(root, filepath.Clean("/"+path))
	body, err := os.ReadFile(full)
	if err != nil {
		return nil, &NetworkError{URL: full, Err: err}
	}
	return body, nil
}
