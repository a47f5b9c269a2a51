// Package fetch implements upstream retrieval over HTTP.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/svitlobot/svitlo/core/logger"
)

// defaultTimeout bounds every upstream request; the poll loop itself sets
// no other deadline.
const defaultTimeout = 10 * time.Second

// maxBodyBytes caps how much of an upstream document is read.
const maxBodyBytes = 8 << 20

// HTTPFetcher retrieves source documents over plain HTTP GET.
type HTTPFetcher struct {
	client *http.Client
	log    logger.Logger
}

// NewHTTPFetcher builds a fetcher with the standard request timeout.
func NewHTTPFetcher(log logger.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: defaultTimeout},
		log:    log,
	}
}

// Fetch implements fetch.Fetcher. A 404 is treated as "nothing published
// right now" and returns nil bytes without error; other non-2xx statuses
// are fetch errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	// Some upstreams refuse non-browser clients.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		f.log.Debugf("fetch %s: 404, nothing published", url)
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", url, err)
	}
	return body, nil
}
