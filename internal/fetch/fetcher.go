// Package fetch is the engine's network collaborator. Retry policy lives
// here, not in the segment pipeline: the pipeline sees one Fetch call per
// resource and decides only whether to skip or abort on failure.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"hlsplayd/internal/logger"
	"hlsplayd/internal/model"
)

// Fetcher retrieves an addressable resource as raw bytes. Implementations
// must honor ctx: a cancelled fetch returns an error satisfying
// errors.Is(err, context.Canceled) so callers can tell "stop" from
// "failed".
type Fetcher interface {
	Fetch(ctx context.Context, res model.Addressable) ([]byte, error)
}

// HTTPFetcher fetches over HTTP with byte-range support, a per-attempt
// timeout, and transient-failure retries.
type HTTPFetcher struct {
	httpClient     *http.Client
	logger         logger.Logger
	userAgent      string
	maxRetries     int
	attemptTimeout time.Duration
	retryDelay     time.Duration
}

// NewHTTPFetcher creates a fetcher with the stock retry policy. A nil
// client gets a default with a response-header timeout.
func NewHTTPFetcher(client *http.Client, log logger.Logger, userAgent string) *HTTPFetcher {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 3 * time.Second,
			},
		}
	}
	return &HTTPFetcher{
		httpClient:     client,
		logger:         log,
		userAgent:      userAgent,
		maxRetries:     3,
		attemptTimeout: 5 * time.Second,
		retryDelay:     100 * time.Millisecond,
	}
}

// Fetch retrieves the resource, retrying transient failures. Context
// cancellation is checked between attempts and propagated from within one,
// so a cancelled parent context always surfaces as ctx.Err().
func (f *HTTPFetcher) Fetch(ctx context.Context, res model.Addressable) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := f.fetchOnce(ctx, res, attempt)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		f.logger.Warnf("fetch attempt %d/%d for %s failed: %v", attempt, f.maxRetries, res.URL, err)
		select {
		case <-time.After(f.retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("fetch of %s failed after %d attempts: %w", res.URL, f.maxRetries, lastErr)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, res model.Addressable, attempt int) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, res.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if res.ByteRange != nil {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", res.ByteRange.Start, res.ByteRange.End))
	}

	f.logger.Debugf("fetching %s (attempt %d)", res.URL, attempt)
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}
