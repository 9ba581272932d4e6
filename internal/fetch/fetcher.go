// Package fetch acquires monthly kline archives over HTTP into local storage.
// Fetches are idempotent (an existing local file is never re-downloaded),
// retried with exponential backoff on transient failures, and rate limited.
// A 404 is an expected outcome, since many month/timeframe combinations simply
// do not exist upstream, and is reported distinctly from failure.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/quantmill/go-kline-ingest/internal/errors"
)

const (
	requestTimeout = 10 * time.Minute // archives can be multi-GB on 1s data
	copyBufSize    = 64 * 1024

	rateLimitBurst = 1
)

// Status is the outcome of one fetch operation.
type Status int

const (
	// StatusDownloaded means the archive was fetched and stored.
	StatusDownloaded Status = iota
	// StatusAlreadyPresent means the local file existed; no network access.
	StatusAlreadyPresent
	// StatusNotFound means the upstream returned 404. Benign.
	StatusNotFound
	// StatusFailed means the retry budget was exhausted or a permanent
	// error occurred. No partial file is left behind.
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusDownloaded:
		return "downloaded"
	case StatusAlreadyPresent:
		return "already_present"
	case StatusNotFound:
		return "not_found"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Fetcher downloads remote archives with retry and rate limiting. It is safe
// for concurrent use; calls for distinct destination paths never collide.
type Fetcher struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	policy      apperrors.RetryPolicy
	logger      *slog.Logger
}

// NewFetcher creates a fetcher with the given retry budget, initial backoff
// delay, and request rate (requests per second across all workers).
func NewFetcher(retryBudget int, retryDelay time.Duration, requestsPerSecond float64, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		rateLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), rateLimitBurst),
		policy: apperrors.RetryPolicy{
			MaxAttempts:  retryBudget,
			InitialDelay: retryDelay,
			MaxDelay:     30 * time.Second,
		},
		logger: logger,
	}
}

// Fetch downloads url into localPath. If localPath already exists the fetch
// is skipped entirely. The body is streamed to a temp file and renamed into
// place on success, so readers never observe a partial archive; on any
// failure or cancellation the temp file is removed.
func (f *Fetcher) Fetch(ctx context.Context, url, localPath string) (Status, error) {
	if _, err := os.Stat(localPath); err == nil {
		return StatusAlreadyPresent, nil
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return StatusFailed, fmt.Errorf("failed to create archive directory: %w", err)
	}

	err := apperrors.Retry(ctx, f.logger, f.policy, "fetch", url, func() error {
		return f.fetchOnce(ctx, url, localPath)
	})
	if err != nil {
		if apperrors.IsNotFound(err) {
			return StatusNotFound, nil
		}
		return StatusFailed, err
	}
	return StatusDownloaded, nil
}

// fetchOnce performs a single download attempt.
func (f *Fetcher) fetchOnce(ctx context.Context, url, localPath string) error {
	if err := f.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperrors.Classify(fmt.Errorf("failed to create request: %w", err), "fetch", url)
	}
	req.Header.Set("User-Agent", "go-kline-ingest/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err) // transport errors are transient
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// proceed to copy
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("server error %d fetching %s", resp.StatusCode, url)
	default:
		return &apperrors.ClassifiedError{
			Err:       fmt.Errorf("unexpected status %d", resp.StatusCode),
			Type:      apperrors.TypePermanent,
			Component: "fetch",
			Operation: url,
		}
	}

	return f.copyToFile(resp.Body, localPath)
}

// copyToFile streams the response body into localPath via a .part temp file.
// The copy is incremental and bounded-memory regardless of archive size.
func (f *Fetcher) copyToFile(body io.Reader, localPath string) error {
	partPath := localPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return &apperrors.ClassifiedError{
			Err:       fmt.Errorf("failed to create %s: %w", partPath, err),
			Type:      apperrors.TypePermanent,
			Component: "fetch",
			Operation: localPath,
		}
	}

	buf := make([]byte, copyBufSize)
	_, copyErr := io.CopyBuffer(out, body, buf)
	closeErr := out.Close()

	if copyErr != nil || closeErr != nil {
		os.Remove(partPath)
		if copyErr != nil {
			return fmt.Errorf("download interrupted: %w", copyErr)
		}
		return fmt.Errorf("failed to close %s: %w", partPath, closeErr)
	}

	if err := os.Rename(partPath, localPath); err != nil {
		os.Remove(partPath)
		return fmt.Errorf("failed to finalize %s: %w", localPath, err)
	}
	return nil
}
