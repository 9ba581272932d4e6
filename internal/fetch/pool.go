package fetch

import (
	"context"
	"log/slog"
	"sync"
)

// Result pairs a job with its fetch outcome, for fan-in collection.
type Result struct {
	Job    Job
	Status Status
	Err    error
}

// Summary aggregates fetch outcomes for one timeframe.
type Summary struct {
	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"` // already present locally
	NotFound   int `json:"not_found"`
	Failed     int `json:"failed"`
}

// Total returns the number of jobs the summary covers.
func (s Summary) Total() int {
	return s.Downloaded + s.Skipped + s.NotFound + s.Failed
}

// RunPool fetches all jobs using a bounded pool of workers. Each fetch is
// independent (distinct destination paths never collide), so the only shared
// state is the fetcher's rate limiter. A failed job never aborts its
// siblings. Cancellation drains the pending queue; in-flight fetches clean up
// their partial files via the fetcher.
func RunPool(ctx context.Context, fetcher *Fetcher, jobs []Job, workers int, baseURL, sourceDir string, logger *slog.Logger) Summary {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(jobs) && len(jobs) > 0 {
		workers = len(jobs)
	}

	pending := make(chan Job, len(jobs))
	for _, j := range jobs {
		pending <- j
	}
	close(pending)

	results := make(chan Result, len(jobs))

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for job := range pending {
				if ctx.Err() != nil {
					return
				}
				status, err := fetcher.Fetch(ctx, job.URL(baseURL), job.LocalPath(sourceDir))
				results <- Result{Job: job, Status: status, Err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var summary Summary
	for r := range results {
		switch r.Status {
		case StatusDownloaded:
			summary.Downloaded++
			logger.Info("archive downloaded", "archive", r.Job.ArchiveName())
		case StatusAlreadyPresent:
			summary.Skipped++
			logger.Debug("archive already present", "archive", r.Job.ArchiveName())
		case StatusNotFound:
			summary.NotFound++
			logger.Debug("archive not published upstream", "archive", r.Job.ArchiveName())
		case StatusFailed:
			summary.Failed++
			logger.Error("archive fetch failed", "archive", r.Job.ArchiveName(), "error", r.Err)
		}
	}
	return summary
}
