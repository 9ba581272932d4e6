package fetch

import (
	"fmt"
	"path/filepath"
	"time"
)

// Job identifies one monthly archive to acquire.
type Job struct {
	Symbol    string
	Timeframe string
	Year      int
	Month     time.Month
}

// ArchiveName returns the upstream archive filename,
// e.g. BTCUSDT-1h-2024-03.zip. The name embeds the chronological sort key
// the conversion phase relies on: lexicographic order equals time order.
func (j Job) ArchiveName() string {
	return fmt.Sprintf("%s-%s-%d-%02d.zip", j.Symbol, j.Timeframe, j.Year, int(j.Month))
}

// URL returns the remote location under the Binance Vision path template.
func (j Job) URL(baseURL string) string {
	return fmt.Sprintf("%s/data/spot/monthly/klines/%s/%s/%s",
		baseURL, j.Symbol, j.Timeframe, j.ArchiveName())
}

// LocalPath returns the mirrored local destination under sourceDir.
func (j Job) LocalPath(sourceDir string) string {
	return filepath.Join(sourceDir, j.Timeframe, j.ArchiveName())
}

// PlanJobs expands the full year x month grid for one symbol/timeframe from
// January of startYear through the month before now. Months that do not exist
// upstream cost one cheap 404 each, which keeps the planner free of any
// listing call.
func PlanJobs(symbol, timeframe string, startYear int, now time.Time) []Job {
	now = now.UTC()
	var jobs []Job
	for year := startYear; year <= now.Year(); year++ {
		for month := time.January; month <= time.December; month++ {
			if year == now.Year() && month >= now.Month() {
				// the current month is still being written upstream
				break
			}
			jobs = append(jobs, Job{
				Symbol:    symbol,
				Timeframe: timeframe,
				Year:      year,
				Month:     month,
			})
		}
	}
	return jobs
}
