// Package report collects per-unit run outcomes and renders the final
// summary. A unit is one (symbol, timeframe) series; partial success (some
// units failing while others convert cleanly) is first-class here, so the
// CLI can derive its exit policy instead of collapsing a run into a single
// boolean.
package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/quantmill/go-kline-ingest/internal/series"
)

// ReportFileName is the run report written next to the outputs.
const ReportFileName = ".lastrun.json"

// UnitStatus is the outcome of one series conversion.
type UnitStatus string

const (
	UnitOK      UnitStatus = "ok"
	UnitFailed  UnitStatus = "failed"
	UnitSkipped UnitStatus = "skipped" // nothing to convert (no archives)
)

// UnitReport records one (symbol, timeframe) unit's outcome.
type UnitReport struct {
	Symbol      string       `json:"symbol"`
	Timeframe   string       `json:"timeframe"`
	Mode        string       `json:"mode,omitempty"`
	Status      UnitStatus   `json:"status"`
	Error       string       `json:"error,omitempty"`
	Stats       series.Stats `json:"stats"`
	OutputFile  string       `json:"output_file,omitempty"`
	OutputBytes int64        `json:"output_bytes,omitempty"`
	Duration    string       `json:"duration,omitempty"`
}

// RunReport aggregates one full pipeline run.
type RunReport struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Units      []UnitReport `json:"units"`
}

// NewRunReport starts a report with a fresh run id.
func NewRunReport() *RunReport {
	return &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
}

// Add appends a unit outcome.
func (r *RunReport) Add(unit UnitReport) {
	r.Units = append(r.Units, unit)
}

// Failed returns the number of failed units.
func (r *RunReport) Failed() int {
	n := 0
	for _, u := range r.Units {
		if u.Status == UnitFailed {
			n++
		}
	}
	return n
}

// Write persists the report as JSON in dir so a caller can decide which
// units to re-run.
func (r *RunReport) Write(dir string) error {
	r.FinishedAt = time.Now().UTC()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}
	path := filepath.Join(dir, ReportFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run report: %w", err)
	}
	return nil
}

// LogSummary emits one line per unit plus totals.
func (r *RunReport) LogSummary(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	var totalRecords, totalBytes int64
	ok, failed, skipped := 0, 0, 0

	for _, u := range r.Units {
		switch u.Status {
		case UnitOK:
			ok++
			totalRecords += u.Stats.RecordsWritten
			totalBytes += u.OutputBytes
			logger.Info("unit summary",
				"timeframe", u.Timeframe,
				"status", u.Status,
				"candles", humanize.Comma(u.Stats.RecordsWritten),
				"duplicates", u.Stats.DuplicatesDropped,
				"rejected", u.Stats.RowsRejected,
				"archives", u.Stats.ArchivesProcessed,
				"archives_skipped", u.Stats.ArchivesSkipped,
				"size", humanize.Bytes(uint64(u.OutputBytes)))
		case UnitFailed:
			failed++
			logger.Error("unit summary",
				"timeframe", u.Timeframe,
				"status", u.Status,
				"error", u.Error)
		case UnitSkipped:
			skipped++
			logger.Warn("unit summary",
				"timeframe", u.Timeframe,
				"status", u.Status,
				"error", u.Error)
		}
	}

	logger.Info("run summary",
		"run_id", r.RunID,
		"units_ok", ok,
		"units_failed", failed,
		"units_skipped", skipped,
		"total_candles", humanize.Comma(totalRecords),
		"total_size", humanize.Bytes(uint64(totalBytes)),
		"elapsed", r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
}
