// Package series merges canonicalized records from many monthly archives
// into one ordered, deduplicated output series.
//
// Two operating modes trade memory for ordering flexibility. Bulk mode loads
// every record, sorts by integer timestamp, and removes duplicates in one
// linear pass; archives may be visited in any order. Streaming mode holds
// only the last emitted timestamp and therefore requires archives (and the
// rows inside them) to arrive in non-decreasing timestamp order, a
// precondition taken from the archive naming convention, not re-derived from
// the data. If that precondition is violated, streaming mode neither detects
// nor corrects the inversion; the output simply preserves encounter order.
//
// Records sharing a timestamp are treated as true duplicates: the first
// occurrence wins and the rest are counted and dropped, without comparing
// value fields. If upstream ever republished corrected OHLCV values for an
// existing timestamp, whichever copy is seen first would be kept.
package series

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/quantmill/go-kline-ingest/internal/archive"
	"github.com/quantmill/go-kline-ingest/internal/canonical"
	"github.com/quantmill/go-kline-ingest/internal/models"
)

// Stats reports what one conversion run saw and produced.
type Stats struct {
	RecordsSeen       int64 `json:"records_seen"`
	RecordsWritten    int64 `json:"records_written"`
	DuplicatesDropped int64 `json:"duplicates_dropped"`
	RowsRejected      int64 `json:"rows_rejected"`
	ArchivesProcessed int   `json:"archives_processed"`
	ArchivesSkipped   int   `json:"archives_skipped"`
}

// Pipeline runs the decode → canonicalize → order/dedup → write chain for one
// (symbol, timeframe) series. A single pipeline is single-threaded;
// ordering guarantees depend on in-order processing of archives. Separate
// series may run in parallel since they write disjoint outputs.
type Pipeline struct {
	Parser *canonical.Parser
	Logger *slog.Logger
}

// NewPipeline creates a pipeline with the given row parser.
func NewPipeline(parser *canonical.Parser, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{Parser: parser, Logger: logger}
}

type tsRecord struct {
	millis int64
	candle models.Candle
}

// RunBulk collects every record from every archive into memory, sorts by
// integer timestamp, deduplicates, and writes the result. Archive order is
// irrelevant in this mode. Cancellation is honored between archives.
func (p *Pipeline) RunBulk(ctx context.Context, archives []string, w *Writer) (Stats, error) {
	var stats Stats
	var records []tsRecord

	for _, path := range archives {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("conversion canceled: %w", err)
		}

		n, err := p.collectArchive(path, &records, &stats)
		if err != nil {
			p.Logger.Warn("skipping archive", "archive", path, "error", err)
			stats.ArchivesSkipped++
			continue
		}
		stats.ArchivesProcessed++
		p.Logger.Debug("archive collected", "archive", path, "records", n)
	}

	// Bulk sort by integer timestamp. No tie-break: records sharing a
	// timestamp are duplicates and one of them survives the pass below.
	sort.Slice(records, func(i, j int) bool {
		return records[i].millis < records[j].millis
	})

	if err := w.WriteHeader(); err != nil {
		return stats, err
	}

	var lastMillis int64 = -1
	for _, rec := range records {
		if rec.millis == lastMillis {
			stats.DuplicatesDropped++
			continue
		}
		if err := w.WriteRecord(rec.candle); err != nil {
			return stats, err
		}
		lastMillis = rec.millis
	}
	stats.RecordsWritten = w.Records()
	return stats, nil
}

// collectArchive appends all parseable records from one archive.
func (p *Pipeline) collectArchive(path string, records *[]tsRecord, stats *Stats) (int, error) {
	r, err := archive.Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	count := 0
	for r.Scan() {
		stats.RecordsSeen++
		candle, err := p.Parser.Parse(r.Text())
		if err != nil {
			stats.RowsRejected++
			continue
		}
		millis, err := strconv.ParseInt(candle.Timestamp, 10, 64)
		if err != nil {
			// bulk ordering needs an integer key; a non-numeric
			// timestamp cannot be placed in the sequence
			stats.RowsRejected++
			continue
		}
		*records = append(*records, tsRecord{millis: millis, candle: candle})
		count++
	}
	if err := r.Err(); err != nil {
		return count, &archive.DecodeError{Path: path, Reason: "read interrupted", Err: err}
	}
	return count, nil
}

// RunStreaming processes archives one at a time in the order given, keeping
// only the last emitted timestamp as state. Memory use is constant no matter
// how many records flow through. The caller is responsible for passing
// archives in chronological-name order (see CheckArchiveOrder); out-of-order
// input produces out-of-order output.
func (p *Pipeline) RunStreaming(ctx context.Context, archives []string, w *Writer) (Stats, error) {
	var stats Stats

	if err := w.WriteHeader(); err != nil {
		return stats, err
	}

	start := time.Now()
	var lastTimestamp string
	haveLast := false

	for i, path := range archives {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("conversion canceled: %w", err)
		}

		archiveStart := time.Now()
		written, err := p.streamArchive(path, w, &stats, &lastTimestamp, &haveLast)
		if err != nil {
			p.Logger.Warn("skipping archive", "archive", path, "error", err)
			stats.ArchivesSkipped++
			continue
		}
		stats.ArchivesProcessed++

		elapsed := time.Since(start)
		avgPerArchive := elapsed / time.Duration(i+1)
		eta := avgPerArchive * time.Duration(len(archives)-i-1)
		p.Logger.Info("archive converted",
			"archive", path,
			"n", i+1,
			"total", len(archives),
			"records", written,
			"cumulative", w.Records(),
			"took", time.Since(archiveStart).Round(100*time.Millisecond),
			"eta", eta.Round(time.Second))
	}

	stats.RecordsWritten = w.Records()
	return stats, nil
}

// streamArchive writes one archive's records, dropping consecutive
// duplicates of the last emitted timestamp.
func (p *Pipeline) streamArchive(path string, w *Writer, stats *Stats, lastTimestamp *string, haveLast *bool) (int64, error) {
	r, err := archive.Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	var written int64
	for r.Scan() {
		stats.RecordsSeen++
		candle, err := p.Parser.Parse(r.Text())
		if err != nil {
			stats.RowsRejected++
			continue
		}
		if *haveLast && candle.Timestamp == *lastTimestamp {
			stats.DuplicatesDropped++
			continue
		}
		if err := w.WriteRecord(candle); err != nil {
			return written, err
		}
		*lastTimestamp = candle.Timestamp
		*haveLast = true
		written++
	}
	if err := r.Err(); err != nil {
		return written, &archive.DecodeError{Path: path, Reason: "read interrupted", Err: err}
	}
	return written, nil
}
