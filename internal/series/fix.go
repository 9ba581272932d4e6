package series

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/quantmill/go-kline-ingest/internal/canonical"
)

// RepairTimestamps rewrites an existing output series, reconciling every
// timestamp to the canonical millisecond unit. It exists for outputs
// produced before reconciliation ran inline; on an already-consistent file
// it is a no-op rewrite (reconciliation is idempotent). The rewrite goes
// through a temp file renamed over the original, so a crash never leaves a
// half-repaired series.
func RepairTimestamps(path string) (total, fixed int64, err error) {
	in, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("cannot open series file: %w", err)
	}
	defer in.Close()

	tmpPath := path + ".fix"
	out, err := os.Create(tmpPath)
	if err != nil {
		return 0, 0, fmt.Errorf("destination not writable: %w", err)
	}

	bw := bufio.NewWriterSize(out, 256*1024)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		total++

		if total == 1 {
			// header line passes through untouched
			if _, err := bw.WriteString(line + "\n"); err != nil {
				return cleanupRepair(out, tmpPath, total, fixed, err)
			}
			continue
		}

		if idx := strings.Index(line, canonical.Delimiter); idx > 0 {
			ts := line[:idx]
			if reconciled := canonical.ReconcileTimestamp(ts); reconciled != ts {
				line = reconciled + line[idx:]
				fixed++
			}
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return cleanupRepair(out, tmpPath, total, fixed, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cleanupRepair(out, tmpPath, total, fixed, fmt.Errorf("read interrupted: %w", err))
	}

	if err := bw.Flush(); err != nil {
		return cleanupRepair(out, tmpPath, total, fixed, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return total, fixed, fmt.Errorf("failed to close repaired file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return total, fixed, fmt.Errorf("failed to replace series file: %w", err)
	}
	return total, fixed, nil
}

func cleanupRepair(out *os.File, tmpPath string, total, fixed int64, err error) (int64, int64, error) {
	out.Close()
	os.Remove(tmpPath)
	return total, fixed, fmt.Errorf("repair failed: %w", err)
}
