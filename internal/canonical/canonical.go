// Package canonical projects raw archive rows onto the canonical six-field
// candle schema and reconciles the upstream timestamp-unit change.
//
// Upstream monthly kline rows carry 12 columns (open time, OHLCV, close time,
// quote volume, trade count, taker-buy fields, ignore); only the first six
// are part of the canonical schema. Starting 2025-01-01 the upstream switched
// the open-time column from 13-digit milliseconds to 16-digit microseconds
// with no other structural signal, so digit width is the only robust
// discriminant and reconciliation is applied to every record unconditionally.
package canonical

import (
	"errors"
	"fmt"
	"strings"

	"github.com/quantmill/go-kline-ingest/internal/models"
)

// Delimiter separates fields in both the raw and canonical formats.
const Delimiter = ","

const (
	millisDigits = 13
	microsDigits = 16
)

// ErrShortRow marks a row with fewer than the required six fields.
var ErrShortRow = errors.New("row has fewer than 6 fields")

// Parser converts raw lines to canonical candles.
type Parser struct {
	// Strict enables full numeric validation of every row: all-digit
	// timestamp and decimal-parseable OHLCV. Off by default; upstream data
	// is generally well formed and strict parsing trades throughput for
	// safety.
	Strict bool
}

// Parse projects one raw line onto the canonical schema. For any row with at
// least six fields it keeps exactly fields [0..5] (timestamp, open, high,
// low, close, volume), discards trailing columns, and reconciles the
// timestamp unit. Rows with fewer than six fields return ErrShortRow.
func (p *Parser) Parse(line string) (models.Candle, error) {
	parts := strings.Split(line, Delimiter)
	if len(parts) < models.FieldCount {
		return models.Candle{}, fmt.Errorf("%w: got %d", ErrShortRow, len(parts))
	}

	candle := models.Candle{
		Timestamp: ReconcileTimestamp(parts[0]),
		Open:      parts[1],
		High:      parts[2],
		Low:       parts[3],
		Close:     parts[4],
		Volume:    parts[5],
	}

	if p.Strict {
		if err := candle.Validate(); err != nil {
			return models.Candle{}, err
		}
	}

	return candle, nil
}

// ReconcileTimestamp normalizes a timestamp to the canonical millisecond
// unit: an exactly-16-digit value is truncated by its last three digits
// (integer division by 1000, not rounding); any other width passes through
// unchanged. The transform is pure, stateless, and idempotent: a 13-digit
// value is never touched, so re-running a converted series is safe.
func ReconcileTimestamp(ts string) string {
	if len(ts) != microsDigits || !allDigits(ts) {
		return ts
	}
	return ts[:millisDigits]
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
