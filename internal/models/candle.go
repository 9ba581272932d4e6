// Package models provides the canonical candle record and its validation.
// A candle carries its price and volume fields as the exact decimal text read
// from the upstream source; no arithmetic is ever performed on them, which
// keeps the output byte-identical to the input and avoids float rounding.
package models

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// FieldCount is the number of fields in the canonical schema.
const FieldCount = 6

// Header is the canonical series header line.
const Header = "timestamp,open,high,low,close,volume"

// Candle is one canonical OHLCV record. Timestamp is millisecond epoch text
// (already reconciled to 13 digits); the remaining fields preserve the
// upstream textual representation verbatim.
type Candle struct {
	Timestamp string `json:"timestamp"`
	Open      string `json:"open"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Close     string `json:"close"`
	Volume    string `json:"volume"`
}

// ValidationError reports which field of a candle failed strict validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// TimestampMillis returns the timestamp as an integer millisecond value.
func (c *Candle) TimestampMillis() (int64, error) {
	ts, err := strconv.ParseInt(c.Timestamp, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q is not an integer: %w", c.Timestamp, err)
	}
	return ts, nil
}

// Fields returns the candle fields in canonical order.
func (c *Candle) Fields() [FieldCount]string {
	return [FieldCount]string{c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume}
}

// Validate performs strict shape validation: the timestamp must be a
// non-negative all-digit integer and the five value fields must parse as
// decimal numbers with volume >= 0. Upstream data is generally well formed,
// so this is opt-in on the hot path (see config StrictRows).
func (c *Candle) Validate() error {
	if c.Timestamp == "" {
		return &ValidationError{Field: "timestamp", Message: "timestamp cannot be empty"}
	}
	for _, r := range c.Timestamp {
		if r < '0' || r > '9' {
			return &ValidationError{Field: "timestamp", Message: fmt.Sprintf("timestamp %q must be all digits", c.Timestamp)}
		}
	}
	if _, err := strconv.ParseInt(c.Timestamp, 10, 64); err != nil {
		return &ValidationError{Field: "timestamp", Message: fmt.Sprintf("timestamp %q out of range: %v", c.Timestamp, err)}
	}

	if _, err := decimal.NewFromString(c.Open); err != nil {
		return &ValidationError{Field: "open", Message: fmt.Sprintf("invalid open price format: %v", err)}
	}
	if _, err := decimal.NewFromString(c.High); err != nil {
		return &ValidationError{Field: "high", Message: fmt.Sprintf("invalid high price format: %v", err)}
	}
	if _, err := decimal.NewFromString(c.Low); err != nil {
		return &ValidationError{Field: "low", Message: fmt.Sprintf("invalid low price format: %v", err)}
	}
	if _, err := decimal.NewFromString(c.Close); err != nil {
		return &ValidationError{Field: "close", Message: fmt.Sprintf("invalid close price format: %v", err)}
	}

	volume, err := decimal.NewFromString(c.Volume)
	if err != nil {
		return &ValidationError{Field: "volume", Message: fmt.Sprintf("invalid volume format: %v", err)}
	}
	if volume.LessThan(decimal.Zero) {
		return &ValidationError{Field: "volume", Message: "volume must be greater than or equal to 0"}
	}

	return nil
}

// String returns a human-readable representation of the candle.
// This method implements the fmt.Stringer interface.
func (c *Candle) String() string {
	return fmt.Sprintf("Candle{T: %s, O: %s, H: %s, L: %s, C: %s, V: %s}",
		c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume)
}
