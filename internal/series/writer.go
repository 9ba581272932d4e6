package series

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/quantmill/go-kline-ingest/internal/models"
)

// Writer appends canonical records to a destination series file. All writes
// are sequential; the header is written exactly once before any record, and
// field text is emitted verbatim so the output never reformats upstream
// numeric precision. One writer owns its destination exclusively.
type Writer struct {
	f           *os.File
	bw          *bufio.Writer
	wroteHeader bool
	records     int64
}

// NewWriter creates (truncating) the destination file. An unwritable
// destination is a fatal condition for the run.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("destination not writable: %w", err)
	}
	return &Writer{f: f, bw: bufio.NewWriterSize(f, 256*1024)}, nil
}

// WriteHeader writes the canonical header line. Calling it more than once is
// an error; WriteRecord calls it implicitly if needed.
func (w *Writer) WriteHeader() error {
	if w.wroteHeader {
		return fmt.Errorf("header already written")
	}
	if _, err := w.bw.WriteString(models.Header + "\n"); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	w.wroteHeader = true
	return nil
}

// WriteRecord appends one candle as a single line of six delimiter-joined
// fields.
func (w *Writer) WriteRecord(c models.Candle) error {
	if !w.wroteHeader {
		if err := w.WriteHeader(); err != nil {
			return err
		}
	}
	fields := c.Fields()
	if _, err := w.bw.WriteString(strings.Join(fields[:], ",") + "\n"); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	w.records++
	return nil
}

// Records returns the number of records written so far.
func (w *Writer) Records() int64 {
	return w.records
}

// Close flushes buffered data and closes the file.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return w.f.Close()
}
