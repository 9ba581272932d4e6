// Package archive decodes monthly kline zip archives into a lazy sequence of
// text lines. Each archive must contain exactly one CSV data file; anything
// else is a decode error the caller handles by skipping the archive; one bad
// archive must never abort a whole run.
package archive

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"strings"
)

const dataFileSuffix = ".csv"

// DecodeError is an archive-level failure: the archive is corrupt, holds no
// data file, or holds more than one.
type DecodeError struct {
	Path   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %s: %s", e.Path, e.Reason)
}

// Unwrap returns the underlying error, if any.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Reader yields the lines of an archive's single data file, lazily and
// forward-only. Blank lines are dropped. Use like bufio.Scanner:
//
//	r, err := archive.Open(path)
//	...
//	defer r.Close()
//	for r.Scan() {
//	    line := r.Text()
//	}
//	err = r.Err()
type Reader struct {
	zr      *zip.ReadCloser
	rc      io.ReadCloser
	scanner *bufio.Scanner
	line    string
}

// Open opens the archive at path and positions the reader at the start of its
// data file. The selection rule is strict: exactly one entry with the .csv
// suffix must exist.
func Open(path string) (*Reader, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Reason: "cannot open archive", Err: err}
	}

	var dataFile *zip.File
	candidates := 0
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, dataFileSuffix) {
			candidates++
			dataFile = f
		}
	}
	if candidates == 0 {
		zr.Close()
		return nil, &DecodeError{Path: path, Reason: "no data file in archive"}
	}
	if candidates > 1 {
		zr.Close()
		return nil, &DecodeError{Path: path, Reason: fmt.Sprintf("ambiguous archive: %d data files", candidates)}
	}

	rc, err := dataFile.Open()
	if err != nil {
		zr.Close()
		return nil, &DecodeError{Path: path, Reason: "cannot open data file", Err: err}
	}

	scanner := bufio.NewScanner(rc)
	// Rows are short, but allow some slack over the 64K default.
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &Reader{zr: zr, rc: rc, scanner: scanner}, nil
}

// Scan advances to the next non-blank line, returning false at end of data
// or on error.
func (r *Reader) Scan() bool {
	for r.scanner.Scan() {
		line := strings.TrimRight(r.scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		r.line = line
		return true
	}
	return false
}

// Text returns the current line.
func (r *Reader) Text() string {
	return r.line
}

// Err returns the first error encountered while scanning, excluding EOF.
func (r *Reader) Err() error {
	return r.scanner.Err()
}

// Close releases the underlying archive handles.
func (r *Reader) Close() error {
	if r.rc != nil {
		r.rc.Close()
	}
	if r.zr != nil {
		return r.zr.Close()
	}
	return nil
}
