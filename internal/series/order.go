package series

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// CheckArchiveOrder verifies that archive filenames carry non-decreasing
// chronological keys. Streaming mode silently relies on this naming-
// convention contract (SYMBOL-timeframe-YYYY-MM.zip sorts chronologically);
// running the check first turns a would-be silent ordering inversion into a
// clear diagnostic.
func CheckArchiveOrder(paths []string) error {
	lastKey := -1
	lastName := ""
	for _, path := range paths {
		key, err := archiveMonthKey(path)
		if err != nil {
			return err
		}
		if key < lastKey {
			return fmt.Errorf("archive %s is out of chronological order (after %s)",
				filepath.Base(path), lastName)
		}
		lastKey = key
		lastName = filepath.Base(path)
	}
	return nil
}

// archiveMonthKey extracts year*12+month from a SYMBOL-tf-YYYY-MM.zip name.
func archiveMonthKey(path string) (int, error) {
	name := strings.TrimSuffix(filepath.Base(path), ".zip")
	parts := strings.Split(name, "-")
	if len(parts) < 4 {
		return 0, fmt.Errorf("archive name %q does not match SYMBOL-timeframe-year-month", filepath.Base(path))
	}
	year, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0, fmt.Errorf("archive name %q has non-numeric year: %w", filepath.Base(path), err)
	}
	month, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, fmt.Errorf("archive name %q has non-numeric month: %w", filepath.Base(path), err)
	}
	if month < 1 || month > 12 {
		return 0, fmt.Errorf("archive name %q has month %d out of range", filepath.Base(path), month)
	}
	return year*12 + (month - 1), nil
}
