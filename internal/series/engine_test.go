package series

import (
	"archive/zip"
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantmill/go-kline-ingest/internal/canonical"
	"github.com/quantmill/go-kline-ingest/internal/models"
)

// writeArchive builds a monthly archive fixture whose rows carry the given
// timestamps with fixed value fields.
func writeArchive(t *testing.T, dir, name string, timestamps ...string) string {
	t.Helper()
	var rows []string
	for _, ts := range timestamps {
		rows = append(rows, fmt.Sprintf("%s,42000.01,42100.50,41900.00,42050.25,123.456", ts))
	}
	return writeArchiveRaw(t, dir, name, strings.Join(rows, "\n")+"\n")
}

func writeArchiveRaw(t *testing.T, dir, name, csvContent string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create(strings.TrimSuffix(name, ".zip") + ".csv")
	require.NoError(t, err)
	_, err = w.Write([]byte(csvContent))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

// readSeries returns the output file's header and the timestamp column of
// every data line.
func readSeries(t *testing.T, path string) (header string, timestamps []string) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			header = line
			first = false
			continue
		}
		timestamps = append(timestamps, strings.SplitN(line, ",", 2)[0])
	}
	require.NoError(t, scanner.Err())
	return header, timestamps
}

func newTestPipeline() *Pipeline {
	return NewPipeline(&canonical.Parser{}, nil)
}

func TestRunBulkOrdersAndDeduplicates(t *testing.T) {
	dir := t.TempDir()
	archives := []string{
		writeArchive(t, dir, "BTCUSDT-1h-2024-02.zip", "5", "3"),
		writeArchive(t, dir, "BTCUSDT-1h-2024-01.zip", "5", "1", "3"),
	}
	out := filepath.Join(dir, "out.csv")
	w, err := NewWriter(out)
	require.NoError(t, err)

	stats, err := newTestPipeline().RunBulk(context.Background(), archives, w)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	header, timestamps := readSeries(t, out)
	assert.Equal(t, models.Header, header)
	assert.Equal(t, []string{"1", "3", "5"}, timestamps)

	assert.Equal(t, int64(5), stats.RecordsSeen)
	assert.Equal(t, int64(3), stats.RecordsWritten)
	assert.Equal(t, int64(2), stats.DuplicatesDropped)
	assert.Equal(t, 2, stats.ArchivesProcessed)
	assert.Equal(t, 0, stats.ArchivesSkipped)
}

func TestRunBulkSkipsCorruptArchive(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "BTCUSDT-1h-2024-02.zip")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a zip"), 0644))

	archives := []string{
		writeArchive(t, dir, "BTCUSDT-1h-2024-01.zip", "1", "2"),
		corrupt,
		writeArchive(t, dir, "BTCUSDT-1h-2024-03.zip", "3"),
	}
	out := filepath.Join(dir, "out.csv")
	w, err := NewWriter(out)
	require.NoError(t, err)

	stats, err := newTestPipeline().RunBulk(context.Background(), archives, w)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, timestamps := readSeries(t, out)
	assert.Equal(t, []string{"1", "2", "3"}, timestamps)
	assert.Equal(t, 2, stats.ArchivesProcessed)
	assert.Equal(t, 1, stats.ArchivesSkipped)
}

func TestRunBulkRejectsMalformedRows(t *testing.T) {
	dir := t.TempDir()
	content := "1,42000.01,42100.50,41900.00,42050.25,123.456\n" +
		"short,row\n" +
		"abc,1,2,0.5,1.5,10\n" +
		"2,42000.01,42100.50,41900.00,42050.25,123.456\n"
	archives := []string{writeArchiveRaw(t, dir, "BTCUSDT-1h-2024-01.zip", content)}

	out := filepath.Join(dir, "out.csv")
	w, err := NewWriter(out)
	require.NoError(t, err)

	stats, err := newTestPipeline().RunBulk(context.Background(), archives, w)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, timestamps := readSeries(t, out)
	assert.Equal(t, []string{"1", "2"}, timestamps)
	assert.Equal(t, int64(4), stats.RecordsSeen)
	assert.Equal(t, int64(2), stats.RowsRejected)
}

func TestRunBulkEmptyInputWritesHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.csv")
	w, err := NewWriter(out)
	require.NoError(t, err)

	stats, err := newTestPipeline().RunBulk(context.Background(), nil, w)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	header, timestamps := readSeries(t, out)
	assert.Equal(t, models.Header, header)
	assert.Empty(t, timestamps)
	assert.Equal(t, int64(0), stats.RecordsWritten)
}

func TestRunBulkHonorsCancellation(t *testing.T) {
	dir := t.TempDir()
	archives := []string{writeArchive(t, dir, "BTCUSDT-1h-2024-01.zip", "1")}
	out := filepath.Join(dir, "out.csv")
	w, err := NewWriter(out)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = newTestPipeline().RunBulk(ctx, archives, w)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunStreamingDeduplicatesAcrossArchives(t *testing.T) {
	dir := t.TempDir()
	archives := []string{
		writeArchive(t, dir, "BTCUSDT-1s-2024-01.zip", "1", "1", "2"),
		writeArchive(t, dir, "BTCUSDT-1s-2024-02.zip", "2", "3", "3", "4"),
	}
	out := filepath.Join(dir, "out.csv")
	w, err := NewWriter(out)
	require.NoError(t, err)

	stats, err := newTestPipeline().RunStreaming(context.Background(), archives, w)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	header, timestamps := readSeries(t, out)
	assert.Equal(t, models.Header, header)
	assert.Equal(t, []string{"1", "2", "3", "4"}, timestamps)

	assert.Equal(t, int64(7), stats.RecordsSeen)
	assert.Equal(t, int64(4), stats.RecordsWritten)
	assert.Equal(t, int64(3), stats.DuplicatesDropped)
}

func TestRunStreamingPreservesEncounterOrder(t *testing.T) {
	// Streaming mode never re-sorts: out-of-order input yields out-of-order
	// output and no duplicate is detected unless it is consecutive.
	dir := t.TempDir()
	archives := []string{
		writeArchive(t, dir, "BTCUSDT-1s-2024-01.zip", "5", "3", "4"),
	}
	out := filepath.Join(dir, "out.csv")
	w, err := NewWriter(out)
	require.NoError(t, err)

	stats, err := newTestPipeline().RunStreaming(context.Background(), archives, w)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, timestamps := readSeries(t, out)
	assert.Equal(t, []string{"5", "3", "4"}, timestamps)
	assert.Equal(t, int64(0), stats.DuplicatesDropped)
}

func TestRunStreamingSkipsCorruptArchive(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "BTCUSDT-1s-2024-02.zip")
	require.NoError(t, os.WriteFile(corrupt, []byte("garbage"), 0644))

	archives := []string{
		writeArchive(t, dir, "BTCUSDT-1s-2024-01.zip", "1", "2"),
		corrupt,
		writeArchive(t, dir, "BTCUSDT-1s-2024-03.zip", "3"),
	}
	out := filepath.Join(dir, "out.csv")
	w, err := NewWriter(out)
	require.NoError(t, err)

	stats, err := newTestPipeline().RunStreaming(context.Background(), archives, w)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, timestamps := readSeries(t, out)
	assert.Equal(t, []string{"1", "2", "3"}, timestamps)
	assert.Equal(t, 2, stats.ArchivesProcessed)
	assert.Equal(t, 1, stats.ArchivesSkipped)
}

func TestRunStreamingReconcilesMicrosecondTimestamps(t *testing.T) {
	dir := t.TempDir()
	archives := []string{
		writeArchive(t, dir, "BTCUSDT-1s-2024-12.zip", "1735689599000"),
		writeArchive(t, dir, "BTCUSDT-1s-2025-01.zip", "1735689600000000", "1735689601000000"),
	}
	out := filepath.Join(dir, "out.csv")
	w, err := NewWriter(out)
	require.NoError(t, err)

	_, err = newTestPipeline().RunStreaming(context.Background(), archives, w)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, timestamps := readSeries(t, out)
	assert.Equal(t, []string{"1735689599000", "1735689600000", "1735689601000"}, timestamps)
}
