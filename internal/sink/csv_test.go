package sink_test

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"block-timestamp-logger/internal/monitor"
	"block-timestamp-logger/internal/sink"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return records
}

func TestCSVWriteSummaryRewritesFile(t *testing.T) {
	dir := t.TempDir()
	out, err := sink.NewCSV(dir, zerolog.Nop())
	require.NoError(t, err)
	defer out.Close()

	summary := monitor.Summary{
		Chain:       "optimism",
		SampleCount: 2,
		PastCount:   2,
		PastPct:     100,
		MeanDelta:   250,
		MinDelta:    100,
		MaxDelta:    400,
	}
	require.NoError(t, out.WriteSummary(context.Background(), summary))

	summary.SampleCount = 5
	require.NoError(t, out.WriteSummary(context.Background(), summary))

	records := readCSV(t, filepath.Join(dir, "optimism_stats.csv"))
	require.Len(t, records, 2) // header + one row, not appended
	require.Equal(t, "chain", records[0][0])
	require.Equal(t, "optimism", records[1][0])
	require.Equal(t, "5", records[1][1])
	require.Equal(t, "100.000", records[1][4])
}

func TestCSVAppendDeltasIncremental(t *testing.T) {
	dir := t.TempDir()
	out, err := sink.NewCSV(dir, zerolog.Nop())
	require.NoError(t, err)
	defer out.Close()

	ctx := context.Background()
	require.NoError(t, out.AppendDeltas(ctx, "base", []monitor.RawDelta{
		{BlockNumber: 100, Delta: 10},
		{BlockNumber: 101, Delta: -20},
	}))
	require.NoError(t, out.AppendDeltas(ctx, "base", []monitor.RawDelta{
		{BlockNumber: 102, Delta: 30},
	}))

	records := readCSV(t, filepath.Join(dir, "base_deltas.csv"))
	require.Len(t, records, 4) // one header + three rows
	require.Equal(t, []string{"chain", "block_number", "delta_ms"}, records[0])
	require.Equal(t, []string{"base", "100", "10"}, records[1])
	require.Equal(t, []string{"base", "101", "-20"}, records[2])
	require.Equal(t, []string{"base", "102", "30"}, records[3])
}

func TestCSVAppendNothingCreatesNoFile(t *testing.T) {
	dir := t.TempDir()
	out, err := sink.NewCSV(dir, zerolog.Nop())
	require.NoError(t, err)
	defer out.Close()

	require.NoError(t, out.AppendDeltas(context.Background(), "base", nil))
	_, statErr := os.Stat(filepath.Join(dir, "base_deltas.csv"))
	require.True(t, os.IsNotExist(statErr))
}

type failSink struct{}

func (failSink) WriteSummary(context.Context, monitor.Summary) error { return errors.New("broken") }
func (failSink) AppendDeltas(context.Context, string, []monitor.RawDelta) error {
	return errors.New("broken")
}
func (failSink) Close() error { return nil }

func TestMultiSinkSurvivesFailingMember(t *testing.T) {
	dir := t.TempDir()
	csvSink, err := sink.NewCSV(dir, zerolog.Nop())
	require.NoError(t, err)

	multi := sink.NewMulti(failSink{}, csvSink)
	defer multi.Close()

	ctx := context.Background()
	err = multi.AppendDeltas(ctx, "base", []monitor.RawDelta{{BlockNumber: 1, Delta: 5}})
	require.Error(t, err) // the failing member is reported

	// but the healthy sink still received the rows
	records := readCSV(t, filepath.Join(dir, "base_deltas.csv"))
	require.Len(t, records, 2)
}
