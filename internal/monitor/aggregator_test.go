package monitor_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"block-timestamp-logger/internal/monitor"
)

func obs(block uint64, delta int64) monitor.Observation {
	return monitor.Observation{
		Chain:       "testchain",
		BlockNumber: block,
		Delta:       delta,
	}
}

func TestAggregatorWorkedExample(t *testing.T) {
	agg := monitor.NewAggregator("testchain")
	for i, delta := range []int64{500, 300, -200, 100} {
		agg.Record(obs(uint64(i+1), delta))
	}

	s := agg.Summary()
	require.True(t, s.HasData())
	require.Equal(t, int64(4), s.SampleCount)
	require.Equal(t, int64(3), s.PastCount)
	require.Equal(t, int64(1), s.FutureCount)
	require.InDelta(t, 75.0, s.PastPct, 1e-9)
	require.InDelta(t, 25.0, s.FuturePct, 1e-9)
	require.InDelta(t, 175.0, s.MeanDelta, 1e-9)
	require.Equal(t, int64(-200), s.MinDelta)
	require.Equal(t, int64(500), s.MaxDelta)
}

func TestAggregatorInvariantsUnderRandomRecords(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	agg := monitor.NewAggregator("testchain")

	var recorded []int64
	for i := 0; i < 500; i++ {
		delta := rng.Int63n(20000) - 10000
		recorded = append(recorded, delta)
		agg.Record(obs(uint64(i+1), delta))

		s := agg.Summary()
		require.Equal(t, s.SampleCount, s.PastCount+s.FutureCount)
		for _, d := range recorded {
			require.LessOrEqual(t, s.MinDelta, d)
			require.GreaterOrEqual(t, s.MaxDelta, d)
		}
		require.GreaterOrEqual(t, s.P50Delta, s.MinDelta)
		require.LessOrEqual(t, s.P50Delta, s.MaxDelta)
		require.GreaterOrEqual(t, s.P99Delta, s.P50Delta)
	}
}

func TestAggregatorZeroDeltaCountsAsPast(t *testing.T) {
	agg := monitor.NewAggregator("testchain")
	agg.Record(obs(1, 0))

	s := agg.Summary()
	require.Equal(t, int64(1), s.PastCount)
	require.Equal(t, int64(0), s.FutureCount)
}

func TestAggregatorEmptySummary(t *testing.T) {
	agg := monitor.NewAggregator("testchain")

	s := agg.Summary()
	require.False(t, s.HasData())
	require.Equal(t, int64(0), s.SampleCount)
	require.Zero(t, s.MeanDelta)
	require.Zero(t, s.StddevDelta)
	require.Zero(t, s.PastPct)
	require.Zero(t, s.FuturePct)
}

func TestAggregatorStddev(t *testing.T) {
	agg := monitor.NewAggregator("testchain")
	agg.Record(obs(1, 100))
	agg.Record(obs(2, 300))

	s := agg.Summary()
	require.InDelta(t, 200.0, s.MeanDelta, 1e-9)
	require.InDelta(t, 100.0, s.StddevDelta, 1e-9)
}

func TestAggregatorPercentilesOnConstantSeries(t *testing.T) {
	agg := monitor.NewAggregator("testchain")
	for i := 0; i < 100; i++ {
		agg.Record(obs(uint64(i+1), 150))
	}

	s := agg.Summary()
	require.Equal(t, int64(150), s.P50Delta)
	require.Equal(t, int64(150), s.P90Delta)
	require.Equal(t, int64(150), s.P99Delta)
}

func TestAggregatorSnapshotIdempotent(t *testing.T) {
	agg := monitor.NewAggregator("testchain")
	for i, delta := range []int64{12, -7, 3000, 42} {
		agg.Record(obs(uint64(i+1), delta))
	}

	first := agg.Summary()
	second := agg.Summary()
	require.Equal(t, first, second)
}

func TestAggregatorFlushDrainsRawOnce(t *testing.T) {
	agg := monitor.NewAggregator("testchain")
	agg.Record(obs(100, 10))
	agg.Record(obs(101, 20))
	agg.Record(obs(102, -5))

	summary, rows := agg.Flush()
	require.Equal(t, int64(3), summary.SampleCount)
	require.Equal(t, []monitor.RawDelta{
		{BlockNumber: 100, Delta: 10},
		{BlockNumber: 101, Delta: 20},
		{BlockNumber: 102, Delta: -5},
	}, rows)

	// raw log drained, statistics retained
	summary2, rows2 := agg.Flush()
	require.Empty(t, rows2)
	require.Equal(t, summary, summary2)

	agg.Record(obs(103, 7))
	_, rows3 := agg.Flush()
	require.Equal(t, []monitor.RawDelta{{BlockNumber: 103, Delta: 7}}, rows3)
}

func TestAggregatorDiagnosticCounters(t *testing.T) {
	agg := monitor.NewAggregator("testchain")
	agg.NoteFetchError()
	agg.NoteFetchError()
	agg.NoteStale()

	s := agg.Summary()
	require.Equal(t, int64(2), s.FetchErrors)
	require.Equal(t, int64(1), s.StaleDrops)
	require.Equal(t, int64(0), s.SampleCount)
}

func TestNewObservationDelta(t *testing.T) {
	receivedAt := time.Date(2025, 6, 1, 12, 0, 1, 500*int(time.Millisecond), time.UTC)
	chainTS := uint64(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Unix())

	o := monitor.NewObservation("testchain", 42, chainTS, receivedAt)
	// block stamped 1.5s in the past: positive delta, honest
	require.Equal(t, int64(1500), o.Delta)

	future := monitor.NewObservation("testchain", 43, chainTS+10, receivedAt)
	require.Equal(t, int64(-8500), future.Delta)
}
