package monitor_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"block-timestamp-logger/internal/fetcher"
	"block-timestamp-logger/internal/monitor"
)

type headerFetcherMock struct {
	LatestHeaderFunc func(ctx context.Context) (fetcher.Header, error)
}

func (m *headerFetcherMock) LatestHeader(ctx context.Context) (fetcher.Header, error) {
	return m.LatestHeaderFunc(ctx)
}

func TestPollerDropsStaleAndDuplicateBlocks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sequence := []uint64{100, 101, 99, 102}
	var calls int
	mock := &headerFetcherMock{
		LatestHeaderFunc: func(ctx context.Context) (fetcher.Header, error) {
			if calls >= len(sequence) {
				cancel()
				return fetcher.Header{}, ctx.Err()
			}
			number := sequence[calls]
			calls++
			return fetcher.Header{Number: number, Time: uint64(time.Now().Unix())}, nil
		},
	}

	agg := monitor.NewAggregator("testchain")
	poller := monitor.NewPoller("testchain", mock, agg, time.Millisecond, zerolog.Nop())
	require.NoError(t, poller.Run(ctx))

	summary, rows := agg.Flush()
	require.Equal(t, int64(3), summary.SampleCount)
	require.Equal(t, int64(1), summary.StaleDrops)
	require.Equal(t, int64(0), summary.FetchErrors)

	blocks := make([]uint64, len(rows))
	for i, row := range rows {
		blocks[i] = row.BlockNumber
	}
	require.Equal(t, []uint64{100, 101, 102}, blocks)
}

func TestPollerRecordsFirstSuccessfulFetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var served bool
	mock := &headerFetcherMock{
		LatestHeaderFunc: func(ctx context.Context) (fetcher.Header, error) {
			if served {
				cancel()
				return fetcher.Header{}, ctx.Err()
			}
			served = true
			return fetcher.Header{Number: 100, Time: uint64(time.Now().Unix())}, nil
		},
	}

	agg := monitor.NewAggregator("testchain")
	poller := monitor.NewPoller("testchain", mock, agg, time.Millisecond, zerolog.Nop())
	require.NoError(t, poller.Run(ctx))

	require.Equal(t, int64(1), agg.Summary().SampleCount)
}

func TestPollerSurvivesContinuousFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	mock := &headerFetcherMock{
		LatestHeaderFunc: func(ctx context.Context) (fetcher.Header, error) {
			if calls.Add(1) >= 5 {
				cancel()
			}
			return fetcher.Header{}, errors.New("connection refused")
		},
	}

	agg := monitor.NewAggregator("testchain")
	poller := monitor.NewPoller("testchain", mock, agg, time.Millisecond, zerolog.Nop())
	require.NoError(t, poller.Run(ctx))

	s := agg.Summary()
	require.Equal(t, int64(0), s.SampleCount)
	require.GreaterOrEqual(t, s.FetchErrors, int64(4))
}

func TestPollerStopsWithinOneInterval(t *testing.T) {
	interval := 50 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())

	var block atomic.Uint64
	mock := &headerFetcherMock{
		LatestHeaderFunc: func(ctx context.Context) (fetcher.Header, error) {
			return fetcher.Header{Number: block.Add(1), Time: uint64(time.Now().Unix())}, nil
		},
	}

	agg := monitor.NewAggregator("testchain")
	poller := monitor.NewPoller("testchain", mock, agg, interval, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		_ = poller.Run(ctx)
		close(done)
	}()

	time.Sleep(2 * interval)
	cancel()

	select {
	case <-done:
	case <-time.After(interval + 100*time.Millisecond):
		t.Fatal("poller did not stop within one polling interval")
	}

	// no post-shutdown writes
	after := agg.Summary().SampleCount
	time.Sleep(3 * interval)
	require.Equal(t, after, agg.Summary().SampleCount)
}
