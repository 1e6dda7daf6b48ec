package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"block-timestamp-logger/internal/monitor"
)

var statsHeader = []string{
	"chain",
	"sample_count",
	"past_count",
	"future_count",
	"past_pct",
	"future_pct",
	"mean_delta_ms",
	"stddev_delta_ms",
	"min_delta_ms",
	"max_delta_ms",
	"p50_delta_ms",
	"p90_delta_ms",
	"p99_delta_ms",
	"fetch_errors",
	"stale_drops",
}

var deltasHeader = []string{"chain", "block_number", "delta_ms"}

// CSV writes per-chain files under one output directory:
// <chain>_stats.csv holds the latest summary (rewritten on every snapshot)
// and <chain>_deltas.csv accumulates raw rows across flushes.
type CSV struct {
	dir    string
	logger zerolog.Logger

	mu      sync.Mutex
	appends map[string]*os.File
}

// NewCSV creates the output directory if needed.
func NewCSV(dir string, logger zerolog.Logger) (*CSV, error) {
	if dir == "" {
		return nil, ErrNotConfigured
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &CSV{
		dir:     dir,
		logger:  logger.With().Str("component", "csv_sink").Logger(),
		appends: make(map[string]*os.File),
	}, nil
}

// WriteSummary rewrites the chain's stats file with the latest summary.
func (c *CSV) WriteSummary(_ context.Context, s monitor.Summary) error {
	path := filepath.Join(c.dir, s.Chain+"_stats.csv")

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open stats file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(statsHeader); err != nil {
		return err
	}
	if err := writer.Write(summaryRecord(s)); err != nil {
		return err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("write stats file: %w", err)
	}

	c.logger.Debug().Str("chain", s.Chain).Str("path", path).Msg("summary written")
	return nil
}

// AppendDeltas appends raw rows to the chain's deltas file. The header is
// written once when the file is first created; rows handed over here are
// assumed flushed exactly once by the caller.
func (c *CSV) AppendDeltas(_ context.Context, chain string, rows []monitor.RawDelta) error {
	if len(rows) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	file, fresh, err := c.deltaFileLocked(chain)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(file)
	if fresh {
		if err := writer.Write(deltasHeader); err != nil {
			return err
		}
	}
	for _, row := range rows {
		record := []string{
			chain,
			strconv.FormatUint(row.BlockNumber, 10),
			strconv.FormatInt(row.Delta, 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("append deltas: %w", err)
	}
	return nil
}

// Close flushes and closes the open delta files.
func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for chain, file := range c.appends {
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.appends, chain)
	}
	return firstErr
}

func (c *CSV) deltaFileLocked(chain string) (*os.File, bool, error) {
	if file, ok := c.appends[chain]; ok {
		return file, false, nil
	}

	path := filepath.Join(c.dir, chain+"_deltas.csv")
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("open deltas file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, false, err
	}

	c.appends[chain] = file
	return file, info.Size() == 0, nil
}

func summaryRecord(s monitor.Summary) []string {
	return []string{
		s.Chain,
		strconv.FormatInt(s.SampleCount, 10),
		strconv.FormatInt(s.PastCount, 10),
		strconv.FormatInt(s.FutureCount, 10),
		formatFloat(s.PastPct),
		formatFloat(s.FuturePct),
		formatFloat(s.MeanDelta),
		formatFloat(s.StddevDelta),
		strconv.FormatInt(s.MinDelta, 10),
		strconv.FormatInt(s.MaxDelta, 10),
		strconv.FormatInt(s.P50Delta, 10),
		strconv.FormatInt(s.P90Delta, 10),
		strconv.FormatInt(s.P99Delta, 10),
		strconv.FormatInt(s.FetchErrors, 10),
		strconv.FormatInt(s.StaleDrops, 10),
	}
}

func formatFloat(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(3)
}

var _ Sink = (*CSV)(nil)
