package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"block-timestamp-logger/internal/config"
	"block-timestamp-logger/internal/monitor"
)

const (
	upsertSummarySQL = `INSERT INTO chain_summaries (
        chain,
        sample_count,
        past_count,
        future_count,
        past_pct,
        future_pct,
        mean_delta_ms,
        stddev_delta_ms,
        min_delta_ms,
        max_delta_ms,
        p50_delta_ms,
        p90_delta_ms,
        p99_delta_ms,
        latest_block,
        fetch_errors,
        stale_drops,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
    )
    ON CONFLICT (chain) DO UPDATE
    SET
        sample_count    = EXCLUDED.sample_count,
        past_count      = EXCLUDED.past_count,
        future_count    = EXCLUDED.future_count,
        past_pct        = EXCLUDED.past_pct,
        future_pct      = EXCLUDED.future_pct,
        mean_delta_ms   = EXCLUDED.mean_delta_ms,
        stddev_delta_ms = EXCLUDED.stddev_delta_ms,
        min_delta_ms    = EXCLUDED.min_delta_ms,
        max_delta_ms    = EXCLUDED.max_delta_ms,
        p50_delta_ms    = EXCLUDED.p50_delta_ms,
        p90_delta_ms    = EXCLUDED.p90_delta_ms,
        p99_delta_ms    = EXCLUDED.p99_delta_ms,
        latest_block    = EXCLUDED.latest_block,
        fetch_errors    = EXCLUDED.fetch_errors,
        stale_drops     = EXCLUDED.stale_drops,
        updated_at      = EXCLUDED.updated_at;`

	listSummariesSQL = `SELECT
        chain,
        sample_count,
        past_count,
        future_count,
        past_pct,
        future_pct,
        mean_delta_ms,
        stddev_delta_ms,
        min_delta_ms,
        max_delta_ms,
        p50_delta_ms,
        p90_delta_ms,
        p99_delta_ms,
        latest_block,
        fetch_errors,
        stale_drops,
        updated_at
    FROM chain_summaries
    ORDER BY chain;`
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// StoredSummary is a persisted chain summary plus its write timestamp.
type StoredSummary struct {
	monitor.Summary
	UpdatedAt time.Time
}

// Postgres persists snapshots into chain_summaries and raw_deltas tables.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wires a pgx pool into a sink.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// WriteSummary upserts the chain's summary row.
func (p *Postgres) WriteSummary(ctx context.Context, s monitor.Summary) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertSummarySQL,
		s.Chain,
		s.SampleCount,
		s.PastCount,
		s.FutureCount,
		s.PastPct,
		s.FuturePct,
		s.MeanDelta,
		s.StddevDelta,
		s.MinDelta,
		s.MaxDelta,
		s.P50Delta,
		s.P90Delta,
		s.P99Delta,
		int64(s.LatestBlock),
		s.FetchErrors,
		s.StaleDrops,
		time.Now().UTC(),
	)
	if execErr != nil {
		return fmt.Errorf("upsert chain summary: %w", execErr)
	}
	return nil
}

// AppendDeltas bulk-inserts raw rows for the chain.
func (p *Postgres) AppendDeltas(ctx context.Context, chain string, rows []monitor.RawDelta) error {
	if len(rows) == 0 {
		return nil
	}
	pool, err := p.getPool()
	if err != nil {
		return err
	}

	_, copyErr := pool.CopyFrom(ctx,
		pgx.Identifier{"raw_deltas"},
		[]string{"chain", "block_number", "delta_ms"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return []any{chain, int64(rows[i].BlockNumber), rows[i].Delta}, nil
		}),
	)
	if copyErr != nil {
		return fmt.Errorf("copy raw deltas: %w", copyErr)
	}
	return nil
}

// ListSummaries returns the latest summary for every chain.
func (p *Postgres) ListSummaries(ctx context.Context) ([]StoredSummary, error) {
	pool, err := p.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSummariesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list summaries: %w", queryErr)
	}
	defer rows.Close()

	summaries := make([]StoredSummary, 0)
	for rows.Next() {
		var s StoredSummary
		var latestBlock int64
		if err := rows.Scan(
			&s.Chain,
			&s.SampleCount,
			&s.PastCount,
			&s.FutureCount,
			&s.PastPct,
			&s.FuturePct,
			&s.MeanDelta,
			&s.StddevDelta,
			&s.MinDelta,
			&s.MaxDelta,
			&s.P50Delta,
			&s.P90Delta,
			&s.P99Delta,
			&latestBlock,
			&s.FetchErrors,
			&s.StaleDrops,
			&s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.LatestBlock = uint64(latestBlock)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close releases the underlying pool resources.
func (p *Postgres) Close() error {
	if p == nil || p.pool == nil {
		return nil
	}
	p.pool.Close()
	return nil
}

func (p *Postgres) getPool() (*pgxpool.Pool, error) {
	if p == nil || p.pool == nil {
		return nil, ErrNotConfigured
	}
	return p.pool, nil
}

var _ Sink = (*Postgres)(nil)
