package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"block-timestamp-logger/internal/fetcher"
)

// Poller runs one chain's polling loop: fetch the latest header, drop
// duplicate/stale reads, and record fresh observations into the chain's
// aggregator. It exclusively owns the last-seen block cursor.
type Poller struct {
	chain    string
	fetcher  fetcher.HeaderFetcher
	agg      *Aggregator
	interval time.Duration
	logger   zerolog.Logger

	lastSeen uint64
	seen     bool
}

// NewPoller constructs a poller for one chain.
func NewPoller(chain string, f fetcher.HeaderFetcher, agg *Aggregator, interval time.Duration, logger zerolog.Logger) *Poller {
	return &Poller{
		chain:    chain,
		fetcher:  f,
		agg:      agg,
		interval: interval,
		logger:   logger.With().Str("component", "poller").Str("chain", chain).Logger(),
	}
}

// Run loops until ctx is cancelled. Fetch failures are counted and logged
// but never terminate the loop; a chain that fails continuously simply
// contributes zero samples. The sleep is scheduled from tick end so slow
// RPCs do not compound drift, and cancellation is observed within one
// polling interval. Always returns nil on shutdown.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().Dur("interval", p.interval).Msg("poller started")
	for {
		p.tick(ctx)

		select {
		case <-ctx.Done():
			p.logger.Info().Uint64("last_seen_block", p.lastSeen).Msg("poller stopped")
			return nil
		case <-time.After(p.interval):
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	head, err := p.fetcher.LatestHeader(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// shutting down; an aborted in-flight fetch is not a failure
			return
		}
		p.agg.NoteFetchError()
		ev := p.logger.Warn().Str("kind", string(fetcher.Classify(err))).Err(err)
		if code, ok := fetcher.RPCErrorCode(err); ok {
			ev = ev.Int("rpc_code", code)
		}
		ev.Msg("fetch latest header failed")
		return
	}

	// Receipt time is captured immediately on success, before any further
	// processing, so the delta is not inflated by local work.
	receivedAt := time.Now().UTC()

	if p.seen && head.Number <= p.lastSeen {
		p.agg.NoteStale()
		return
	}

	obs := NewObservation(p.chain, head.Number, head.Time, receivedAt)
	p.lastSeen = head.Number
	p.seen = true
	p.agg.Record(obs)

	p.logger.Debug().
		Uint64("block", obs.BlockNumber).
		Time("chain_time", obs.ChainTime).
		Int64("delta_ms", obs.Delta).
		Msg("observation recorded")
}
