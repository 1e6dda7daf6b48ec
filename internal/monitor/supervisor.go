package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"block-timestamp-logger/internal/fetcher"
)

// Sink receives snapshot output. Implementations live outside the core; the
// supervisor only defines the data it hands over.
type Sink interface {
	WriteSummary(ctx context.Context, summary Summary) error
	AppendDeltas(ctx context.Context, chain string, rows []RawDelta) error
}

// ChainRunner pairs one chain's fetcher with its aggregator.
type ChainRunner struct {
	Name       string
	Fetcher    fetcher.HeaderFetcher
	Aggregator *Aggregator
}

// ErrNoChains indicates startup found no usable chain to monitor.
var ErrNoChains = errors.New("monitor: no usable chains configured")

const finalFlushTimeout = 30 * time.Second

// Config tunes the supervisor.
type Config struct {
	PollInterval     time.Duration
	SnapshotInterval time.Duration
	// Duration bounds the whole run; zero means run until cancelled.
	Duration time.Duration
}

// Supervisor launches one poller per chain, flushes aggregates to the sink
// on a fixed cadence, and coordinates graceful shutdown with a final flush.
type Supervisor struct {
	chains []ChainRunner
	sink   Sink
	cfg    Config
	logger zerolog.Logger
}

// NewSupervisor wires the chain runners to a sink. At least one chain is
// required; a complete absence of configured chains is a startup error.
func NewSupervisor(chains []ChainRunner, sink Sink, cfg Config, logger zerolog.Logger) (*Supervisor, error) {
	if len(chains) == 0 {
		return nil, ErrNoChains
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}
	if cfg.SnapshotInterval <= 0 {
		return nil, fmt.Errorf("snapshot interval must be positive")
	}
	return &Supervisor{
		chains: chains,
		sink:   sink,
		cfg:    cfg,
		logger: logger.With().Str("component", "supervisor").Logger(),
	}, nil
}

// Run starts all pollers concurrently and blocks until the configured
// duration elapses or ctx is cancelled. The final flush happens only after
// every poller has confirmed termination, so the exported totals include
// every observation recorded up to shutdown and none thereafter.
func (s *Supervisor) Run(ctx context.Context) error {
	runCtx := ctx
	if s.cfg.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Duration)
		defer cancel()
	}

	s.logger.Info().
		Int("chains", len(s.chains)).
		Dur("poll_interval", s.cfg.PollInterval).
		Dur("snapshot_interval", s.cfg.SnapshotInterval).
		Bool("run_forever", s.cfg.Duration == 0).
		Msg("starting monitor")

	group, groupCtx := errgroup.WithContext(runCtx)
	for _, chain := range s.chains {
		poller := NewPoller(chain.Name, chain.Fetcher, chain.Aggregator, s.cfg.PollInterval, s.logger)
		group.Go(func() error {
			return poller.Run(groupCtx)
		})
	}
	group.Go(func() error {
		return s.snapshotLoop(groupCtx)
	})

	err := group.Wait()

	// Pollers are down; flush on a fresh context so shutdown output is not
	// lost to the cancelled run context.
	flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
	defer cancel()
	s.flushAll(flushCtx)
	s.logFinal()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// SamplesRecorded sums observation counts across all chains. The process
// exit status reflects whether any chain produced data before exit.
func (s *Supervisor) SamplesRecorded() int64 {
	var total int64
	for _, chain := range s.chains {
		total += chain.Aggregator.Summary().SampleCount
	}
	return total
}

func (s *Supervisor) snapshotLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.flushAll(ctx)
		}
	}
}

func (s *Supervisor) flushAll(ctx context.Context) {
	for _, chain := range s.chains {
		summary, rows := chain.Aggregator.Flush()

		s.logger.Info().
			Str("chain", summary.Chain).
			Int64("samples", summary.SampleCount).
			Int64("past", summary.PastCount).
			Int64("future", summary.FutureCount).
			Float64("mean_delta_ms", summary.MeanDelta).
			Uint64("latest_block", summary.LatestBlock).
			Int64("fetch_errors", summary.FetchErrors).
			Msg("snapshot")

		if s.sink == nil {
			continue
		}
		if len(rows) > 0 {
			if err := s.sink.AppendDeltas(ctx, summary.Chain, rows); err != nil {
				s.logger.Error().Err(err).Str("chain", summary.Chain).Msg("failed to append raw deltas")
			}
		}
		if err := s.sink.WriteSummary(ctx, summary); err != nil {
			s.logger.Error().Err(err).Str("chain", summary.Chain).Msg("failed to write summary")
		}
	}
}

func (s *Supervisor) logFinal() {
	for _, chain := range s.chains {
		summary := chain.Aggregator.Summary()
		s.logger.Info().
			Str("chain", summary.Chain).
			Int64("samples", summary.SampleCount).
			Int64("past", summary.PastCount).
			Int64("future", summary.FutureCount).
			Int64("min_delta_ms", summary.MinDelta).
			Int64("max_delta_ms", summary.MaxDelta).
			Float64("mean_delta_ms", summary.MeanDelta).
			Msg("final statistics")
	}
}
