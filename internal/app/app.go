package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"block-timestamp-logger/internal/config"
	"block-timestamp-logger/internal/fetcher"
	"block-timestamp-logger/internal/monitor"
	"block-timestamp-logger/internal/sink"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	out, closeSinks, err := a.openSinks(ctx)
	if err != nil {
		return err
	}
	defer closeSinks()

	chains, closeFetchers := a.buildChains(ctx)
	defer closeFetchers()

	sup, err := monitor.NewSupervisor(chains, out, monitor.Config{
		PollInterval:     a.Config.Poller.Interval,
		SnapshotInterval: a.Config.Snapshot.Interval,
		Duration:         a.Config.Run.Duration,
	}, a.Logger)
	if err != nil {
		return err
	}

	if a.Config.Metrics.Enabled {
		stopMetrics := a.serveMetrics()
		defer stopMetrics()
	}

	a.Logger.Info().Msg("starting block timestamp monitor")
	err = sup.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("monitor terminated with error")
		return err
	}

	if sup.SamplesRecorded() == 0 {
		return errors.New("no chain produced any samples")
	}

	a.Logger.Info().Msg("monitor stopped")
	return nil
}

// buildChains dials every enabled chain. A chain whose endpoint cannot be
// constructed is logged and excluded; the remaining chains proceed.
func (a *App) buildChains(ctx context.Context) ([]monitor.ChainRunner, func()) {
	names := make([]string, 0, len(a.Config.Chains))
	for name := range a.Config.Chains {
		names = append(names, name)
	}
	sort.Strings(names)

	chains := make([]monitor.ChainRunner, 0, len(names))
	closers := make([]func(), 0, len(names))

	for _, name := range names {
		chainCfg := a.Config.Chains[name]
		if !chainCfg.Enabled {
			a.Logger.Debug().Str("chain", name).Msg("chain disabled, skipping")
			continue
		}

		f, err := fetcher.NewEth(fetcher.Options{
			RPCURL:  chainCfg.RPCURL,
			Timeout: a.Config.Poller.FetchTimeout,
		}, a.Logger.With().Str("chain", name).Logger())
		if err != nil {
			a.Logger.Error().Err(err).Str("chain", name).Msg("chain excluded: fetcher construction failed")
			continue
		}
		if err := f.Dial(ctx); err != nil {
			a.Logger.Error().Err(err).Str("chain", name).Msg("chain excluded: endpoint not dialable")
			continue
		}

		agg := monitor.NewAggregator(name)
		if a.Config.Metrics.Enabled {
			monitor.RegisterChainMetrics(prometheus.DefaultRegisterer, agg)
		}

		chains = append(chains, monitor.ChainRunner{Name: name, Fetcher: f, Aggregator: agg})
		closers = append(closers, f.Close)
		a.Logger.Info().Str("chain", name).Msg("chain added to monitoring")
	}

	return chains, func() {
		for _, c := range closers {
			c()
		}
	}
}

func (a *App) openSinks(ctx context.Context) (sink.Sink, func(), error) {
	csvSink, err := sink.NewCSV(a.Config.Output.Dir, a.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open csv sink: %w", err)
	}

	sinks := []sink.Sink{csvSink}
	if a.Config.Database.DSN != "" {
		pool, err := sink.NewPool(ctx, a.Config.Database)
		if err != nil {
			csvSink.Close()
			return nil, nil, err
		}
		sinks = append(sinks, sink.NewPostgres(pool))
	} else {
		a.Logger.Debug().Msg("database.dsn not configured; csv sink only")
	}

	out := sink.NewMulti(sinks...)
	closer := func() {
		if err := out.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("failed to close sinks")
		}
	}
	return out, closer, nil
}

func (a *App) serveMetrics() func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: a.Config.Metrics.ListenAddr, Handler: mux}

	go func() {
		a.Logger.Info().Str("addr", srv.Addr).Msg("metrics listener started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("metrics listener failed")
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

// openStore connects to the configured database for read commands.
func (a *App) openStore(ctx context.Context) (*sink.Postgres, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database not configured")
	}

	pool, err := sink.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := sink.NewPostgres(pool)
	closer := func() {
		_ = store.Close()
	}
	return store, closer, nil
}

// ReportOptions hold parameters for rendering a delta chart.
type ReportOptions struct {
	Chain     string
	PNGPath   string
	MaxPoints int
}
