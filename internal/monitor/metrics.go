package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RegisterChainMetrics exposes one chain's aggregate state as prometheus
// gauges. Registration is caller-driven so test runs can skip the default
// registry.
func RegisterChainMetrics(reg prometheus.Registerer, agg *Aggregator) {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"chain": agg.Chain()}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "blocklag",
		Name:        "sample_count",
		Help:        "Number of block observations recorded for the chain",
		ConstLabels: labels,
	}, func() float64 {
		return float64(agg.Summary().SampleCount)
	})

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "blocklag",
		Name:        "latest_block_number",
		Help:        "The latest block number observed for the chain",
		ConstLabels: labels,
	}, func() float64 {
		return float64(agg.Summary().LatestBlock)
	})

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "blocklag",
		Name:        "fetch_errors",
		Help:        "Number of transient fetch failures for the chain",
		ConstLabels: labels,
	}, func() float64 {
		return float64(agg.Summary().FetchErrors)
	})

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "blocklag",
		Name:        "stale_drops",
		Help:        "Number of duplicate or stale reads dropped for the chain",
		ConstLabels: labels,
	}, func() float64 {
		return float64(agg.Summary().StaleDrops)
	})
}
