package monitor

import (
	"math"
	"sort"
	"sync"
)

// histogramBounds are the upper bounds (inclusive, milliseconds) of the
// fixed delta histogram. The final bucket is open-ended. Bounds are chosen
// around typical L2 block cadence; exact values only affect percentile
// resolution, not correctness, since flushed raw rows keep exact deltas.
var histogramBounds = []int64{
	-30000, -10000, -5000, -2000, -1000, -500, -200, 0,
	200, 500, 1000, 2000, 5000, 10000, 30000, 60000,
}

// Summary is an internally consistent snapshot of one chain's statistics.
// All fields are value types so two summaries can be compared directly.
type Summary struct {
	Chain       string
	SampleCount int64
	PastCount   int64
	FutureCount int64
	PastPct     float64
	FuturePct   float64
	MeanDelta   float64
	StddevDelta float64
	MinDelta    int64
	MaxDelta    int64
	P50Delta    int64
	P90Delta    int64
	P99Delta    int64
	LatestBlock uint64
	FetchErrors int64
	StaleDrops  int64
}

// HasData reports whether any observation has been recorded. Derived fields
// of an empty summary are zero, never NaN.
func (s Summary) HasData() bool { return s.SampleCount > 0 }

// Aggregator accumulates running statistics and the raw delta log for one
// chain. It has exactly one writer (the chain's poller) and one reader (the
// supervisor's snapshot routine); a single mutex keeps every snapshot
// consistent with concurrent appends.
type Aggregator struct {
	chain string

	mu          sync.Mutex
	count       int64
	pastCount   int64
	futureCount int64
	sum         float64
	sumSq       float64
	minDelta    int64
	maxDelta    int64
	buckets     []int64
	raw         []RawDelta
	latestBlock uint64
	fetchErrors int64
	staleDrops  int64
}

// NewAggregator constructs an empty accumulator for the named chain.
func NewAggregator(chain string) *Aggregator {
	return &Aggregator{
		chain:   chain,
		buckets: make([]int64, len(histogramBounds)+1),
		raw:     make([]RawDelta, 0, 1024),
	}
}

// Chain returns the chain name this aggregator belongs to.
func (a *Aggregator) Chain() string { return a.chain }

// Record folds one observation into the running statistics and appends it to
// the raw log. O(1) amortised.
func (a *Aggregator) Record(obs Observation) {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := obs.Delta
	a.count++
	if d >= 0 {
		a.pastCount++
	} else {
		a.futureCount++
	}

	fd := float64(d)
	a.sum += fd
	a.sumSq += fd * fd

	if a.count == 1 {
		a.minDelta = d
		a.maxDelta = d
	} else {
		if d < a.minDelta {
			a.minDelta = d
		}
		if d > a.maxDelta {
			a.maxDelta = d
		}
	}

	a.buckets[bucketIndex(d)]++
	a.raw = append(a.raw, RawDelta{BlockNumber: obs.BlockNumber, Delta: d})
	a.latestBlock = obs.BlockNumber
}

// NoteFetchError counts a transient fetch failure for diagnostics.
func (a *Aggregator) NoteFetchError() {
	a.mu.Lock()
	a.fetchErrors++
	a.mu.Unlock()
}

// NoteStale counts a duplicate/stale read that was dropped.
func (a *Aggregator) NoteStale() {
	a.mu.Lock()
	a.staleDrops++
	a.mu.Unlock()
}

// Summary returns the derived statistics at one instant. Repeated calls with
// no interleaved Record return identical values.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.summaryLocked()
}

// Flush returns the summary plus every raw row accumulated since the last
// flush, then resets the raw buffer in place so memory stays bounded over
// long runs. Flushed rows are never handed out twice.
func (a *Aggregator) Flush() (Summary, []RawDelta) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows := make([]RawDelta, len(a.raw))
	copy(rows, a.raw)
	a.raw = a.raw[:0]

	return a.summaryLocked(), rows
}

func (a *Aggregator) summaryLocked() Summary {
	s := Summary{
		Chain:       a.chain,
		SampleCount: a.count,
		PastCount:   a.pastCount,
		FutureCount: a.futureCount,
		MinDelta:    a.minDelta,
		MaxDelta:    a.maxDelta,
		LatestBlock: a.latestBlock,
		FetchErrors: a.fetchErrors,
		StaleDrops:  a.staleDrops,
	}
	if a.count == 0 {
		return s
	}

	n := float64(a.count)
	mean := a.sum / n
	variance := a.sumSq/n - mean*mean
	if variance < 0 {
		// floating point noise on near-constant series
		variance = 0
	}

	s.PastPct = 100 * float64(a.pastCount) / n
	s.FuturePct = 100 * float64(a.futureCount) / n
	s.MeanDelta = mean
	s.StddevDelta = math.Sqrt(variance)
	s.P50Delta = a.percentileLocked(0.50)
	s.P90Delta = a.percentileLocked(0.90)
	s.P99Delta = a.percentileLocked(0.99)
	return s
}

// percentileLocked estimates the q-quantile from the histogram, reporting
// the upper bound of the bucket the rank falls in, clamped to the observed
// min/max so estimates never leave the recorded range.
func (a *Aggregator) percentileLocked(q float64) int64 {
	rank := int64(math.Ceil(q * float64(a.count)))
	if rank < 1 {
		rank = 1
	}

	var cum int64
	value := a.maxDelta
	for i, c := range a.buckets {
		cum += c
		if cum >= rank {
			if i < len(histogramBounds) {
				value = histogramBounds[i]
			} else {
				value = a.maxDelta
			}
			break
		}
	}

	if value < a.minDelta {
		value = a.minDelta
	}
	if value > a.maxDelta {
		value = a.maxDelta
	}
	return value
}

func bucketIndex(delta int64) int {
	return sort.Search(len(histogramBounds), func(i int) bool {
		return delta <= histogramBounds[i]
	})
}
