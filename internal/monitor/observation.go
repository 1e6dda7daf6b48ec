package monitor

import "time"

// Observation is one new-block sighting on one chain. It is consumed into
// the chain's aggregate state; only the raw (block, delta) pair is retained.
type Observation struct {
	Chain       string
	BlockNumber uint64
	// ChainTime is the block timestamp as reported by the chain, whole seconds.
	ChainTime time.Time
	// ReceivedAt is the local wall clock at the moment the response arrived.
	ReceivedAt time.Time
	// Delta is ReceivedAt minus ChainTime in milliseconds. Positive means the
	// block timestamp lies in the past (honest); negative means the chain
	// stamped the block in the future (suspicious).
	Delta int64
}

// NewObservation computes the timestamp delta for a freshly fetched block.
func NewObservation(chain string, blockNumber uint64, chainTimestamp uint64, receivedAt time.Time) Observation {
	chainTime := time.Unix(int64(chainTimestamp), 0).UTC()
	return Observation{
		Chain:       chain,
		BlockNumber: blockNumber,
		ChainTime:   chainTime,
		ReceivedAt:  receivedAt,
		Delta:       receivedAt.UnixMilli() - chainTime.UnixMilli(),
	}
}

// RawDelta is one entry of a chain's append-only raw log.
type RawDelta struct {
	BlockNumber uint64
	Delta       int64
}
