package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// ErrNotConfigured indicates the fetcher is missing an RPC URL.
var ErrNotConfigured = errors.New("fetcher: rpc url not configured")

// Header carries the two latest-block fields the monitor cares about.
type Header struct {
	Number uint64
	// Time is the chain-reported block timestamp in seconds since epoch.
	Time uint64
}

// HeaderFetcher retrieves the latest block header from one chain endpoint.
// A single call performs exactly one network round trip and never retries;
// retry policy belongs to the poller.
type HeaderFetcher interface {
	LatestHeader(ctx context.Context) (Header, error)
}

// Options parameterise the RPC-backed fetcher.
type Options struct {
	RPCURL  string
	Timeout time.Duration
}

// Eth provides latest-header access via an Ethereum JSON-RPC endpoint.
type Eth struct {
	opts      Options
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewEth builds a new header fetcher for one endpoint. The endpoint URL is
// validated here; dialing happens lazily on first fetch.
func NewEth(opts Options, logger zerolog.Logger) (*Eth, error) {
	if opts.RPCURL == "" {
		return nil, ErrNotConfigured
	}
	return &Eth{opts: opts, logger: logger.With().Str("component", "header_fetcher").Logger()}, nil
}

// LatestHeader fetches the chain tip header, bounded by the configured
// per-fetch timeout.
func (e *Eth) LatestHeader(ctx context.Context) (Header, error) {
	timeout := e.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := e.getClient(ctx)
	if err != nil {
		return Header{}, err
	}

	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return Header{}, err
	}
	if head.Number == nil {
		return Header{}, fmt.Errorf("latest header missing block number")
	}

	return Header{Number: head.Number.Uint64(), Time: head.Time}, nil
}

func (e *Eth) getClient(ctx context.Context) (*ethclient.Client, error) {
	e.clientMux.Lock()
	defer e.clientMux.Unlock()

	if e.client != nil {
		return e.client, nil
	}

	client, err := ethclient.DialContext(ctx, e.opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", e.opts.RPCURL, err)
	}
	e.client = client
	return client, nil
}

// Close releases the underlying RPC connection.
func (e *Eth) Close() {
	e.clientMux.Lock()
	defer e.clientMux.Unlock()
	if e.client != nil {
		e.client.Close()
		e.client = nil
	}
}

var _ HeaderFetcher = (*Eth)(nil)

// Dial eagerly establishes the connection so that a malformed endpoint is
// rejected at startup rather than on the first poll tick.
func (e *Eth) Dial(ctx context.Context) error {
	_, err := e.getClient(ctx)
	return err
}

// Kind classifies a fetch failure for logging and diagnostics. Every kind is
// transient from the poller's point of view.
type Kind string

const (
	KindTimeout    Kind = "timeout"
	KindConnection Kind = "connection"
	KindMalformed  Kind = "malformed"
	KindRPC        Kind = "rpc"
)

// rpcError matches go-ethereum's rpc.Error without importing the package
// solely for an interface assertion.
type rpcError interface {
	Error() string
	ErrorCode() int
}

// Classify maps a fetch error onto its failure kind.
func Classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var re rpcError
	if errors.As(err, &re) {
		return KindRPC
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return KindMalformed
	}

	return KindConnection
}

// RPCErrorCode extracts the JSON-RPC error code when the failure came from
// the remote node itself.
func RPCErrorCode(err error) (int, bool) {
	var re rpcError
	if errors.As(err, &re) {
		return re.ErrorCode(), true
	}
	return 0, false
}
