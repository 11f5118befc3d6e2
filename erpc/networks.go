package erpc

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/erpc/walletrpc/architecture/evm"
	"github.com/erpc/walletrpc/common"
	"github.com/erpc/walletrpc/health"
	"github.com/erpc/walletrpc/telemetry"
	"github.com/erpc/walletrpc/upstream"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Network is the single reliable connection the wallet sees for one chain.
// It owns one failover transport and, when the chain has an aggregation
// contract, one multicall batcher; both are torn down together.
type Network struct {
	NetworkId string
	Logger    *zerolog.Logger

	cfg       *common.NetworkConfig
	tracker   *health.Tracker
	transport *upstream.Transport
	batcher   *evm.Batcher

	shutdownMu sync.RWMutex
	shutdown   bool
}

type NetworkOption func(*networkOptions)

type networkOptions struct {
	clientFactory upstream.ClientFactory
	resolver      evm.AggregatorAddressResolver
}

// WithClientFactory replaces the HTTP connection factory of the transport.
func WithClientFactory(f upstream.ClientFactory) NetworkOption {
	return func(o *networkOptions) {
		o.clientFactory = f
	}
}

// WithAggregatorResolver replaces the chain id to aggregation contract lookup.
func WithAggregatorResolver(r evm.AggregatorAddressResolver) NetworkOption {
	return func(o *networkOptions) {
		o.resolver = r
	}
}

func NewNetwork(
	logger *zerolog.Logger,
	nwCfg *common.NetworkConfig,
	tracker *health.Tracker,
	opts ...NetworkOption,
) (*Network, error) {
	o := &networkOptions{}
	for _, opt := range opts {
		opt(o)
	}

	lg := logger.With().Str("networkId", nwCfg.Id).Logger()

	transport, err := upstream.NewTransport(&lg, nwCfg, tracker, o.clientFactory)
	if err != nil {
		return nil, err
	}

	address := evm.ResolveMulticall3Address(nwCfg.ChainId, nwCfg.Multicall, o.resolver)
	batcher, err := evm.NewBatcher(&lg, nwCfg.Id, address, nwCfg.Multicall, transport)
	if err != nil {
		return nil, err
	}

	if batcher != nil {
		lg.Debug().Str("multicall3", batcher.Address().Hex()).Object("config", nwCfg).Msg("network prepared with call aggregation")
	} else {
		lg.Debug().Object("config", nwCfg).Msg("network prepared without call aggregation")
	}

	return &Network{
		NetworkId: nwCfg.Id,
		Logger:    &lg,
		cfg:       nwCfg,
		tracker:   tracker,
		transport: transport,
		batcher:   batcher,
	}, nil
}

func (n *Network) Id() string {
	return n.NetworkId
}

func (n *Network) Config() *common.NetworkConfig {
	return n.cfg
}

// Send performs one RPC call. Eligible eth_calls are aggregated unless
// useBatching is false; everything else goes straight to the transport.
func (n *Network) Send(ctx context.Context, method string, params []interface{}, useBatching bool) (json.RawMessage, error) {
	n.shutdownMu.RLock()
	down := n.shutdown
	n.shutdownMu.RUnlock()
	if down {
		return nil, common.NewErrNetworkShutdown(n.NetworkId)
	}

	batched := useBatching && !evm.IsWriteMethod(method) && n.batcher.IsBatchable(method, params)
	telemetry.MetricNetworkRequestTotal.WithLabelValues(n.NetworkId, method, strconv.FormatBool(batched)).Inc()

	if batched {
		return n.batcher.Enqueue(ctx, params)
	}
	if method == "eth_sendRawTransaction" && len(params) == 1 {
		if rawTx, ok := params[0].(string); ok {
			hash, err := evm.SendRawTransaction(ctx, n.transport, rawTx)
			if err != nil {
				return nil, err
			}
			return json.RawMessage(`"` + hash.Hex() + `"`), nil
		}
	}
	return n.transport.Send(ctx, method, params)
}

// SendRawTransaction submits a signed transaction. It is never aggregated.
func (n *Network) SendRawTransaction(ctx context.Context, signedTxHex string) (ethcommon.Hash, error) {
	n.shutdownMu.RLock()
	down := n.shutdown
	n.shutdownMu.RUnlock()
	if down {
		return ethcommon.Hash{}, common.NewErrNetworkShutdown(n.NetworkId)
	}
	telemetry.MetricNetworkRequestTotal.WithLabelValues(n.NetworkId, "eth_sendRawTransaction", "false").Inc()
	return evm.SendRawTransaction(ctx, n.transport, signedTxHex)
}

// CurrentBatchSize is 0 when the network has no aggregation contract.
func (n *Network) CurrentBatchSize() int {
	if n.batcher == nil {
		return 0
	}
	return n.batcher.CurrentBatchSize()
}

func (n *Network) BatchingEnabled() bool {
	return n.batcher != nil
}

func (n *Network) Candidates() []common.Endpoint {
	return n.transport.Candidates()
}

func (n *Network) FailureCount(endpoint common.Endpoint) int {
	return n.tracker.FailureCount(endpoint)
}

// ResetAllFailures clears the shared tracker, which affects every network
// using it. Meant for tests.
func (n *Network) ResetAllFailures() {
	n.tracker.ResetAll()
}

// Shutdown cancels a pending drain and rejects queued calls. Later calls fail
// with ErrNetworkShutdown.
func (n *Network) Shutdown() {
	n.shutdownMu.Lock()
	if n.shutdown {
		n.shutdownMu.Unlock()
		return
	}
	n.shutdown = true
	n.shutdownMu.Unlock()

	if n.batcher != nil {
		n.batcher.Shutdown()
	}
	n.Logger.Debug().Msg("network shut down")
}
