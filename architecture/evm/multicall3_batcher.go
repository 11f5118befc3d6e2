package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/erpc/walletrpc/common"
	"github.com/erpc/walletrpc/resiliency"
	"github.com/erpc/walletrpc/telemetry"
	"github.com/erpc/walletrpc/util"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
)

// Sender performs one attempt of a call against the currently best endpoint.
// The aggregator wraps it in its own retry loop so it can classify every
// failed attempt.
type Sender interface {
	SendOnce(ctx context.Context, method string, params []interface{}) (json.RawMessage, error)
}

type callResult struct {
	result json.RawMessage
	err    error
}

// pendingCall is a queued eth_call together with the channel its caller waits on.
type pendingCall struct {
	target   ethcommon.Address
	callData []byte
	resultCh chan callResult
}

// Batcher aggregates eth_call requests of one network into Multicall3 batches.
// The queue is strictly FIFO: a result is matched to its caller by position.
type Batcher struct {
	networkId    string
	address      ethcommon.Address
	sender       Sender
	logger       *zerolog.Logger
	debounce     time.Duration
	minBatchSize int
	shrinkFactor float64
	maxAttempts  int

	mu        sync.Mutex
	queue     []*pendingCall
	batchSize int
	draining  bool
	scheduled *util.ScheduledTask
	shutdown  bool
}

// NewBatcher returns nil when address is nil, which means the network has no
// aggregation contract and every call goes straight to the transport.
func NewBatcher(logger *zerolog.Logger, networkId string, address *ethcommon.Address, cfg *common.MulticallConfig, sender Sender) (*Batcher, error) {
	if address == nil {
		return nil, nil
	}
	if sender == nil {
		return nil, fmt.Errorf("multicall batcher for network %s requires a sender", networkId)
	}
	if cfg == nil {
		cfg = &common.MulticallConfig{}
	}
	if err := cfg.SetDefaults(); err != nil {
		return nil, err
	}

	lg := logger.With().Str("component", "multicall3").Str("networkId", networkId).Logger()
	b := &Batcher{
		networkId:    networkId,
		address:      *address,
		sender:       sender,
		logger:       &lg,
		debounce:     cfg.DebounceWindow.Duration(),
		minBatchSize: cfg.MinBatchSize,
		shrinkFactor: cfg.ShrinkFactor,
		maxAttempts:  cfg.MaxAttempts,
		batchSize:    cfg.InitialBatchSize,
	}
	telemetry.MetricMulticallBatchSize.WithLabelValues(networkId).Set(float64(b.batchSize))

	return b, nil
}

func (b *Batcher) Address() ethcommon.Address {
	return b.address
}

func (b *Batcher) CurrentBatchSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.batchSize
}

func (b *Batcher) QueueLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// IsBatchable tells whether a call can go through the aggregation contract:
// an eth_call with to, from and data set, against the latest block, and not
// addressed to the aggregation contract itself.
func (b *Batcher) IsBatchable(method string, params []interface{}) bool {
	if b == nil || method != "eth_call" {
		return false
	}
	to, _, _, ok := parseCallObject(params)
	if !ok {
		return false
	}
	return !strings.EqualFold(to, b.address.Hex())
}

// Enqueue adds an eligible call to the queue and waits for its slot of a
// future batch. Returning early on ctx does not remove the call from the queue.
func (b *Batcher) Enqueue(ctx context.Context, params []interface{}) (json.RawMessage, error) {
	to, _, data, ok := parseCallObject(params)
	if !ok {
		return nil, common.NewErrInvalidRequest(fmt.Errorf("eth_call params are not eligible for aggregation"))
	}
	callData, err := hexutil.Decode(data)
	if err != nil {
		return nil, common.NewErrInvalidRequest(fmt.Errorf("invalid call data: %w", err))
	}

	pc := &pendingCall{
		target:   ethcommon.HexToAddress(to),
		callData: callData,
		resultCh: make(chan callResult, 1),
	}

	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		return nil, common.NewErrNetworkShutdown(b.networkId)
	}
	b.queue = append(b.queue, pc)
	queueLen := len(b.queue)
	if !b.draining && b.scheduled == nil {
		b.scheduled = util.Schedule(b.debounce, b.drain)
	}
	b.mu.Unlock()

	telemetry.MetricMulticallQueueLen.WithLabelValues(b.networkId).Set(float64(queueLen))

	select {
	case res := <-pc.resultCh:
		return res.result, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown cancels a pending drain, rejects everything still queued and makes
// later Enqueue calls fail. A batch already in flight still settles.
func (b *Batcher) Shutdown() {
	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		return
	}
	b.shutdown = true
	if b.scheduled != nil {
		b.scheduled.Cancel()
		b.scheduled = nil
	}
	pending := b.queue
	b.queue = nil
	b.mu.Unlock()

	if len(pending) > 0 {
		b.logger.Debug().Int("pending", len(pending)).Msg("rejecting queued calls on shutdown")
	}
	err := common.NewErrNetworkShutdown(b.networkId)
	for _, pc := range pending {
		pc.deliver(nil, err)
	}
	telemetry.MetricMulticallQueueLen.WithLabelValues(b.networkId).Set(0)
}

// drain runs at most once at a time. Each iteration takes a prefix of the queue
// no longer than the current batch size, so a shrink applies to the next slice.
func (b *Batcher) drain() {
	b.mu.Lock()
	b.scheduled = nil
	if b.draining || b.shutdown {
		b.mu.Unlock()
		return
	}
	b.draining = true
	b.mu.Unlock()

	for {
		b.mu.Lock()
		if len(b.queue) == 0 || b.shutdown {
			b.draining = false
			b.mu.Unlock()
			telemetry.MetricMulticallQueueLen.WithLabelValues(b.networkId).Set(0)
			return
		}
		size := b.batchSize
		if size > len(b.queue) {
			size = len(b.queue)
		}
		batch := make([]*pendingCall, size)
		copy(batch, b.queue[:size])
		b.queue = b.queue[size:]
		remaining := len(b.queue)
		b.mu.Unlock()

		telemetry.MetricMulticallQueueLen.WithLabelValues(b.networkId).Set(float64(remaining))
		b.flush(batch)
	}
}

func (b *Batcher) flush(batch []*pendingCall) {
	telemetry.MetricMulticallCallsPerBatch.WithLabelValues(b.networkId).Observe(float64(len(batch)))

	calls := make([]Multicall3Call, len(batch))
	for i, pc := range batch {
		calls[i] = Multicall3Call{Target: pc.target, CallData: pc.callData}
	}
	calldata, err := EncodeMulticall3Calldata(calls)
	if err != nil {
		b.failBatch(batch, common.NewErrInvalidRequest(err), "encode_error")
		return
	}
	params := []interface{}{
		map[string]interface{}{
			"to":   b.address.Hex(),
			"data": hexutil.Encode(calldata),
		},
		"latest",
	}

	b.logger.Debug().Int("calls", len(batch)).Int("batchSize", b.CurrentBatchSize()).Msg("sending multicall3 batch")

	// The batch outlives any single caller's ctx.
	res, err := resiliency.Attempt(context.Background(), b.maxAttempts, func(ctx context.Context, attempt int) (json.RawMessage, error) {
		r, err := b.sender.SendOnce(ctx, "eth_call", params)
		if err != nil {
			b.onAttemptFailure(err, attempt, len(batch))
		}
		return r, err
	})
	if err != nil {
		b.failBatch(batch, resiliency.CollapseErrors(err), "transport_error")
		return
	}

	var resultHex string
	if err := common.SonicCfg.Unmarshal(res, &resultHex); err != nil {
		b.failBatch(batch, common.NewErrMulticallDecode(err), "decode_error")
		return
	}
	returnData, err := hexutil.Decode(resultHex)
	if err != nil {
		b.failBatch(batch, common.NewErrMulticallDecode(err), "decode_error")
		return
	}
	decoded, err := DecodeMulticall3Result(returnData)
	if err != nil {
		b.failBatch(batch, err, "decode_error")
		return
	}

	b.settleBatch(batch, decoded.Results)
}

// settleBatch hands every caller the result at its position. A reverted
// sub-call only fails its own caller.
func (b *Batcher) settleBatch(batch []*pendingCall, results []Multicall3Result) {
	if len(results) != len(batch) {
		b.failBatch(batch, common.NewErrMulticallDecode(
			fmt.Errorf("expected %d results, got %d", len(batch), len(results)),
		), "decode_error")
		return
	}

	reverted := 0
	for i, pc := range batch {
		r := results[i]
		if !r.Success {
			reverted++
			pc.deliver(nil, common.NewErrCallReverted(
				pc.target.Hex(),
				DecodeRevertReason(r.ReturnData),
				hexutil.Encode(r.ReturnData),
			))
			continue
		}
		pc.deliver(json.RawMessage(`"`+hexutil.Encode(r.ReturnData)+`"`), nil)
	}

	if reverted > 0 {
		telemetry.MetricMulticallRevertedTotal.WithLabelValues(b.networkId).Add(float64(reverted))
	}
	telemetry.MetricMulticallBatchTotal.WithLabelValues(b.networkId, "success").Inc()
}

func (b *Batcher) failBatch(batch []*pendingCall, err error, outcome string) {
	b.logger.Warn().Err(err).Int("calls", len(batch)).Str("outcome", outcome).Msg("multicall3 batch failed")
	telemetry.MetricMulticallBatchTotal.WithLabelValues(b.networkId, outcome).Inc()
	for _, pc := range batch {
		pc.deliver(nil, err)
	}
}

func (b *Batcher) onAttemptFailure(err error, attempt, calls int) {
	class := ClassifyError(err)
	b.logger.Debug().Err(err).Int("attempt", attempt).Int("calls", calls).Str("class", class.String()).Msg("multicall3 attempt failed")
	if class.ShouldShrink() {
		b.shrink(class)
	}
}

// shrink lowers the batch size by the shrink factor down to the minimum. The
// size never grows back for the lifetime of the batcher.
func (b *Batcher) shrink(class ErrorClass) {
	b.mu.Lock()
	prev := b.batchSize
	next := int(math.Floor(float64(prev) * b.shrinkFactor))
	if next < b.minBatchSize {
		next = b.minBatchSize
	}
	if next >= prev {
		b.mu.Unlock()
		return
	}
	b.batchSize = next
	b.mu.Unlock()

	telemetry.MetricMulticallBatchSize.WithLabelValues(b.networkId).Set(float64(next))
	telemetry.MetricMulticallBatchShrinkTotal.WithLabelValues(b.networkId, class.String()).Inc()
	b.logger.Info().Int("from", prev).Int("to", next).Str("class", class.String()).Msg("shrinking multicall3 batch size")
}

// deliver never blocks: the channel is buffered for exactly one result and a
// caller that stopped waiting just leaves it there.
func (pc *pendingCall) deliver(result json.RawMessage, err error) {
	select {
	case pc.resultCh <- callResult{result: result, err: err}:
	default:
	}
}

// parseCallObject pulls to, from and data out of eth_call params. Only calls
// against the latest block qualify since a batch is executed at one block.
func parseCallObject(params []interface{}) (to, from, data string, ok bool) {
	if len(params) == 0 || len(params) > 2 {
		return "", "", "", false
	}
	if len(params) == 2 && params[1] != nil {
		tag, isStr := params[1].(string)
		if !isStr || tag != "latest" {
			return "", "", "", false
		}
	}

	switch obj := params[0].(type) {
	case map[string]interface{}:
		to, _ = obj["to"].(string)
		from, _ = obj["from"].(string)
		data, _ = obj["data"].(string)
	case map[string]string:
		to, from, data = obj["to"], obj["from"], obj["data"]
	default:
		return "", "", "", false
	}

	if to == "" || from == "" || data == "" {
		return "", "", "", false
	}
	if !ethcommon.IsHexAddress(to) {
		return "", "", "", false
	}
	return to, from, data, true
}
