package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/erpc/walletrpc/common"
	"github.com/erpc/walletrpc/health"
	"github.com/erpc/walletrpc/resiliency"
	"github.com/erpc/walletrpc/telemetry"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
)

// Transport makes the ordered endpoint list of one network look like a single
// connection: every attempt goes to the currently best endpoint and failures
// are recorded so the next attempt may pick another one.
type Transport struct {
	networkId   string
	chainId     int64
	candidates  []common.Endpoint
	maxAttempts int

	tracker       *health.Tracker
	clientFactory ClientFactory
	logger        *zerolog.Logger

	clientMu sync.Mutex
	client   Client
}

func NewTransport(
	logger *zerolog.Logger,
	cfg *common.NetworkConfig,
	tracker *health.Tracker,
	clientFactory ClientFactory,
) (*Transport, error) {
	if tracker == nil {
		return nil, fmt.Errorf("transport for network %s requires a health tracker", cfg.Id)
	}
	candidates := cfg.Candidates()
	if len(candidates) == 0 {
		return nil, common.NewErrEmptyCandidateList()
	}
	if clientFactory == nil {
		clientFactory = NewHttpClientFactory(logger, cfg.Client)
	}

	maxAttempts := common.DefaultMaxAttempts
	if cfg.Failsafe != nil && cfg.Failsafe.Retry != nil && cfg.Failsafe.Retry.MaxAttempts > 0 {
		maxAttempts = cfg.Failsafe.Retry.MaxAttempts
	}

	lg := logger.With().Str("component", "transport").Str("networkId", cfg.Id).Logger()
	t := &Transport{
		networkId:     cfg.Id,
		chainId:       cfg.ChainId,
		candidates:    candidates,
		maxAttempts:   maxAttempts,
		tracker:       tracker,
		clientFactory: clientFactory,
		logger:        &lg,
	}
	t.publishScores()
	return t, nil
}

func (t *Transport) Candidates() []common.Endpoint {
	return t.candidates
}

// Send performs one logical call. eth_chainId is answered locally; everything
// else is retried across endpoints up to the attempt budget.
func (t *Transport) Send(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if method == "eth_chainId" {
		return t.chainIdResult(), nil
	}

	res, err := resiliency.Attempt(ctx, t.maxAttempts, func(ctx context.Context, attempt int) (json.RawMessage, error) {
		return t.SendOnce(ctx, method, params)
	})
	if err != nil {
		err = resiliency.CollapseErrors(err)
		telemetry.MetricNetworkFailedRequestTotal.WithLabelValues(t.networkId, method, errorLabel(err)).Inc()
		return nil, err
	}
	return res, nil
}

// SendOnce is a single attempt against the best endpoint at this moment. On
// failure the endpoint's failure count is bumped before the error is returned,
// so the caller's next attempt already sees the new ranking. Failures caused
// by the caller giving up, or by the local rate limiter, are not the
// endpoint's fault and leave its count untouched.
func (t *Transport) SendOnce(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	endpoint, err := t.tracker.SelectBest(t.candidates)
	if err != nil {
		return nil, err
	}
	telemetry.MetricEndpointSelectedTotal.WithLabelValues(t.networkId, endpoint.Redacted()).Inc()

	client, err := t.clientFor(endpoint)
	if err != nil {
		t.recordFailure(endpoint, method, err)
		return nil, err
	}

	req := common.NewJsonRpcRequest(method, params)
	telemetry.MetricEndpointRequestTotal.WithLabelValues(t.networkId, endpoint.Redacted(), method).Inc()

	res, err := client.SendRequest(ctx, req)
	if err != nil {
		if ctx.Err() != nil || common.HasErrorCode(err, common.ErrCodeLocalRateLimited) {
			t.logger.Debug().
				Err(err).
				Str("endpoint", endpoint.Redacted()).
				Str("method", method).
				Msg("request abandoned before endpoint answered")
			return nil, err
		}
		t.recordFailure(endpoint, method, err)
		return nil, err
	}

	return res, nil
}

func (t *Transport) recordFailure(endpoint common.Endpoint, method string, err error) {
	t.tracker.RecordFailure(endpoint)
	t.publishScores()
	telemetry.MetricEndpointFailureTotal.WithLabelValues(t.networkId, endpoint.Redacted(), method, errorLabel(err)).Inc()
	t.logger.Debug().
		Err(err).
		Str("endpoint", endpoint.Redacted()).
		Str("method", method).
		Int("failures", t.tracker.FailureCount(endpoint)).
		Msg("endpoint request failed")
}

// publishScores exports the score of every candidate as this network ranks them.
func (t *Transport) publishScores() {
	for i, ep := range t.candidates {
		telemetry.MetricEndpointScore.WithLabelValues(t.networkId, ep.Redacted()).Set(float64(t.tracker.Score(ep, i)))
	}
}

// clientFor returns the cached connection if it belongs to endpoint, otherwise
// replaces it. Only one connection is kept: the selected endpoint rarely changes.
func (t *Transport) clientFor(endpoint common.Endpoint) (Client, error) {
	t.clientMu.Lock()
	defer t.clientMu.Unlock()

	if t.client != nil && t.client.Endpoint().Url == endpoint.Url {
		return t.client, nil
	}

	client, err := t.clientFactory(endpoint)
	if err != nil {
		return nil, common.NewErrEndpointTransport(endpoint.Redacted(), err)
	}
	if t.client != nil {
		telemetry.MetricEndpointClientRebuildTotal.WithLabelValues(t.networkId).Inc()
		t.logger.Info().
			Str("from", t.client.Endpoint().Redacted()).
			Str("to", endpoint.Redacted()).
			Msg("switching endpoint connection")
	}
	t.client = client

	return client, nil
}

func (t *Transport) chainIdResult() json.RawMessage {
	// #nosec G115 -- chain ids are validated positive at config load
	return json.RawMessage(`"` + hexutil.EncodeUint64(uint64(t.chainId)) + `"`)
}

func errorLabel(err error) string {
	if se, ok := err.(common.StandardError); ok {
		return se.CodeChain()
	}
	return "ErrUnknown"
}
