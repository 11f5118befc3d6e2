package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/erpc/walletrpc/common"
	"github.com/erpc/walletrpc/util"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const maxErrorBodyLen = 2048

// Client sends a single JSON-RPC request to one endpoint.
type Client interface {
	Endpoint() common.Endpoint
	SendRequest(ctx context.Context, req *common.JsonRpcRequest) (json.RawMessage, error)
}

// ClientFactory builds the low-level connection for an endpoint.
type ClientFactory func(endpoint common.Endpoint) (Client, error)

type HttpJsonRpcClient struct {
	endpoint   common.Endpoint
	logger     *zerolog.Logger
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHttpClientFactory returns a ClientFactory producing HTTP clients that
// share cfg. In tests the default transport is kept so it can be intercepted.
func NewHttpClientFactory(logger *zerolog.Logger, cfg *common.ClientConfig) ClientFactory {
	return func(endpoint common.Endpoint) (Client, error) {
		return NewHttpJsonRpcClient(logger, endpoint, cfg)
	}
}

func NewHttpJsonRpcClient(logger *zerolog.Logger, endpoint common.Endpoint, cfg *common.ClientConfig) (*HttpJsonRpcClient, error) {
	if cfg == nil {
		cfg = &common.ClientConfig{}
		if err := cfg.SetDefaults(); err != nil {
			return nil, err
		}
	}

	lg := logger.With().Str("endpoint", endpoint.Redacted()).Logger()
	client := &HttpJsonRpcClient{
		endpoint: endpoint,
		logger:   &lg,
	}

	timeout := common.DefaultEndpointRequestTimeout
	if cfg.Timeout != nil {
		timeout = cfg.Timeout.Duration()
	}
	if util.IsTest() {
		client.httpClient = &http.Client{Timeout: timeout}
	} else {
		client.httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		}
	}

	if cfg.RateLimitRps > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRps), cfg.RateLimitBurst)
	}

	return client, nil
}

func (c *HttpJsonRpcClient) Endpoint() common.Endpoint {
	return c.endpoint
}

func (c *HttpJsonRpcClient) SendRequest(ctx context.Context, req *common.JsonRpcRequest) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, common.NewErrLocalRateLimited(c.endpoint.Redacted(), err)
		}
	}

	requestBody, err := common.SonicCfg.Marshal(req)
	if err != nil {
		return nil, common.NewErrInvalidRequest(err)
	}

	c.logger.Trace().Object("request", req).Msg("sending json rpc POST request")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.Url, bytes.NewReader(requestBody))
	if err != nil {
		return nil, common.NewErrEndpointTransport(c.endpoint.Redacted(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.translateTransportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.translateTransportError(ctx, err)
	}

	c.logger.Trace().Int("statusCode", resp.StatusCode).Int("bodyLen", len(respBody)).Msg("received json rpc response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := respBody
		if len(body) > maxErrorBodyLen {
			body = body[:maxErrorBodyLen]
		}
		return nil, common.NewErrEndpointServerSide(c.endpoint.Redacted(), resp.StatusCode, string(body))
	}

	var jrr common.JsonRpcResponse
	if err := common.SonicCfg.Unmarshal(respBody, &jrr); err != nil {
		return nil, common.NewErrEndpointMalformedResponse(c.endpoint.Redacted(), err)
	}
	if jrr.Error != nil {
		return nil, jrr.ToError()
	}
	if len(jrr.Result) == 0 {
		return nil, common.NewErrEndpointMalformedResponse(c.endpoint.Redacted(), errors.New("response has neither result nor error"))
	}

	return jrr.Result, nil
}

func (c *HttpJsonRpcClient) translateTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return common.NewErrEndpointTimeout(c.endpoint.Redacted(), err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return common.NewErrEndpointTimeout(c.endpoint.Redacted(), err)
	}
	if ctx.Err() != nil {
		return common.NewErrEndpointTransport(c.endpoint.Redacted(), ctx.Err())
	}
	return common.NewErrEndpointTransport(c.endpoint.Redacted(), err)
}
