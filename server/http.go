package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/erpc/walletrpc/common"
	"github.com/erpc/walletrpc/erpc"
	"github.com/erpc/walletrpc/util"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const maxRequestBodySize = 5 << 20

type HttpServer struct {
	config   *common.ServerConfig
	server   *http.Server
	registry *erpc.NetworksRegistry
	logger   *zerolog.Logger
	timeout  time.Duration
}

func NewHttpServer(logger *zerolog.Logger, cfg *common.ServerConfig, metrics *common.MetricsConfig, registry *erpc.NetworksRegistry) *HttpServer {
	lg := logger.With().Str("component", "httpServer").Logger()
	srv := &HttpServer{
		config:   cfg,
		registry: registry,
		logger:   &lg,
		timeout:  cfg.MaxTimeout.Duration(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.handleRequest)
	mux.HandleFunc("/healthz", srv.handleHealthcheck)
	if metrics != nil && util.IsTrue(metrics.Enabled) {
		mux.Handle("/metrics", promhttp.Handler())
	}

	srv.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HttpHost, cfg.HttpPort),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout.Duration(),
		WriteTimeout: cfg.WriteTimeout.Duration(),
	}

	return srv
}

func (s *HttpServer) Handler() http.Handler {
	return s.server.Handler
}

// Run serves until ctx is done, then shuts the listener down gracefully.
func (s *HttpServer) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		s.logger.Info().Str("addr", s.server.Addr).Msg("starting http server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		s.logger.Info().Msg("shutting down http server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("http server forced to shutdown")
			return err
		}
		s.logger.Info().Msg("http server stopped")
		return nil
	})
	return eg.Wait()
}

func (s *HttpServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		s.writeJson(w, http.StatusBadRequest, common.NewJsonRpcErrorResponse(nil, common.NewErrInvalidRequest(err)))
		return
	}

	nw, err := s.registry.GetNetwork(r.URL.Query().Get("network"))
	if err != nil {
		s.writeJson(w, statusCodeFor(err), common.NewJsonRpcErrorResponse(nil, err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		s.handleBatch(ctx, w, nw, trimmed)
		return
	}

	req, err := common.ParseJsonRpcRequest(trimmed)
	if err != nil {
		s.writeJson(w, http.StatusBadRequest, common.NewJsonRpcErrorResponse(nil, err))
		return
	}

	resp, err := s.forward(ctx, nw, req)
	if err != nil {
		s.writeJson(w, statusCodeFor(err), resp)
		return
	}
	s.writeJson(w, http.StatusOK, resp)
}

// handleBatch serves a JSON-RPC array. Items run concurrently, so eligible
// eth_calls in one HTTP batch land in the same aggregated call.
func (s *HttpServer) handleBatch(ctx context.Context, w http.ResponseWriter, nw *erpc.Network, body []byte) {
	var raw []map[string]interface{}
	if err := common.SonicCfg.Unmarshal(body, &raw); err != nil {
		s.writeJson(w, http.StatusBadRequest, common.NewJsonRpcErrorResponse(nil, common.NewErrInvalidRequest(err)))
		return
	}
	if len(raw) == 0 {
		s.writeJson(w, http.StatusBadRequest, common.NewJsonRpcErrorResponse(nil, common.NewErrInvalidRequest(errors.New("empty batch"))))
		return
	}

	responses := make([]*common.JsonRpcResponse, len(raw))
	var eg errgroup.Group
	for i, item := range raw {
		i, item := i, item
		eg.Go(func() error {
			itemBody, err := common.SonicCfg.Marshal(item)
			if err != nil {
				responses[i] = common.NewJsonRpcErrorResponse(item["id"], common.NewErrInvalidRequest(err))
				return nil
			}
			req, err := common.ParseJsonRpcRequest(itemBody)
			if err != nil {
				responses[i] = common.NewJsonRpcErrorResponse(item["id"], err)
				return nil
			}
			responses[i], _ = s.forward(ctx, nw, req)
			return nil
		})
	}
	_ = eg.Wait()

	s.writeJson(w, http.StatusOK, responses)
}

func (s *HttpServer) forward(ctx context.Context, nw *erpc.Network, req *common.JsonRpcRequest) (*common.JsonRpcResponse, error) {
	s.logger.Debug().Str("networkId", nw.Id()).Object("request", req).Msg("received json rpc request")

	result, err := nw.Send(ctx, req.Method, req.Params, true)
	if err != nil {
		s.logger.Debug().Err(err).Str("networkId", nw.Id()).Str("method", req.Method).Msg("request failed")
		return common.NewJsonRpcErrorResponse(req.ID, err), err
	}
	resp := &common.JsonRpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
	}
	s.logger.Trace().Str("networkId", nw.Id()).Object("response", resp).Msg("forwarding json rpc response")
	return resp, nil
}

type networkHealth struct {
	Id               string         `json:"id"`
	BatchingEnabled  bool           `json:"batchingEnabled"`
	CurrentBatchSize int            `json:"currentBatchSize"`
	Failures         map[string]int `json:"failures"`
}

func (s *HttpServer) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	networks := s.registry.Networks()
	report := make([]networkHealth, 0, len(networks))
	for _, nw := range networks {
		h := networkHealth{
			Id:               nw.Id(),
			BatchingEnabled:  nw.BatchingEnabled(),
			CurrentBatchSize: nw.CurrentBatchSize(),
			Failures:         make(map[string]int),
		}
		for _, ep := range nw.Candidates() {
			h.Failures[ep.Redacted()] = nw.FailureCount(ep)
		}
		report = append(report, h)
	}

	status := http.StatusOK
	if len(report) == 0 {
		status = http.StatusServiceUnavailable
	}
	s.writeJson(w, status, map[string]interface{}{
		"status":   http.StatusText(status),
		"networks": report,
	})
}

func (s *HttpServer) writeJson(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := common.SonicCfg.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to write response")
	}
}

// statusCodeFor keeps JSON-RPC level failures at 200, like a node would, and
// maps everything else through ErrorWithStatusCode.
func statusCodeFor(err error) int {
	var rev *common.ErrCallReverted
	var jre *common.ErrJsonRpcException
	if errors.As(err, &rev) || errors.As(err, &jre) {
		return http.StatusOK
	}
	var sc common.ErrorWithStatusCode
	if errors.As(err, &sc) {
		return sc.ErrorStatusCode()
	}
	return http.StatusInternalServerError
}
