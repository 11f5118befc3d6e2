package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MetricEndpointRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletrpc",
		Name:      "endpoint_request_total",
		Help:      "Total number of requests sent to endpoints.",
	}, []string{"network", "endpoint", "method"})

	MetricEndpointFailureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletrpc",
		Name:      "endpoint_failure_total",
		Help:      "Total number of failed requests recorded against endpoints.",
	}, []string{"network", "endpoint", "method", "error"})

	MetricEndpointSelectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletrpc",
		Name:      "endpoint_selected_total",
		Help:      "Number of times an endpoint was picked as the best candidate.",
	}, []string{"network", "endpoint"})

	MetricEndpointScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "walletrpc",
		Name:      "endpoint_score",
		Help:      "Current priority score of each endpoint within a network, lower is preferred.",
	}, []string{"network", "endpoint"})

	MetricEndpointClientRebuildTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletrpc",
		Name:      "endpoint_client_rebuild_total",
		Help:      "Number of times the cached endpoint connection was rebuilt because the selected endpoint changed.",
	}, []string{"network"})

	MetricNetworkRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletrpc",
		Name:      "network_request_total",
		Help:      "Total number of logical requests received per network.",
	}, []string{"network", "method", "batched"})

	MetricNetworkFailedRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletrpc",
		Name:      "network_failed_request_total",
		Help:      "Total number of logical requests that failed after all retries.",
	}, []string{"network", "method", "error"})

	MetricMulticallBatchSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "walletrpc",
		Name:      "multicall_batch_size",
		Help:      "Current maximum number of calls aggregated into one multicall.",
	}, []string{"network"})

	MetricMulticallBatchShrinkTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletrpc",
		Name:      "multicall_batch_shrink_total",
		Help:      "Number of times the multicall batch size was reduced after a capacity error.",
	}, []string{"network", "class"})

	MetricMulticallQueueLen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "walletrpc",
		Name:      "multicall_queue_len",
		Help:      "Number of eth_call requests waiting to be aggregated.",
	}, []string{"network"})

	MetricMulticallBatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletrpc",
		Name:      "multicall_batch_total",
		Help:      "Number of aggregated calls sent, by outcome.",
	}, []string{"network", "outcome"})

	MetricMulticallCallsPerBatch = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "walletrpc",
		Name:      "multicall_calls_per_batch",
		Help:      "Number of calls carried by each aggregated call.",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 200, 300, 500},
	}, []string{"network"})

	MetricMulticallRevertedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletrpc",
		Name:      "multicall_reverted_total",
		Help:      "Number of individual calls that reverted inside an aggregated call.",
	}, []string{"network"})
)
