package observability

import (
	"math"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type rpcMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

type exchangeMetrics struct {
	exchanges    *prometheus.CounterVec
	partialFills prometheus.Counter
	burned       prometheus.Counter
	granted      prometheus.Counter
	capValue     prometheus.Gauge
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics

	exchangeMetricsOnce sync.Once
	exchangeRegistry    *exchangeMetrics
)

// RPCMetrics returns the lazily-initialised registry recording JSON-RPC
// handler activity.
func RPCMetrics() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "votex",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "votex",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "votex",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
		)
	})
	return rpcRegistry
}

// Observe records a completed request. code is the JSON-RPC error code, zero
// for success.
func (m *rpcMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, strconv.Itoa(code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// ExchangeMetrics returns the registry tracking settled exchanges.
func ExchangeMetrics() *exchangeMetrics {
	exchangeMetricsOnce.Do(func() {
		exchangeRegistry = &exchangeMetrics{
			exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "votex",
				Subsystem: "exchange",
				Name:      "exchanges_total",
				Help:      "Count of exchange submissions segmented by outcome.",
			}, []string{"outcome"}),
			partialFills: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "votex",
				Subsystem: "exchange",
				Name:      "partial_fills_total",
				Help:      "Count of exchanges clamped by the voting power cap.",
			}),
			burned: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "votex",
				Subsystem: "exchange",
				Name:      "utility_burned_total",
				Help:      "Cumulative utility tokens burned, in whole tokens.",
			}),
			granted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "votex",
				Subsystem: "exchange",
				Name:      "power_granted_total",
				Help:      "Cumulative voting power granted, in whole units.",
			}),
			capValue: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "votex",
				Subsystem: "exchange",
				Name:      "voting_power_cap",
				Help:      "Current per-holder voting power ceiling, in whole units.",
			}),
		}
		prometheus.MustRegister(
			exchangeRegistry.exchanges,
			exchangeRegistry.partialFills,
			exchangeRegistry.burned,
			exchangeRegistry.granted,
			exchangeRegistry.capValue,
		)
	})
	return exchangeRegistry
}

// RecordExchange tracks a settled exchange and its amounts.
func (m *exchangeMetrics) RecordExchange(burned, granted *big.Int, partial bool) {
	if m == nil {
		return
	}
	m.exchanges.WithLabelValues("settled").Inc()
	if partial {
		m.partialFills.Inc()
	}
	m.burned.Add(tokensAsFloat(burned))
	m.granted.Add(tokensAsFloat(granted))
}

// RecordRejection tracks a rejected exchange submission.
func (m *exchangeMetrics) RecordRejection() {
	if m == nil {
		return
	}
	m.exchanges.WithLabelValues("rejected").Inc()
}

// SetCap publishes the active voting power ceiling.
func (m *exchangeMetrics) SetCap(cap *big.Int) {
	if m == nil {
		return
	}
	m.capValue.Set(tokensAsFloat(cap))
}

// tokensAsFloat converts a base-unit amount into whole tokens for metric
// export. Precision loss is acceptable here.
func tokensAsFloat(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), big.NewFloat(1e18)).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}
