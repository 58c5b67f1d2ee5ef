package observability

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CDPMetrics bundles the collectors exported for the engine's core flows:
// entrypoint outcomes and latency, liquidation-waterfall stage routing,
// and per-basket bad-debt and credit-price gauges.
type CDPMetrics struct {
	requests      *prometheus.CounterVec
	errors        *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	liqStage      *prometheus.CounterVec
	badDebt       *prometheus.GaugeVec
	creditPrice   *prometheus.GaugeVec
}

var (
	cdpMetricsOnce sync.Once
	cdpRegistry    *CDPMetrics
)

// Metrics returns the lazily-initialised CDP metrics registry.
func Metrics() *CDPMetrics {
	cdpMetricsOnce.Do(func() {
		cdpRegistry = &CDPMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdp",
				Subsystem: "engine",
				Name:      "entrypoint_total",
				Help:      "Total core entrypoint invocations segmented by entrypoint and outcome.",
			}, []string{"entrypoint", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdp",
				Subsystem: "engine",
				Name:      "entrypoint_errors_total",
				Help:      "Total core entrypoint errors segmented by entrypoint and error.",
			}, []string{"entrypoint", "error"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cdp",
				Subsystem: "engine",
				Name:      "entrypoint_duration_seconds",
				Help:      "Latency distribution for core entrypoint handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"entrypoint"}),
			liqStage: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdp",
				Subsystem: "liquidation",
				Name:      "stage_outcomes_total",
				Help:      "Liquidation waterfall stage outcomes segmented by stage and outcome.",
			}, []string{"stage", "outcome"}),
			badDebt: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "cdp",
				Subsystem: "basket",
				Name:      "bad_debt",
				Help:      "Outstanding unbacked credit recorded for a basket, in credit-asset base units.",
			}, []string{"basket_id"}),
			creditPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "cdp",
				Subsystem: "basket",
				Name:      "credit_price",
				Help:      "Current repayment target price for a basket's credit asset.",
			}, []string{"basket_id"}),
		}
		prometheus.MustRegister(
			cdpRegistry.requests,
			cdpRegistry.errors,
			cdpRegistry.latency,
			cdpRegistry.liqStage,
			cdpRegistry.badDebt,
			cdpRegistry.creditPrice,
		)
	})
	return cdpRegistry
}

// Observe records the outcome of an entrypoint invocation.
func (m *CDPMetrics) Observe(entrypoint string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	entrypoint = labelOrUnknown(entrypoint)
	outcome := "success"
	if err != nil {
		outcome = "error"
		reason := strings.TrimSpace(err.Error())
		if reason == "" {
			reason = "unknown"
		}
		m.errors.WithLabelValues(entrypoint, reason).Inc()
	}
	m.requests.WithLabelValues(entrypoint, outcome).Inc()
	m.latency.WithLabelValues(entrypoint).Observe(duration.Seconds())
}

// RecordLiquidationStage records the outcome of a single waterfall stage
// (liquidation_queue, stability_pool, router).
func (m *CDPMetrics) RecordLiquidationStage(stage, outcome string) {
	if m == nil {
		return
	}
	m.liqStage.WithLabelValues(labelOrUnknown(stage), labelOrUnknown(outcome)).Inc()
}

// SetBadDebt sets the bad-debt gauge for a basket.
func (m *CDPMetrics) SetBadDebt(basketID string, amount *big.Int) {
	if m == nil {
		return
	}
	m.badDebt.WithLabelValues(labelOrUnknown(basketID)).Set(bigToFloat(amount))
}

// SetCreditPrice sets the credit-price gauge for a basket.
func (m *CDPMetrics) SetCreditPrice(basketID string, price float64) {
	if m == nil {
		return
	}
	m.creditPrice.WithLabelValues(labelOrUnknown(basketID)).Set(price)
}

func labelOrUnknown(s string) string {
	if trimmed := strings.TrimSpace(s); trimmed != "" {
		return trimmed
	}
	return "unknown"
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
