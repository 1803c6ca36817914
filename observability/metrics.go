package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	airdropMetricsOnce sync.Once
	airdropRegistry    *AirdropMetrics

	payoutMetricsOnce sync.Once
	payoutRegistry    *PayoutdMetrics
)

// ModuleMetrics returns the lazily-initialised registry recording API
// activity per route.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "refdrop",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module, route and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "refdrop",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, route and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "refdrop",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "refdrop",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by rate limiting.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// AirdropMetrics wraps collectors tracking the redemption engine.
type AirdropMetrics struct {
	redemptions   *prometheus.CounterVec
	queued        *prometheus.CounterVec
	queuedAmount  *prometheus.CounterVec
	forfeited     prometheus.Counter
	acknowledged  prometheus.Counter
	codesMinted   prometheus.Counter
	poolRemaining prometheus.Gauge
	supply        prometheus.Gauge
	emergencyStop prometheus.Gauge
	resolve       prometheus.Histogram
	persistFailed prometheus.Counter
}

// Airdrop exposes the metrics registry for the airdrop engine.
func Airdrop() *AirdropMetrics {
	airdropMetricsOnce.Do(func() {
		airdropRegistry = &AirdropMetrics{
			redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "refdrop",
				Subsystem: "airdrop",
				Name:      "redemptions_total",
				Help:      "Redemption attempts segmented by outcome kind.",
			}, []string{"outcome"}),
			queued: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "refdrop",
				Subsystem: "airdrop",
				Name:      "payouts_queued_total",
				Help:      "Payout ledger entries appended, segmented by reason.",
			}, []string{"reason"}),
			queuedAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "refdrop",
				Subsystem: "airdrop",
				Name:      "payouts_queued_tokens_total",
				Help:      "Tokens queued on the payout ledger, segmented by reason.",
			}, []string{"reason"}),
			forfeited: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "refdrop",
				Subsystem: "airdrop",
				Name:      "rewards_forfeited_tokens_total",
				Help:      "Referral reward tokens dropped because the parent had no address.",
			}),
			acknowledged: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "refdrop",
				Subsystem: "airdrop",
				Name:      "payouts_acknowledged_total",
				Help:      "Payout ledger entries marked transferred.",
			}),
			codesMinted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "refdrop",
				Subsystem: "airdrop",
				Name:      "codes_minted_total",
				Help:      "Codes minted into the referral tree.",
			}),
			poolRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "refdrop",
				Subsystem: "airdrop",
				Name:      "code_pool_remaining",
				Help:      "Codes left in the pool.",
			}),
			supply: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "refdrop",
				Subsystem: "airdrop",
				Name:      "supply_remaining_tokens",
				Help:      "Undistributed tokens in the supply ledger.",
			}),
			emergencyStop: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "refdrop",
				Subsystem: "airdrop",
				Name:      "emergency_stop_engaged",
				Help:      "Indicates whether the emergency stop is engaged (1) or not (0).",
			}),
			resolve: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "refdrop",
				Subsystem: "airdrop",
				Name:      "address_resolution_seconds",
				Help:      "Latency of address resolution during redemption.",
				Buckets:   prometheus.DefBuckets,
			}),
			persistFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "refdrop",
				Subsystem: "airdrop",
				Name:      "snapshot_persist_failures_total",
				Help:      "State snapshots that could not be written after a mutation.",
			}),
		}
		prometheus.MustRegister(
			airdropRegistry.redemptions,
			airdropRegistry.queued,
			airdropRegistry.queuedAmount,
			airdropRegistry.forfeited,
			airdropRegistry.acknowledged,
			airdropRegistry.codesMinted,
			airdropRegistry.poolRemaining,
			airdropRegistry.supply,
			airdropRegistry.emergencyStop,
			airdropRegistry.resolve,
			airdropRegistry.persistFailed,
		)
	})
	return airdropRegistry
}

// RecordRedemption counts a redemption attempt. An empty kind is a success.
func (m *AirdropMetrics) RecordRedemption(kind string) {
	if m == nil {
		return
	}
	if kind = strings.TrimSpace(kind); kind == "" {
		kind = "ok"
	}
	m.redemptions.WithLabelValues(kind).Inc()
}

// RecordQueued counts a payout ledger append.
func (m *AirdropMetrics) RecordQueued(reason string, amount uint64) {
	if m == nil {
		return
	}
	m.queued.WithLabelValues(reason).Inc()
	m.queuedAmount.WithLabelValues(reason).Add(float64(amount))
}

// RecordForfeited counts referral tokens that could not be queued.
func (m *AirdropMetrics) RecordForfeited(amount uint64) {
	if m == nil {
		return
	}
	m.forfeited.Add(float64(amount))
}

// RecordPersistFailure counts a snapshot write that failed.
func (m *AirdropMetrics) RecordPersistFailure() {
	if m == nil {
		return
	}
	m.persistFailed.Inc()
}

// RecordAcknowledged counts entries flipped to transferred.
func (m *AirdropMetrics) RecordAcknowledged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.acknowledged.Add(float64(n))
}

// RecordCodesMinted counts codes added to the tree.
func (m *AirdropMetrics) RecordCodesMinted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.codesMinted.Add(float64(n))
}

// SetPoolRemaining updates the pool gauge.
func (m *AirdropMetrics) SetPoolRemaining(n int) {
	if m == nil {
		return
	}
	m.poolRemaining.Set(float64(n))
}

// SetSupplyRemaining updates the supply gauge.
func (m *AirdropMetrics) SetSupplyRemaining(tokens uint64) {
	if m == nil {
		return
	}
	m.supply.Set(float64(tokens))
}

// SetEmergencyStop toggles the emergency_stop_engaged gauge.
func (m *AirdropMetrics) SetEmergencyStop(engaged bool) {
	if m == nil {
		return
	}
	m.emergencyStop.Set(boolGauge(engaged))
}

// ObserveResolve records address resolution latency.
func (m *AirdropMetrics) ObserveResolve(d time.Duration) {
	if m == nil {
		return
	}
	m.resolve.Observe(d.Seconds())
}

// PayoutdMetrics wraps collectors tracking the ledger drainer.
type PayoutdMetrics struct {
	cycleLatency *prometheus.HistogramVec
	disbursed    *prometheus.CounterVec
	errors       *prometheus.CounterVec
	pending      prometheus.Gauge
	pauseEngaged prometheus.Gauge
}

// Payoutd exposes the metrics registry for payoutd.
func Payoutd() *PayoutdMetrics {
	payoutMetricsOnce.Do(func() {
		payoutRegistry = &PayoutdMetrics{
			cycleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "refdrop",
				Subsystem: "payoutd",
				Name:      "cycle_duration_seconds",
				Help:      "Latency distribution for drain cycles.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"asset"}),
			disbursed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "refdrop",
				Subsystem: "payoutd",
				Name:      "disbursed_tokens_total",
				Help:      "Tokens sent to payout addresses.",
			}, []string{"asset"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "refdrop",
				Subsystem: "payoutd",
				Name:      "errors_total",
				Help:      "Count of drain failures segmented by asset and reason.",
			}, []string{"asset", "reason"}),
			pending: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "refdrop",
				Subsystem: "payoutd",
				Name:      "pending_entries",
				Help:      "Untransferred entries seen by the last export.",
			}),
			pauseEngaged: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "refdrop",
				Subsystem: "payoutd",
				Name:      "pause_engaged",
				Help:      "Indicates whether the drainer pause guard is active (1) or not (0).",
			}),
		}
		prometheus.MustRegister(
			payoutRegistry.cycleLatency,
			payoutRegistry.disbursed,
			payoutRegistry.errors,
			payoutRegistry.pending,
			payoutRegistry.pauseEngaged,
		)
	})
	return payoutRegistry
}

// ObserveCycle records the duration of a drain cycle.
func (m *PayoutdMetrics) ObserveCycle(asset string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycleLatency.WithLabelValues(labelAsset(asset)).Observe(d.Seconds())
}

// RecordDisbursed counts tokens sent.
func (m *PayoutdMetrics) RecordDisbursed(asset string, amount uint64) {
	if m == nil {
		return
	}
	m.disbursed.WithLabelValues(labelAsset(asset)).Add(float64(amount))
}

// RecordError increments the error counter for the supplied reason.
func (m *PayoutdMetrics) RecordError(asset, reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.errors.WithLabelValues(labelAsset(asset), reason).Inc()
}

// SetPending records how many entries the last export returned.
func (m *PayoutdMetrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// SetPause toggles the pause_engaged gauge.
func (m *PayoutdMetrics) SetPause(engaged bool) {
	if m == nil {
		return
	}
	m.pauseEngaged.Set(boolGauge(engaged))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}
