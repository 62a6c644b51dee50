// Package observability exposes prometheus instrumentation for the engines
// and an event sink that feeds it.
package observability

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"tidechain/core/events"
)

// EngineMetrics is the lazily-initialised registry recording engine activity.
type EngineMetrics struct {
	ledgerOps       *prometheus.CounterVec
	vaultDeposits   prometheus.Counter
	vaultRedeems    prometheus.Counter
	accrualClamped  prometheus.Counter
	rateChanges     prometheus.Counter
	bridgeSent      prometheus.Counter
	bridgeReceived  prometheus.Counter
	bridgeRejected  *prometheus.CounterVec
	rebaseDelta     prometheus.Summary
	activeRateGauge prometheus.Gauge
}

var (
	engineOnce sync.Once
	engineReg  *EngineMetrics
)

// Metrics returns the shared engine metrics registry, registering collectors
// on first use.
func Metrics() *EngineMetrics {
	engineOnce.Do(func() {
		engineReg = &EngineMetrics{
			ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tide",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger mutations segmented by operation.",
			}, []string{"op"}),
			vaultDeposits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tide",
				Subsystem: "vault",
				Name:      "deposits_total",
				Help:      "Accepted vault deposits.",
			}),
			vaultRedeems: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tide",
				Subsystem: "vault",
				Name:      "redeems_total",
				Help:      "Completed vault redemptions.",
			}),
			accrualClamped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tide",
				Subsystem: "vault",
				Name:      "accruals_clamped_total",
				Help:      "Accruals reduced by the circuit breaker.",
			}),
			rateChanges: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tide",
				Subsystem: "vault",
				Name:      "rate_changes_total",
				Help:      "Tier-driven offered-rate step downs.",
			}),
			bridgeSent: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tide",
				Subsystem: "bridge",
				Name:      "sent_total",
				Help:      "Outbound transfer envelopes dispatched.",
			}),
			bridgeReceived: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tide",
				Subsystem: "bridge",
				Name:      "received_total",
				Help:      "Inbound transfer envelopes applied.",
			}),
			bridgeRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tide",
				Subsystem: "bridge",
				Name:      "rejected_total",
				Help:      "Inbound envelopes dropped by validation.",
			}, []string{"reason"}),
			rebaseDelta: prometheus.NewSummary(prometheus.SummaryOpts{
				Namespace: "tide",
				Subsystem: "ledger",
				Name:      "rebase_delta_wei",
				Help:      "Distribution of rebase deltas applied.",
			}),
			activeRateGauge: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "tide",
				Subsystem: "vault",
				Name:      "active_rate_bps",
				Help:      "Rate currently offered to new deposits.",
			}),
		}
		prometheus.MustRegister(
			engineReg.ledgerOps,
			engineReg.vaultDeposits,
			engineReg.vaultRedeems,
			engineReg.accrualClamped,
			engineReg.rateChanges,
			engineReg.bridgeSent,
			engineReg.bridgeReceived,
			engineReg.bridgeRejected,
			engineReg.rebaseDelta,
			engineReg.activeRateGauge,
		)
	})
	return engineReg
}

// MetricsEmitter is an events.Emitter that records engine events into the
// prometheus registry. It chains to an optional next emitter.
type MetricsEmitter struct {
	metrics *EngineMetrics
	next    events.Emitter
}

// NewMetricsEmitter constructs an emitter over the shared registry. next may
// be nil.
func NewMetricsEmitter(next events.Emitter) *MetricsEmitter {
	if next == nil {
		next = events.NoopEmitter{}
	}
	return &MetricsEmitter{metrics: Metrics(), next: next}
}

// Emit implements events.Emitter.
func (m *MetricsEmitter) Emit(evt events.Event) {
	switch e := evt.(type) {
	case events.LedgerMinted:
		m.metrics.ledgerOps.WithLabelValues("mint").Inc()
	case events.LedgerBurned:
		m.metrics.ledgerOps.WithLabelValues("burn").Inc()
	case events.LedgerTransferred:
		m.metrics.ledgerOps.WithLabelValues("transfer").Inc()
	case events.LedgerRebased:
		m.metrics.ledgerOps.WithLabelValues("rebase").Inc()
		m.metrics.rebaseDelta.Observe(bigFloat(e.Delta))
	case events.VaultDeposit:
		m.metrics.vaultDeposits.Inc()
	case events.VaultRedeem:
		m.metrics.vaultRedeems.Inc()
	case events.VaultInterestAccrued:
		if e.Clamped {
			m.metrics.accrualClamped.Inc()
		}
	case events.VaultRateChanged:
		m.metrics.rateChanges.Inc()
		m.metrics.activeRateGauge.Set(float64(e.NewRateBps))
	case events.BridgeSent:
		m.metrics.bridgeSent.Inc()
	case events.BridgeReceived:
		m.metrics.bridgeReceived.Inc()
	case events.BridgeRejected:
		m.metrics.bridgeRejected.WithLabelValues(e.Reason).Inc()
	}
	m.next.Emit(evt)
}

func bigFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
