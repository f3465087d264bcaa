// Package metrics exposes the facilitator's Prometheus instrumentation:
// pending settlement gauges (count, amount, distinct wallets), the current
// FCR level and instance, bond exposure, and settlement attempt/failure
// counters, served alongside the HTTP health endpoint.
package metrics

import (
	"math/big"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bomanaps/fil-x402-facilitator/pkg/fcr"
	"github.com/bomanaps/fil-x402-facilitator/pkg/riskledger"
)

// Registry wraps a dedicated prometheus.Registry so the facilitator's
// metrics are never polluted by whatever the default global registry picks
// up from an imported dependency.
type Registry struct {
	reg *prometheus.Registry

	pendingSettlements prometheus.Gauge
	pendingAmount      prometheus.Gauge
	distinctWallets    prometheus.Gauge
	settlementAttempts prometheus.Counter
	settlementFailures prometheus.Counter
	fcrLevel           prometheus.Gauge
	fcrInstance        prometheus.Gauge
	bondExposure       prometheus.Gauge
	bondAvailable      prometheus.Gauge
}

// New builds a Registry with every collector registered.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.pendingSettlements = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "facilitator",
		Subsystem: "settlement",
		Name:      "pending_settlements",
		Help:      "Number of non-terminal settlement records currently tracked.",
	})
	r.pendingAmount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "facilitator",
		Subsystem: "settlement",
		Name:      "pending_amount_tokens",
		Help:      "Sum of pending settlement amounts, in whole token units.",
	})
	r.distinctWallets = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "facilitator",
		Subsystem: "settlement",
		Name:      "distinct_pending_wallets",
		Help:      "Number of distinct payer wallets with a non-terminal settlement.",
	})
	r.settlementAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "facilitator",
		Subsystem: "settlement",
		Name:      "attempts_total",
		Help:      "Total settlement submit attempts, including retries.",
	})
	r.settlementFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "facilitator",
		Subsystem: "settlement",
		Name:      "failures_total",
		Help:      "Total settlements that reached a terminal failed state.",
	})
	r.fcrLevel = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "facilitator",
		Subsystem: "fcr",
		Name:      "level",
		Help:      "Current confirmation level of the active consensus instance (0-4, see fcr.Level).",
	})
	r.fcrInstance = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "facilitator",
		Subsystem: "fcr",
		Name:      "instance",
		Help:      "Current consensus instance number the monitor is tracking.",
	})
	r.bondExposure = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "facilitator",
		Subsystem: "bond",
		Name:      "exposure_tokens",
		Help:      "Committed bond exposure, in whole token units.",
	})
	r.bondAvailable = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "facilitator",
		Subsystem: "bond",
		Name:      "available_tokens",
		Help:      "Available (uncommitted) bond capacity, in whole token units.",
	})

	r.reg.MustRegister(
		r.pendingSettlements,
		r.pendingAmount,
		r.distinctWallets,
		r.settlementAttempts,
		r.settlementFailures,
		r.fcrLevel,
		r.fcrInstance,
		r.bondExposure,
		r.bondAvailable,
	)
	return r
}

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveRiskStats refreshes the settlement gauges from a ledger snapshot.
func (r *Registry) ObserveRiskStats(stats riskledger.Stats, decimals int) {
	r.pendingSettlements.Set(float64(stats.PendingSettlements))
	r.distinctWallets.Set(float64(stats.DistinctWallets))
	r.pendingAmount.Set(tokenFloat(stats.TotalPendingAmount, decimals))
}

// ObserveFCRStatus refreshes the FCR gauges from the monitor's current
// status. Callers pass ok=false when the monitor is disabled or has not
// yet observed any progress, which zeroes both gauges.
func (r *Registry) ObserveFCRStatus(status fcr.ConfirmationStatus, ok bool) {
	if !ok {
		r.fcrLevel.Set(0)
		r.fcrInstance.Set(0)
		return
	}
	r.fcrLevel.Set(float64(status.Level))
	r.fcrInstance.Set(float64(status.Instance))
}

// ObserveBond refreshes the bond gauges. Callers pass ok=false when bond
// collateral is disabled.
func (r *Registry) ObserveBond(exposure, available *big.Int, decimals int, ok bool) {
	if !ok {
		r.bondExposure.Set(0)
		r.bondAvailable.Set(0)
		return
	}
	r.bondExposure.Set(tokenFloat(exposure, decimals))
	r.bondAvailable.Set(tokenFloat(available, decimals))
}

// IncSettlementAttempt records one settlement submit attempt.
func (r *Registry) IncSettlementAttempt() {
	r.settlementAttempts.Inc()
}

// IncSettlementFailure records one settlement reaching a terminal failure.
func (r *Registry) IncSettlementFailure() {
	r.settlementFailures.Inc()
}

func tokenFloat(amount *big.Int, decimals int) float64 {
	if amount == nil {
		return 0
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	quotient := new(big.Int).Div(amount, scale)
	remainder := new(big.Int).Mod(amount, scale)
	f := new(big.Float).SetInt(quotient)
	if remainder.Sign() != 0 {
		remFloat := new(big.Float).SetInt(remainder)
		scaleFloat := new(big.Float).SetInt(scale)
		f.Add(f, new(big.Float).Quo(remFloat, scaleFloat))
	}
	out, _ := f.Float64()
	return out
}
