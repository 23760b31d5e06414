// Copyright 2025 Certen Protocol
//
// Metrics
// Prometheus counters and gauges over the validator's SubmitOperations
// call sites: first real wiring of the teacher's unused
// prometheus/client_golang dependency.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cape-protocol/cape-validator/pkg/validator"
)

// Registry holds the CAPE validator's Prometheus collectors, registered
// against a private registry so tests can construct one without clashing
// with prometheus.DefaultRegisterer.
type Registry struct {
	reg *prometheus.Registry

	BlocksSubmitted prometheus.Counter
	TxnsAccepted    prometheus.Counter
	TxnsRejected    *prometheus.CounterVec
	Erc20Deposited  *prometheus.GaugeVec
}

// NewRegistry builds and registers the validator's metric collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		BlocksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cape",
			Name:      "blocks_submitted_total",
			Help:      "Number of successful SubmitOperations calls; each advances the block height by one.",
		}),
		TxnsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cape",
			Name:      "transactions_accepted_total",
			Help:      "Number of transactions accepted into a committed block.",
		}),
		TxnsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cape",
			Name:      "transactions_rejected_total",
			Help:      "Number of operations rejected, labeled by validator error kind.",
		}, []string{"kind"}),
		Erc20Deposited: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cape",
			Name:      "erc20_deposited_total",
			Help:      "Cumulative ERC-20 deposited per asset code, as tracked by the registry.",
		}, []string{"erc20_code"}),
	}

	reg.MustRegister(r.BlocksSubmitted, r.TxnsAccepted, r.TxnsRejected, r.Erc20Deposited)
	return r
}

// Handler returns the HTTP handler serving this registry's metrics in the
// Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveSuccess records a successful SubmitOperations call that committed
// a block of txnCount accepted transactions (zero for a RegisterErc20 or
// WrapErc20 operation that carries no transactions).
func (r *Registry) ObserveSuccess(txnCount int) {
	r.BlocksSubmitted.Inc()
	r.TxnsAccepted.Add(float64(txnCount))
}

// ObserveFailure records a rejected SubmitOperations call, labeled by the
// validator.Error Kind it failed with (or "unknown" for a non-taxonomy
// error, which should never happen).
func (r *Registry) ObserveFailure(err error) {
	kind := "unknown"
	if verr, ok := err.(*validator.Error); ok {
		kind = verr.Kind.String()
	}
	r.TxnsRejected.WithLabelValues(kind).Inc()
}

// SetDeposited records the cumulative amount deposited for an ERC-20 code,
// keyed by its hex encoding.
func (r *Registry) SetDeposited(erc20CodeHex string, amount float64) {
	r.Erc20Deposited.WithLabelValues(erc20CodeHex).Set(amount)
}
