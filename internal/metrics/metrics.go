package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parkpass",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	reservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parkpass",
			Name:      "reservations_total",
			Help:      "Reservation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	ledgerOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parkpass",
			Name:      "ledger_operations_total",
			Help:      "Ledger movements by direction and reason.",
		},
		[]string{"direction", "reason"},
	)

	refundDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parkpass",
			Name:      "refund_decisions_total",
			Help:      "Resolved refund requests by decision.",
		},
		[]string{"decision"},
	)

	balanceMismatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "parkpass",
			Name:      "balance_mismatches_total",
			Help:      "Reconciliation sweeps where stored balance diverged from the ledger.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, reservations, ledgerOps, refundDecisions, balanceMismatches)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncReservation records a reservation attempt outcome.
func IncReservation(outcome string) {
	reservations.WithLabelValues(outcome).Inc()
}

// IncLedgerOp records a ledger movement.
func IncLedgerOp(direction, reason string) {
	ledgerOps.WithLabelValues(direction, reason).Inc()
}

// IncRefundDecision records a resolved refund request.
func IncRefundDecision(decision string) {
	refundDecisions.WithLabelValues(decision).Inc()
}

// IncBalanceMismatch records a reconciliation failure.
func IncBalanceMismatch() {
	balanceMismatches.Inc()
}
