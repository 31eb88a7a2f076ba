// paygate/pkg/metrics/metrics.go
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// "service" label so one query can compare gateway and simulator
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests per service",
		},
		[]string{"service", "status", "method"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "payment",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration per service",
			// dense below one second
			Buckets: []float64{
				0.01, 0.02, 0.03, 0.05, 0.08, 0.12,
				0.2, 0.3, 0.5, 0.8, 1.2, 2, 3, 5,
			},
		},
		[]string{"service", "status"},
	)

	PaymentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "processed_total",
			Help:      "Payments processed by terminal status",
		},
		[]string{"status", "currency"},
	)

	PaymentAmount = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "payment",
			Name:      "amount_minor_units",
			Help:      "Amount of authorized or declined payments in minor units",
			Buckets:   prometheus.ExponentialBuckets(100, 4, 10),
		},
		[]string{"currency"},
	)

	PaymentsRetrieved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "retrieved_total",
			Help:      "Payment lookups by id",
		},
		[]string{"found"},
	)

	BankCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bank",
			Name:      "authorization_duration_seconds",
			Help:      "Duration of the bank authorization call including retries",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	BankAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bank",
			Name:      "attempts_total",
			Help:      "Individual HTTP attempts against the bank",
		},
		[]string{"outcome"},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "bank",
			Name:      "circuit_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"name"},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by admission control",
		},
		[]string{"method"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "payment",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each orchestration stage",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal, RequestDuration,
		PaymentsProcessed, PaymentAmount, PaymentsRetrieved,
		BankCallDuration, BankAttempts, CircuitState,
		RateLimited, StageDuration,
	)
}

// Helpers so handlers stay tidy
func IncRequest(service, status, method string) {
	RequestsTotal.WithLabelValues(service, status, method).Inc()
}

func ObserveDuration(service, status string, seconds float64) {
	RequestDuration.WithLabelValues(service, status).Observe(seconds)
}

func RecordPaymentProcessed(status, currency string) {
	PaymentsProcessed.WithLabelValues(status, currency).Inc()
}

func RecordPaymentAmount(currency string, amount int64) {
	PaymentAmount.WithLabelValues(currency).Observe(float64(amount))
}

func RecordPaymentRetrieved(found bool) {
	PaymentsRetrieved.WithLabelValues(strconv.FormatBool(found)).Inc()
}

func ObserveBankCall(outcome string, seconds float64) {
	BankCallDuration.WithLabelValues(outcome).Observe(seconds)
}

func IncBankAttempt(outcome string) {
	BankAttempts.WithLabelValues(outcome).Inc()
}

func SetCircuitState(name string, state float64) {
	CircuitState.WithLabelValues(name).Set(state)
}

func IncRateLimited(method string) {
	RateLimited.WithLabelValues(method).Inc()
}

func ObserveStage(stage, outcome string, seconds float64) {
	StageDuration.WithLabelValues(stage, outcome).Observe(seconds)
}
