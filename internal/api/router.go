// Package api exposes the payment HTTP surface.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/example/paygate/internal/ratelimit"
	m "github.com/example/paygate/pkg/metrics"
)

const serviceName = "gateway"

type Deps struct {
	Payments PaymentService
	Limiter  *ratelimit.Limiter
	// PathPrefix scopes rate limiting, e.g. /v1/payment.
	PathPrefix string
	Logger     *slog.Logger
}

// NewHandler wires routes and middleware. Admission runs before routing so
// throttled requests never reach validation.
func NewHandler(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := mux.NewRouter()
	r.Use(m.Middleware(serviceName))

	// metrics & health
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"service": serviceName,
			"ts":      time.Now().UTC(),
		})
	}).Methods(http.MethodGet)

	// API
	r.HandleFunc("/v1/payment", createPaymentHandler(d.Payments, logger)).Methods(http.MethodPost)
	r.HandleFunc("/v1/payment/{id}", getPaymentHandler(d.Payments, logger)).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, MessageOut{Message: msgNotFound})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, MessageOut{Message: msgMethodNotAllowed})
	})

	var h http.Handler = r
	h = admissionMiddleware(d.Limiter, d.PathPrefix, logger)(h)
	h = correlationMiddleware(h)
	h = recoverMiddleware(logger)(h)
	return cors.AllowAll().Handler(h)
}
