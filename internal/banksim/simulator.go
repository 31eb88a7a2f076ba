// Package banksim is a stand-in for the acquiring bank used in local runs and
// tests. The outcome is decided by the last digit of the card number:
// odd authorizes, even declines, zero answers 503.
package banksim

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/paygate/internal/bank"
	"github.com/example/paygate/internal/payment"
	m "github.com/example/paygate/pkg/metrics"
)

const serviceName = "bank-simulator"

const msgMissingFields = "Not all required properties were sent in the request"

type Config struct {
	// FailRate is the probability (0..1) of answering 500 regardless of card.
	FailRate float64
	Latency  time.Duration
}

type Simulator struct {
	cfg    Config
	logger *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func New(cfg Config, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{cfg: cfg, logger: logger, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (s *Simulator) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(m.Middleware(serviceName))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "service": serviceName})
	}).Methods(http.MethodGet)
	r.HandleFunc("/payments", s.authorize).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Simulator) authorize(w http.ResponseWriter, r *http.Request) {
	var req bank.AuthorizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !complete(req) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"errorMessage": msgMissingFields})
		return
	}

	if s.cfg.Latency > 0 {
		time.Sleep(s.cfg.Latency)
	}
	if s.fail() {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "upstream failed"})
		return
	}

	last := req.CardNumber[len(req.CardNumber)-1]
	switch {
	case last == '0':
		s.logger.Info("simulating bank outage", "cardNumberLastFour", payment.Card{Number: req.CardNumber}.LastFour())
		w.WriteHeader(http.StatusServiceUnavailable)
	case (last-'0')%2 == 1:
		writeJSON(w, http.StatusOK, bank.AuthorizationResponse{Authorized: true, AuthorizationCode: uuid.NewString()})
	default:
		writeJSON(w, http.StatusOK, bank.AuthorizationResponse{Authorized: false})
	}
}

func (s *Simulator) fail() bool {
	if s.cfg.FailRate <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64() < s.cfg.FailRate
}

func complete(r bank.AuthorizationRequest) bool {
	if r.CardNumber == "" || r.ExpiryDate == "" || r.Currency == "" || r.CVV == "" || r.Amount == 0 {
		return false
	}
	last := r.CardNumber[len(r.CardNumber)-1]
	return last >= '0' && last <= '9'
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
