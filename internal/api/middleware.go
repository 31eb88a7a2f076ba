package api

import (
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/example/paygate/internal/logging"
	"github.com/example/paygate/internal/ratelimit"
	m "github.com/example/paygate/pkg/metrics"
)

// correlationMiddleware echoes X-Correlation-Id or assigns a new one.
func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderCorrelationID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderCorrelationID, id)
		next.ServeHTTP(w, r.WithContext(logging.WithCorrelationID(r.Context(), id)))
	})
}

// admissionMiddleware applies the rate limiter to paths under prefix. Other
// paths pass untouched.
func admissionMiddleware(l *ratelimit.Limiter, prefix string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
			d := l.TryAcquire(clientAddr(r), r.Method, ratelimit.ClassForMethod(r.Method))
			w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
			if !d.Allowed {
				m.IncRateLimited(r.Method)
				logger.WarnContext(r.Context(), "rate limit exceeded", "addr", clientAddr(r), "method", r.Method)
				w.Header().Set(HeaderRetryAfter, strconv.Itoa(d.RetryAfterSeconds))
				writeJSON(w, http.StatusTooManyRequests, MessageOut{Message: msgRateLimited})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func recoverMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					logger.ErrorContext(r.Context(), "panic serving request",
						"panic", v, "path", r.URL.Path, "stack", string(debug.Stack()))
					writeJSON(w, http.StatusInternalServerError, MessageOut{Message: msgUnexpected})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
