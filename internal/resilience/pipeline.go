package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/paygate/internal/bank"
	"github.com/example/paygate/internal/payment"
	"github.com/example/paygate/pkg/errors"
	"github.com/example/paygate/pkg/metrics"
)

// Authorizer performs one authorization attempt against the bank.
type Authorizer interface {
	Authorize(ctx context.Context, req bank.AuthorizationRequest) (bank.AuthorizationResponse, error)
}

// Pipeline composes the breaker around the retry around the bank call. The
// breaker sees a single outcome per Authorize regardless of attempts made.
type Pipeline struct {
	bank    Authorizer
	breaker *Breaker
	retry   RetryConfig
	logger  *slog.Logger
}

func NewPipeline(a Authorizer, breaker *Breaker, retry RetryConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{bank: a, breaker: breaker, retry: retry, logger: logger}
}

// Authorize returns StatusAuthorized or StatusDeclined. Failures carry
// errors.CodeCircuitOpen when the breaker refuses the call and
// errors.CodeBankCommunication when every attempt failed.
func (p *Pipeline) Authorize(ctx context.Context, v payment.Valid) (payment.Status, error) {
	done, err := p.breaker.Allow()
	if err != nil {
		metrics.IncBankAttempt("rejected")
		p.logger.WarnContext(ctx, "bank call not permitted", "breaker", p.breaker.Name(), "state", p.breaker.State().String())
		return 0, errors.Wrap(errors.CodeCircuitOpen, "circuit breaker is open", err)
	}

	req := bank.NewAuthorizationRequest(v)
	resp, err := Retry(ctx, p.retry, bank.Retryable,
		func(err error, next time.Duration) {
			p.logger.WarnContext(ctx, "bank call failed, retrying", "err", err, "backoff", next)
		},
		func() (bank.AuthorizationResponse, error) {
			start := time.Now()
			resp, err := p.bank.Authorize(ctx, req)
			outcome := "success"
			if err != nil {
				outcome = "failure"
			}
			metrics.IncBankAttempt(outcome)
			metrics.ObserveBankCall(outcome, time.Since(start).Seconds())
			return resp, err
		})
	done(err == nil)
	if err != nil {
		p.logger.ErrorContext(ctx, "bank authorization failed", "err", err)
		return 0, errors.Wrap(errors.CodeBankCommunication, "bank communication failed", err)
	}

	if resp.Authorized {
		return payment.StatusAuthorized, nil
	}
	return payment.StatusDeclined, nil
}
