// Package resilience guards the bank authorization call with a circuit breaker
// and a bounded retry.
package resilience

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/example/paygate/pkg/metrics"
)

type BreakerConfig struct {
	WindowSize           int
	FailureRateThreshold float64 // percent
	WaitDuration         time.Duration
	HalfOpenCalls        int
}

// Breaker is a gobreaker two-step breaker whose trip decision is taken over a
// count-based sliding window instead of gobreaker's cumulative counts.
type Breaker struct {
	cb        *gobreaker.TwoStepCircuitBreaker
	window    *Window
	threshold float64
}

func NewBreaker(name string, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Breaker{
		window:    NewWindow(cfg.WindowSize),
		threshold: cfg.FailureRateThreshold,
	}
	halfOpen := cfg.HalfOpenCalls
	if halfOpen < 1 {
		halfOpen = 1
	}
	b.cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(halfOpen),
		Timeout:     cfg.WaitDuration,
		ReadyToTrip: func(gobreaker.Counts) bool {
			return b.window.Full() && b.window.FailureRate() >= b.threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.window.Reset()
			metrics.SetCircuitState(name, stateValue(to))
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	metrics.SetCircuitState(name, stateValue(gobreaker.StateClosed))
	return b
}

// Allow asks for permission to make one call. The returned done must be called
// exactly once with the call outcome. The error is gobreaker.ErrOpenState or
// gobreaker.ErrTooManyRequests when the call is not permitted.
func (b *Breaker) Allow() (func(success bool), error) {
	epoch := b.window.Epoch()
	done, err := b.cb.Allow()
	if err != nil {
		return nil, err
	}
	// outcomes only count towards tripping when the call was permitted while
	// closed and no state change happened since; half-open is decided by
	// gobreaker's consecutive trial successes.
	closed := b.cb.State() == gobreaker.StateClosed
	return func(success bool) {
		if closed {
			b.window.RecordIn(epoch, success)
		}
		done(success)
	}, nil
}

func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func (b *Breaker) Name() string { return b.cb.Name() }

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return 0
}
