package orchestrator

import (
	"context"
	"time"

	"github.com/example/paygate/pkg/metrics"
)

const (
	StageValidate         = "validate-payment"
	StageIdempotencyCheck = "idempotency-check"
	StageBankAuthorize    = "bank-authorize"
	StageSavePayment      = "save-payment"
	StageFindPayment      = "find-payment"
)

// Hook observes processing stages. Start is called when a stage begins and
// the returned func when it ends.
type Hook interface {
	Start(ctx context.Context, stage string) func(err error)
}

type NopHook struct{}

func (NopHook) Start(context.Context, string) func(error) { return func(error) {} }

// MetricsHook records stage durations in prometheus.
type MetricsHook struct{}

func (MetricsHook) Start(_ context.Context, stage string) func(error) {
	start := time.Now()
	return func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ObserveStage(stage, outcome, time.Since(start).Seconds())
	}
}
