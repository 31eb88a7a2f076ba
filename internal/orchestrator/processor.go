// Package orchestrator implements the payment use cases: validate, dedupe by
// idempotency key, authorize with the bank, persist and publish.
package orchestrator

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/example/paygate/internal/events"
	"github.com/example/paygate/internal/logging"
	"github.com/example/paygate/internal/payment"
	"github.com/example/paygate/internal/store"
	"github.com/example/paygate/internal/validation"
	"github.com/example/paygate/pkg/errors"
	"github.com/example/paygate/pkg/metrics"
)

// Outcome is either Completed or Rejected.
type Outcome interface {
	isOutcome()
}

// Completed carries a persisted Authorized or Declined payment. Replayed is
// set when the payment was produced by an earlier request with the same
// idempotency key.
type Completed struct {
	Payment  payment.Payment
	Replayed bool
}

// Rejected carries validation failures. Nothing was persisted.
type Rejected struct {
	Errors []validation.FieldError
}

func (Completed) isOutcome() {}
func (Rejected) isOutcome()  {}

// Authorizer is the resilient bank call.
type Authorizer interface {
	Authorize(ctx context.Context, v payment.Valid) (payment.Status, error)
}

type Processor struct {
	validator *validation.Validator
	bank      Authorizer
	store     store.Store
	events    events.Publisher
	hook      Hook
	logger    *slog.Logger
	newID     func() uuid.UUID

	inflight singleflight.Group
}

type Option func(*Processor)

func WithHook(h Hook) Option                    { return func(p *Processor) { p.hook = h } }
func WithPublisher(pub events.Publisher) Option { return func(p *Processor) { p.events = pub } }
func WithLogger(l *slog.Logger) Option          { return func(p *Processor) { p.logger = l } }
func WithIDGenerator(f func() uuid.UUID) Option { return func(p *Processor) { p.newID = f } }

func New(v *validation.Validator, bank Authorizer, s store.Store, opts ...Option) *Processor {
	p := &Processor{
		validator: v,
		bank:      bank,
		store:     s,
		events:    events.Noop{},
		hook:      NopHook{},
		logger:    slog.Default(),
		newID:     uuid.New,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process runs a payment request to a terminal outcome. Errors are coded
// DOWNSTREAM_UNAVAILABLE (wrapping CIRCUIT_OPEN or BANK_COMMUNICATION) or
// UNEXPECTED.
//
// A non-empty idempotency key with a stored payment returns that payment
// before validation. Requests sharing a key are serialized within the process:
// a second request either joins the in-flight one or finds its stored result,
// so the bank is called at most once per key.
func (p *Processor) Process(ctx context.Context, req payment.Request, idempotencyKey string) (Outcome, error) {
	// a stored result for the key wins over whatever the new body says
	if idempotencyKey != "" {
		existing, found, err := p.lookup(ctx, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if found {
			p.logger.InfoContext(logging.WithPaymentID(ctx, existing.ID.String()), "idempotent replay")
			return Completed{Payment: existing, Replayed: true}, nil
		}
	}

	var (
		valid payment.Valid
		errs  []validation.FieldError
	)
	p.stage(ctx, StageValidate, func() error {
		valid, errs = p.validator.Validate(req)
		return nil
	})
	if len(errs) > 0 {
		metrics.RecordPaymentProcessed(payment.StatusRejected.String(), currencyLabel(req.Currency))
		p.logger.InfoContext(ctx, "payment rejected", "errors", len(errs))
		return Rejected{Errors: errs}, nil
	}

	// the authorization is not cancelled with the caller once started
	work := context.WithoutCancel(ctx)
	if idempotencyKey == "" {
		pay, err := p.authorizeAndSave(work, valid, "")
		if err != nil {
			return nil, err
		}
		return Completed{Payment: pay}, nil
	}

	// the second lookup covers a request that completed after the first one
	leader := false
	v, err, _ := p.inflight.Do(idempotencyKey, func() (any, error) {
		leader = true
		existing, found, err := p.lookup(work, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if found {
			return Completed{Payment: existing, Replayed: true}, nil
		}
		pay, err := p.authorizeAndSave(work, valid, idempotencyKey)
		if err != nil {
			return nil, err
		}
		return Completed{Payment: pay}, nil
	})
	if err != nil {
		return nil, err
	}
	out := v.(Completed)
	if !leader {
		out.Replayed = true
	}
	if out.Replayed {
		p.logger.InfoContext(logging.WithPaymentID(ctx, out.Payment.ID.String()), "idempotent replay")
	}
	return out, nil
}

// Get returns a persisted payment. Unknown ids yield NOT_FOUND.
func (p *Processor) Get(ctx context.Context, id uuid.UUID) (payment.Payment, error) {
	var (
		pay payment.Payment
		err error
	)
	p.stage(ctx, StageFindPayment, func() error {
		pay, err = p.store.FindByID(ctx, id)
		if stderrors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	})
	if stderrors.Is(err, store.ErrNotFound) {
		metrics.RecordPaymentRetrieved(false)
		return payment.Payment{}, errors.Wrap(errors.CodeNotFound, "payment not found", err)
	}
	if err != nil {
		return payment.Payment{}, errors.Wrap(errors.CodeUnexpected, "find payment", err)
	}
	metrics.RecordPaymentRetrieved(true)
	return pay, nil
}

func (p *Processor) lookup(ctx context.Context, key string) (payment.Payment, bool, error) {
	var (
		pay payment.Payment
		err error
	)
	p.stage(ctx, StageIdempotencyCheck, func() error {
		pay, err = p.store.FindByIdempotencyKey(ctx, key)
		if stderrors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	})
	switch {
	case stderrors.Is(err, store.ErrNotFound):
		return payment.Payment{}, false, nil
	case err != nil:
		return payment.Payment{}, false, errors.Wrap(errors.CodeUnexpected, "idempotency lookup", err)
	}
	return pay, true, nil
}

func (p *Processor) authorizeAndSave(ctx context.Context, v payment.Valid, key string) (payment.Payment, error) {
	var status payment.Status
	err := p.stage(ctx, StageBankAuthorize, func() error {
		var err error
		status, err = p.bank.Authorize(ctx, v)
		return err
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "bank authorization unavailable", "code", errors.CodeOf(err), "err", err)
		return payment.Payment{}, errors.Wrap(errors.CodeDownstreamUnavailable, "bank service unavailable", err)
	}

	pay := payment.Payment{
		ID:                 p.newID(),
		Status:             status,
		CardNumberLastFour: v.Card.LastFour(),
		ExpiryMonth:        v.ExpiryMonth,
		ExpiryYear:         v.ExpiryYear,
		Currency:           v.Currency,
		Amount:             v.Amount,
		IdempotencyKey:     key,
	}
	ctx = logging.WithPaymentID(ctx, pay.ID.String())

	if err := p.stage(ctx, StageSavePayment, func() error { return p.store.Save(ctx, pay) }); err != nil {
		return payment.Payment{}, errors.Wrap(errors.CodeUnexpected, "save payment", err)
	}

	metrics.RecordPaymentProcessed(pay.Status.String(), pay.Currency)
	metrics.RecordPaymentAmount(pay.Currency, pay.Amount)
	p.logger.InfoContext(ctx, "payment processed", "payment", pay)

	if err := p.events.Publish(ctx, pay); err != nil {
		p.logger.WarnContext(ctx, "publish payment event", "err", err)
	}
	return pay, nil
}

func (p *Processor) stage(ctx context.Context, name string, fn func() error) error {
	end := p.hook.Start(ctx, name)
	err := fn()
	end(err)
	return err
}

// currencyLabel keeps label cardinality bounded for unvalidated input.
func currencyLabel(c *string) string {
	if c == nil || len(*c) != 3 {
		return "unknown"
	}
	return *c
}
