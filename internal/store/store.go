// Package store persists terminal payments and the idempotency index.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/paygate/internal/payment"
)

var (
	ErrNotFound = errors.New("payment not found")
	// ErrNotTerminal is returned when saving a payment that must never be
	// persisted, i.e. a rejected one.
	ErrNotTerminal = errors.New("payment status is not persistable")
)

// Store is safe for concurrent use. Save indexes the payment under its
// idempotency key when one is set; the first payment saved for a key keeps the
// key.
type Store interface {
	Save(ctx context.Context, p payment.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (payment.Payment, error)
	FindByIdempotencyKey(ctx context.Context, key string) (payment.Payment, error)
	Close() error
}

func checkPersistable(p payment.Payment) error {
	if !p.Status.Terminal() {
		return fmt.Errorf("save %s: %w", p.ID, ErrNotTerminal)
	}
	if p.ID == uuid.Nil {
		return errors.New("save: payment has no id")
	}
	return nil
}
