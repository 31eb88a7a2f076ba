package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/paygate/internal/payment"
)

const schema = `
CREATE TABLE IF NOT EXISTS payments (
	id                    UUID PRIMARY KEY,
	status                TEXT NOT NULL,
	card_number_last_four TEXT NOT NULL,
	expiry_month          INT NOT NULL,
	expiry_year           INT NOT NULL,
	currency              TEXT NOT NULL,
	amount                BIGINT NOT NULL,
	idempotency_key       TEXT,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS payments_idempotency_key ON payments (idempotency_key)
	WHERE idempotency_key IS NOT NULL;
`

const selectColumns = `SELECT id, status, card_number_last_four, expiry_month, expiry_year, currency, amount, COALESCE(idempotency_key, '') FROM payments`

type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects and applies the schema.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Postgres{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate payments: %w", err)
	}
	return nil
}

func (s *Postgres) Save(ctx context.Context, p payment.Payment) error {
	if err := checkPersistable(p); err != nil {
		return err
	}
	var key *string
	if p.IdempotencyKey != "" {
		key = &p.IdempotencyKey
	}
	// a later payment reusing a taken key is still stored, just not indexed
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payments (id, status, card_number_last_four, expiry_month, expiry_year, currency, amount, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
			CASE WHEN $8::text IS NULL OR EXISTS (SELECT 1 FROM payments WHERE idempotency_key = $8::text) THEN NULL ELSE $8::text END)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`,
		p.ID, p.Status.String(), p.CardNumberLastFour, p.ExpiryMonth, p.ExpiryYear, p.Currency, p.Amount, key)
	if err != nil {
		return fmt.Errorf("insert payment %s: %w", p.ID, err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (payment.Payment, error) {
	return s.findOne(ctx, selectColumns+` WHERE id = $1`, id)
}

func (s *Postgres) FindByIdempotencyKey(ctx context.Context, key string) (payment.Payment, error) {
	return s.findOne(ctx, selectColumns+` WHERE idempotency_key = $1`, key)
}

func (s *Postgres) findOne(ctx context.Context, query string, arg any) (payment.Payment, error) {
	var (
		p      payment.Payment
		status string
	)
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&p.ID, &status, &p.CardNumberLastFour, &p.ExpiryMonth, &p.ExpiryYear, &p.Currency, &p.Amount, &p.IdempotencyKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return payment.Payment{}, ErrNotFound
	}
	if err != nil {
		return payment.Payment{}, fmt.Errorf("query payment: %w", err)
	}
	if p.Status, err = payment.ParseStatus(status); err != nil {
		return payment.Payment{}, err
	}
	return p, nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
