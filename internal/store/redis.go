package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/paygate/internal/payment"
)

// Redis keeps each payment as JSON under payment:{id} and the idempotency
// index as idem:{key} -> id. Entries expire after ttl; zero means never.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(addr string, ttl time.Duration) *Redis {
	return NewRedisWithClient(redis.NewClient(&redis.Options{Addr: addr}), ttl)
}

func NewRedisWithClient(c *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: c, ttl: ttl}
}

func paymentKey(id uuid.UUID) string { return fmt.Sprintf("payment:%s", id) }
func idemKey(k string) string        { return fmt.Sprintf("idem:%s", k) }

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Save(ctx context.Context, p payment.Payment) error {
	if err := checkPersistable(p); err != nil {
		return err
	}
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payment: %w", err)
	}
	if err := r.client.Set(ctx, paymentKey(p.ID), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET error: %w", err)
	}
	if p.IdempotencyKey == "" {
		return nil
	}
	// SETNX keeps the first payment recorded for the key
	if err := r.client.SetNX(ctx, idemKey(p.IdempotencyKey), p.ID.String(), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis SETNX error: %w", err)
	}
	return nil
}

func (r *Redis) FindByID(ctx context.Context, id uuid.UUID) (payment.Payment, error) {
	b, err := r.client.Get(ctx, paymentKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return payment.Payment{}, ErrNotFound
	}
	if err != nil {
		return payment.Payment{}, fmt.Errorf("redis GET error: %w", err)
	}
	var p payment.Payment
	if err := json.Unmarshal(b, &p); err != nil {
		return payment.Payment{}, fmt.Errorf("decode payment %s: %w", id, err)
	}
	return p, nil
}

func (r *Redis) FindByIdempotencyKey(ctx context.Context, key string) (payment.Payment, error) {
	v, err := r.client.Get(ctx, idemKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return payment.Payment{}, ErrNotFound
	}
	if err != nil {
		return payment.Payment{}, fmt.Errorf("redis GET error: %w", err)
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return payment.Payment{}, fmt.Errorf("corrupt idempotency entry %q: %w", key, err)
	}
	return r.FindByID(ctx, id)
}

func (r *Redis) Close() error { return r.client.Close() }
