package store

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/paygate/internal/payment"
)

func samplePayment(status payment.Status, key string) payment.Payment {
	return payment.Payment{
		ID:                 uuid.New(),
		Status:             status,
		CardNumberLastFour: "8877",
		ExpiryMonth:        4,
		ExpiryYear:         2030,
		Currency:           "GBP",
		Amount:             100,
		IdempotencyKey:     key,
	}
}

// exerciseStore runs the behaviour every backend shares.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("save and find by id", func(t *testing.T) {
		p := samplePayment(payment.StatusAuthorized, "")
		require.NoError(t, s.Save(ctx, p))
		got, err := s.FindByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := s.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rejected is never stored", func(t *testing.T) {
		p := samplePayment(payment.StatusRejected, "k-rejected-"+uuid.NewString())
		assert.ErrorIs(t, s.Save(ctx, p), ErrNotTerminal)
		_, err := s.FindByID(ctx, p.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.FindByIdempotencyKey(ctx, p.IdempotencyKey)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("idempotency key lookup", func(t *testing.T) {
		key := "k-" + uuid.NewString()
		_, err := s.FindByIdempotencyKey(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound)

		p := samplePayment(payment.StatusDeclined, key)
		require.NoError(t, s.Save(ctx, p))
		got, err := s.FindByIdempotencyKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	})

	t.Run("first payment keeps the key", func(t *testing.T) {
		key := "k-" + uuid.NewString()
		first := samplePayment(payment.StatusAuthorized, key)
		second := samplePayment(payment.StatusAuthorized, key)
		require.NoError(t, s.Save(ctx, first))
		require.NoError(t, s.Save(ctx, second))

		got, err := s.FindByIdempotencyKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
	})
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemory_ConcurrentSaves(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 100)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := samplePayment(payment.StatusAuthorized, "shared")
			ids[i] = p.ID
			assert.NoError(t, s.Save(ctx, p))
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		_, err := s.FindByID(ctx, id)
		assert.NoError(t, err)
	}
	got, err := s.FindByIdempotencyKey(ctx, "shared")
	require.NoError(t, err)
	assert.Contains(t, ids, got.ID)
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(mr.Addr(), 0)
	defer s.Close()
	require.NoError(t, s.Ping(context.Background()))

	exerciseStore(t, s)
}

func TestRedis_ZeroTTLKeepsEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(mr.Addr(), 0)
	defer s.Close()
	ctx := context.Background()

	p := samplePayment(payment.StatusDeclined, "forever")
	require.NoError(t, s.Save(ctx, p))
	assert.Zero(t, mr.TTL(paymentKey(p.ID)))
	assert.Zero(t, mr.TTL(idemKey("forever")))

	mr.FastForward(365 * 24 * time.Hour)
	got, err := s.FindByIdempotencyKey(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestRedis_EntriesExpire(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(mr.Addr(), time.Minute)
	defer s.Close()
	ctx := context.Background()

	p := samplePayment(payment.StatusAuthorized, "expiring")
	require.NoError(t, s.Save(ctx, p))
	assert.Equal(t, time.Minute, mr.TTL(paymentKey(p.ID)))
	assert.Equal(t, time.Minute, mr.TTL(idemKey("expiring")))

	mr.FastForward(2 * time.Minute)
	_, err := s.FindByID(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindByIdempotencyKey(ctx, "expiring")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("GATEWAY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GATEWAY_TEST_POSTGRES_DSN not set")
	}
	s, err := NewPostgres(context.Background(), dsn)
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}
