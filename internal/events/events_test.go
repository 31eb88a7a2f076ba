package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/paygate/internal/payment"
)

type captureWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error {
	c.closed = true
	return nil
}

var at = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func authorized() payment.Payment {
	return payment.Payment{
		ID:                 uuid.MustParse("0bb07405-6d44-4b50-a14f-7ae0beff13ad"),
		Status:             payment.StatusAuthorized,
		CardNumberLastFour: "8877",
		ExpiryMonth:        4,
		ExpiryYear:         2030,
		Currency:           "GBP",
		Amount:             100,
		IdempotencyKey:     "abc",
	}
}

func TestEncode(t *testing.T) {
	key, value, err := Encode(authorized(), at)
	require.NoError(t, err)
	assert.Equal(t, "0bb07405-6d44-4b50-a14f-7ae0beff13ad", string(key))
	assert.JSONEq(t, `{
		"type": "payment.completed",
		"id": "0bb07405-6d44-4b50-a14f-7ae0beff13ad",
		"status": "Authorized",
		"cardNumberLastFour": "8877",
		"expiryMonth": 4,
		"expiryYear": 2030,
		"currency": "GBP",
		"amount": 100,
		"occurredAt": "2025-06-15T12:00:00Z"
	}`, string(value))
}

func TestKafkaPublish(t *testing.T) {
	w := &captureWriter{}
	k := &Kafka{w: w, now: func() time.Time { return at }}

	require.NoError(t, k.Publish(context.Background(), authorized()))
	require.Len(t, w.msgs, 1)

	var ev Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, payment.StatusAuthorized, ev.Status)
	assert.Equal(t, "0bb07405-6d44-4b50-a14f-7ae0beff13ad", string(w.msgs[0].Key))

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), authorized()))
	assert.NoError(t, p.Close())
}
