// Package events publishes completed payments to the event bus.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/paygate/internal/payment"
)

const TypePaymentCompleted = "payment.completed"

type Event struct {
	Type               string         `json:"type"`
	ID                 string         `json:"id"`
	Status             payment.Status `json:"status"`
	CardNumberLastFour string         `json:"cardNumberLastFour"`
	ExpiryMonth        int            `json:"expiryMonth"`
	ExpiryYear         int            `json:"expiryYear"`
	Currency           string         `json:"currency"`
	Amount             int64          `json:"amount"`
	OccurredAt         time.Time      `json:"occurredAt"`
}

func NewEvent(p payment.Payment, at time.Time) Event {
	return Event{
		Type:               TypePaymentCompleted,
		ID:                 p.ID.String(),
		Status:             p.Status,
		CardNumberLastFour: p.CardNumberLastFour,
		ExpiryMonth:        p.ExpiryMonth,
		ExpiryYear:         p.ExpiryYear,
		Currency:           p.Currency,
		Amount:             p.Amount,
		OccurredAt:         at.UTC(),
	}
}

// Encode returns the message key and value for a payment.
func Encode(p payment.Payment, at time.Time) (key, value []byte, err error) {
	value, err = json.Marshal(NewEvent(p, at))
	if err != nil {
		return nil, nil, err
	}
	return []byte(p.ID.String()), value, nil
}

type Publisher interface {
	Publish(ctx context.Context, p payment.Payment) error
	Close() error
}

// Noop is used when no brokers are configured.
type Noop struct{}

func (Noop) Publish(context.Context, payment.Payment) error { return nil }
func (Noop) Close() error                                   { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes asynchronously; delivery failures are only logged.
type Kafka struct {
	w   messageWriter
	now func() time.Time
}

func NewKafka(brokers []string, topic string, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		RequiredAcks: kafka.RequireOne,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Error("publish payment events failed", "topic", topic, "count", len(msgs), "err", err)
			}
		},
	}
	return &Kafka{w: w, now: time.Now}
}

func (k *Kafka) Publish(ctx context.Context, p payment.Payment) error {
	key, value, err := Encode(p, k.now())
	if err != nil {
		return err
	}
	return k.w.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

// Close flushes pending messages.
func (k *Kafka) Close() error { return k.w.Close() }
