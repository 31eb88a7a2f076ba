package api

import (
	"github.com/example/paygate/internal/payment"
	"github.com/example/paygate/internal/validation"
)

const (
	HeaderCorrelationID      = "X-Correlation-Id"
	HeaderIdempotencyKey     = "Idempotency-Key"
	HeaderIdempotentReplayed = "Idempotent-Replayed"
	HeaderRateLimitRemaining = "X-Rate-Limit-Remaining"
	HeaderRetryAfter         = "Retry-After"
)

const (
	msgValidationFailed = "Validation failed"
	msgBankUnavailable  = "Bank service unavailable"
	msgNotFound         = "Page not found"
	msgInvalidParameter = "Invalid request parameter"
	msgMethodNotAllowed = "Method not allowed"
	msgRateLimited      = "Rate limit exceeded. Try again later."
	msgUnexpected       = "An unexpected error occurred. Please try again later."
)

// PaymentOut is the body for a persisted payment.
type PaymentOut struct {
	ID                 string         `json:"id"`
	Status             payment.Status `json:"status"`
	CardNumberLastFour string         `json:"cardNumberLastFour"`
	ExpiryMonth        int            `json:"expiryMonth"`
	ExpiryYear         int            `json:"expiryYear"`
	Currency           string         `json:"currency"`
	Amount             int64          `json:"amount"`
}

func paymentOut(p payment.Payment) PaymentOut {
	return PaymentOut{
		ID:                 p.ID.String(),
		Status:             p.Status,
		CardNumberLastFour: p.CardNumberLastFour,
		ExpiryMonth:        p.ExpiryMonth,
		ExpiryYear:         p.ExpiryYear,
		Currency:           p.Currency,
		Amount:             p.Amount,
	}
}

type RejectedOut struct {
	Status  payment.Status          `json:"status"`
	Message string                  `json:"message"`
	Errors  []validation.FieldError `json:"errors"`
}

type MessageOut struct {
	Message string `json:"message"`
}
