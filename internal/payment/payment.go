// Package payment holds the authorization record and the transient card data
// used to build a downstream authorization request.
package payment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Status int

const (
	StatusRejected Status = iota
	StatusAuthorized
	StatusDeclined
)

func (s Status) String() string {
	switch s {
	case StatusAuthorized:
		return "Authorized"
	case StatusDeclined:
		return "Declined"
	case StatusRejected:
		return "Rejected"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Terminal reports whether a payment with this status is persisted.
func (s Status) Terminal() bool {
	return s == StatusAuthorized || s == StatusDeclined
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParseStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseStatus(v string) (Status, error) {
	switch v {
	case "Authorized":
		return StatusAuthorized, nil
	case "Declined":
		return StatusDeclined, nil
	case "Rejected":
		return StatusRejected, nil
	}
	return StatusRejected, fmt.Errorf("unknown payment status %q", v)
}

// Payment is the stored authorization record. It never carries the raw card
// number or CVV.
type Payment struct {
	ID                 uuid.UUID `json:"id"`
	Status             Status    `json:"status"`
	CardNumberLastFour string    `json:"cardNumberLastFour"`
	ExpiryMonth        int       `json:"expiryMonth"`
	ExpiryYear         int       `json:"expiryYear"`
	Currency           string    `json:"currency"`
	Amount             int64     `json:"amount"`
	IdempotencyKey     string    `json:"idempotencyKey,omitempty"`
}

func (p Payment) String() string {
	return fmt.Sprintf("Payment{id=%s, status=%s, cardNumberLastFour=%s, expiry=%s, currency=%s, amount=%d}",
		p.ID, p.Status, p.CardNumberLastFour, FormatExpiry(p.ExpiryMonth, p.ExpiryYear), p.Currency, p.Amount)
}

// Card is the transient card data of a validated request.
type Card struct {
	Number string
	CVV    string
}

// LastFour returns the final four digits of the card number.
func (c Card) LastFour() string {
	if len(c.Number) < 4 {
		return c.Number
	}
	return c.Number[len(c.Number)-4:]
}

// String masks everything but the last four digits and hides the CVV.
func (c Card) String() string {
	n := len(c.Number) - 4
	if n < 0 {
		n = 0
	}
	return fmt.Sprintf("Card{number=%s%s, cvv=***}", strings.Repeat("*", n), c.LastFour())
}

// FormatExpiry renders the MM/YYYY expiry sent to the bank.
func FormatExpiry(month, year int) string {
	return fmt.Sprintf("%02d/%d", month, year)
}
