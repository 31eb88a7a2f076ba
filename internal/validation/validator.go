// Package validation checks inbound payment requests before any downstream
// call is made.
package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/paygate/internal/payment"
)

const (
	FieldRequestBody = "requestBody"
	FieldCardNumber  = "cardNumber"
	FieldExpiryMonth = "expiryMonth"
	FieldExpiryYear  = "expiryYear"
	FieldExpiryDate  = "expiryDate"
	FieldCurrency    = "currency"
	FieldAmount      = "amount"
	FieldCVV         = "cvv"
)

const (
	MsgRequired          = "must not be null"
	MsgMalformedBody     = "Malformed JSON request body"
	MsgCardNumberFormat  = "Card number must be 13-19 numeric digits"
	MsgCardNumberLuhn    = "Card number failed Luhn check"
	MsgExpiryMonthRange  = "Expiry month must be between 1 and 12"
	MsgExpiryYearInvalid = "Expiry year must be a four digit year"
	MsgExpiryInPast      = "Card expiry date must be in the future"
	MsgAmountPositive    = "Amount must be a positive integer in minor currency units"
	MsgCVVFormat         = "CVV must be 3-4 numeric digits"
)

var DefaultCurrencies = []string{"GBP", "USD", "EUR"}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Validator is safe for concurrent use.
type Validator struct {
	now         func() time.Time
	currencies  map[string]struct{}
	currencyMsg string
}

// New panics when now is nil or no currency is accepted.
func New(now func() time.Time, currencies []string) *Validator {
	if now == nil {
		panic("validation: nil clock")
	}
	if len(currencies) == 0 {
		panic("validation: no accepted currencies")
	}
	set := make(map[string]struct{}, len(currencies))
	for _, c := range currencies {
		set[c] = struct{}{}
	}
	return &Validator{
		now:         now,
		currencies:  set,
		currencyMsg: fmt.Sprintf("Invalid value. Accepted values are: %s", strings.Join(currencies, ", ")),
	}
}

// Validate evaluates every field and returns either the validated payment or
// the full list of field errors.
func (v *Validator) Validate(req payment.Request) (payment.Valid, []FieldError) {
	var errs []FieldError
	add := func(field, msg string) { errs = append(errs, FieldError{Field: field, Message: msg}) }

	switch {
	case req.CardNumber == nil:
		add(FieldCardNumber, MsgRequired)
	case !isDigits(*req.CardNumber, 13, 19):
		add(FieldCardNumber, MsgCardNumberFormat)
	case !IsLuhnValid(*req.CardNumber):
		add(FieldCardNumber, MsgCardNumberLuhn)
	}

	monthOK, yearOK := false, false
	switch {
	case req.ExpiryMonth == nil:
		add(FieldExpiryMonth, MsgRequired)
	case *req.ExpiryMonth < 1 || *req.ExpiryMonth > 12:
		add(FieldExpiryMonth, MsgExpiryMonthRange)
	default:
		monthOK = true
	}
	switch {
	case req.ExpiryYear == nil:
		add(FieldExpiryYear, MsgRequired)
	case *req.ExpiryYear < 1000 || *req.ExpiryYear > 9999:
		add(FieldExpiryYear, MsgExpiryYearInvalid)
	default:
		yearOK = true
	}
	if monthOK && yearOK && !v.expiresAfterCurrentMonth(*req.ExpiryYear, *req.ExpiryMonth) {
		add(FieldExpiryDate, MsgExpiryInPast)
	}

	switch {
	case req.Currency == nil:
		add(FieldCurrency, MsgRequired)
	case !v.acceptsCurrency(*req.Currency):
		add(FieldCurrency, v.currencyMsg)
	}

	switch {
	case req.Amount == nil:
		add(FieldAmount, MsgRequired)
	case *req.Amount <= 0:
		add(FieldAmount, MsgAmountPositive)
	}

	switch {
	case req.CVV == nil:
		add(FieldCVV, MsgRequired)
	case !isDigits(*req.CVV, 3, 4):
		add(FieldCVV, MsgCVVFormat)
	}

	if len(errs) > 0 {
		return payment.Valid{}, errs
	}
	return payment.Valid{
		Card:        payment.Card{Number: *req.CardNumber, CVV: *req.CVV},
		ExpiryMonth: *req.ExpiryMonth,
		ExpiryYear:  *req.ExpiryYear,
		Currency:    *req.Currency,
		Amount:      *req.Amount,
	}, nil
}

func (v *Validator) acceptsCurrency(c string) bool {
	_, ok := v.currencies[c]
	return ok
}

// expiresAfterCurrentMonth compares calendar months; a card expiring this
// month is already rejected.
func (v *Validator) expiresAfterCurrentMonth(year, month int) bool {
	now := v.now()
	return year*12+month > now.Year()*12+int(now.Month())
}

func isDigits(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
