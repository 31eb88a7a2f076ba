package payment

// Request is the inbound processing payload. Pointer fields let the validator
// tell a missing field apart from a zero value.
type Request struct {
	CardNumber  *string `json:"cardNumber"`
	ExpiryMonth *int    `json:"expiryMonth"`
	ExpiryYear  *int    `json:"expiryYear"`
	Currency    *string `json:"currency"`
	Amount      *int64  `json:"amount"`
	CVV         *string `json:"cvv"`
}

// Valid is a request that passed validation, ready for authorization.
type Valid struct {
	Card        Card
	ExpiryMonth int
	ExpiryYear  int
	Currency    string
	Amount      int64
}
