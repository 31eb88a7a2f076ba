// Package bank talks to the downstream authorization service over HTTP/JSON.
package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/example/paygate/internal/payment"
)

type AuthorizationRequest struct {
	CardNumber string `json:"card_number"`
	ExpiryDate string `json:"expiry_date"`
	Currency   string `json:"currency"`
	Amount     int64  `json:"amount"`
	CVV        string `json:"cvv"`
}

// NewAuthorizationRequest builds the outbound request from a validated payment.
func NewAuthorizationRequest(v payment.Valid) AuthorizationRequest {
	return AuthorizationRequest{
		CardNumber: v.Card.Number,
		ExpiryDate: payment.FormatExpiry(v.ExpiryMonth, v.ExpiryYear),
		Currency:   v.Currency,
		Amount:     v.Amount,
		CVV:        v.Card.CVV,
	}
}

func (r AuthorizationRequest) String() string {
	card := payment.Card{Number: r.CardNumber, CVV: r.CVV}
	return fmt.Sprintf("AuthorizationRequest{%s, expiry=%s, currency=%s, amount=%d}", card, r.ExpiryDate, r.Currency, r.Amount)
}

type AuthorizationResponse struct {
	Authorized        bool   `json:"authorized"`
	AuthorizationCode string `json:"authorization_code"`
}

// StatusError is returned for any non-2xx answer from the bank.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bank responded %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether another attempt of the same call may succeed.
// Server errors, throttling and transport failures are retryable; other client
// errors and caller cancellation are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}

type Client struct {
	BaseURL string
	Client  *http.Client
}

// NewClient bounds connection setup by connectTimeout and the whole exchange
// by readTimeout.
func NewClient(baseURL string, connectTimeout, readTimeout time.Duration) *Client {
	transport := &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 200,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 60 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client: &http.Client{
			Transport: transport,
			Timeout:   readTimeout,
		},
	}
}

// Authorize performs a single authorization attempt.
func (c *Client) Authorize(ctx context.Context, in AuthorizationRequest) (AuthorizationResponse, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return AuthorizationResponse{}, fmt.Errorf("marshal authorization request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return AuthorizationResponse{}, fmt.Errorf("build authorization request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return AuthorizationResponse{}, fmt.Errorf("post %s/payments: %w", c.BaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return AuthorizationResponse{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var out AuthorizationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return AuthorizationResponse{}, fmt.Errorf("decode authorization response: %w", err)
	}
	return out, nil
}
