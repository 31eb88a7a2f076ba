package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/paygate/internal/orchestrator"
	"github.com/example/paygate/internal/payment"
	"github.com/example/paygate/internal/ratelimit"
	"github.com/example/paygate/internal/store"
	"github.com/example/paygate/internal/validation"
	"github.com/example/paygate/pkg/errors"
)

var fixedNow = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }

type stubBank struct {
	status payment.Status
	err    error
}

func (s stubBank) Authorize(context.Context, payment.Valid) (payment.Status, error) {
	return s.status, s.err
}

const validBody = `{"cardNumber":"2222405343248877","expiryMonth":4,"expiryYear":2030,"currency":"GBP","amount":100,"cvv":"123"}`

func newTestHandler(bank orchestrator.Authorizer, limits ratelimit.Config) http.Handler {
	proc := orchestrator.New(validation.New(fixedNow, validation.DefaultCurrencies), bank, store.NewMemory())
	return NewHandler(Deps{
		Payments:   proc,
		Limiter:    ratelimit.New(limits, fixedNow),
		PathPrefix: "/v1/payment",
	})
}

var roomy = ratelimit.Config{
	Mutating: ratelimit.EndpointLimit{Capacity: 100, RefillRate: 1},
	Read:     ratelimit.EndpointLimit{Capacity: 100, RefillRate: 1},
}

func do(h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCreateAndGetPayment(t *testing.T) {
	h := newTestHandler(stubBank{status: payment.StatusAuthorized}, roomy)

	rec := do(h, http.MethodPost, "/v1/payment", validBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(HeaderCorrelationID))
	assert.Equal(t, "99", rec.Header().Get(HeaderRateLimitRemaining))

	created := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "Authorized", created["status"])
	assert.Equal(t, "8877", created["cardNumberLastFour"])
	assert.Equal(t, float64(4), created["expiryMonth"])
	assert.Equal(t, float64(2030), created["expiryYear"])
	assert.Equal(t, "GBP", created["currency"])
	assert.Equal(t, float64(100), created["amount"])
	assert.NotContains(t, rec.Body.String(), "2222405343248877")
	assert.NotContains(t, rec.Body.String(), "cvv")

	rec = do(h, http.MethodGet, "/v1/payment/"+created["id"].(string), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created, decodeBody[map[string]any](t, rec))
}

func TestCreatePayment_Declined(t *testing.T) {
	h := newTestHandler(stubBank{status: payment.StatusDeclined}, roomy)
	rec := do(h, http.MethodPost, "/v1/payment", validBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Declined", decodeBody[PaymentOut](t, rec).Status.String())
}

func TestCreatePayment_Rejected(t *testing.T) {
	h := newTestHandler(stubBank{status: payment.StatusAuthorized}, roomy)
	body := `{"cardNumber":"2222405343248878","expiryMonth":4,"expiryYear":2030,"currency":"JPY","amount":100,"cvv":"123"}`

	rec := do(h, http.MethodPost, "/v1/payment", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{
		"status": "Rejected",
		"message": "Validation failed",
		"errors": [
			{"field": "cardNumber", "message": "Card number failed Luhn check"},
			{"field": "currency", "message": "Invalid value. Accepted values are: GBP, USD, EUR"}
		]
	}`, rec.Body.String())
}

func TestCreatePayment_MalformedBody(t *testing.T) {
	h := newTestHandler(stubBank{status: payment.StatusAuthorized}, roomy)
	for _, body := range []string{`{"cardNumber":`, `{"amount":"lots"}`} {
		rec := do(h, http.MethodPost, "/v1/payment", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"status":"Rejected","message":"Validation failed","errors":[{"field":"requestBody","message":"Malformed JSON request body"}]}`, rec.Body.String())
	}
}

func TestCreatePayment_BankUnavailable(t *testing.T) {
	h := newTestHandler(stubBank{err: errors.New(errors.CodeCircuitOpen, "circuit breaker is open")}, roomy)
	rec := do(h, http.MethodPost, "/v1/payment", validBody)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"message":"Bank service unavailable"}`, rec.Body.String())
}

func TestCreatePayment_IdempotencyKey(t *testing.T) {
	h := newTestHandler(stubBank{status: payment.StatusAuthorized}, roomy)

	first := do(h, http.MethodPost, "/v1/payment", validBody, HeaderIdempotencyKey, "order-1")
	second := do(h, http.MethodPost, "/v1/payment", validBody, HeaderIdempotencyKey, "order-1")
	other := do(h, http.MethodPost, "/v1/payment", validBody, HeaderIdempotencyKey, "order-2")
	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusCreated, second.Code)

	assert.Equal(t, decodeBody[PaymentOut](t, first).ID, decodeBody[PaymentOut](t, second).ID)
	assert.NotEqual(t, decodeBody[PaymentOut](t, first).ID, decodeBody[PaymentOut](t, other).ID)
	assert.Empty(t, first.Header().Get(HeaderIdempotentReplayed))
	assert.Equal(t, "true", second.Header().Get(HeaderIdempotentReplayed))
}

func TestGetPayment_Errors(t *testing.T) {
	h := newTestHandler(stubBank{status: payment.StatusAuthorized}, roomy)

	rec := do(h, http.MethodGet, "/v1/payment/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Page not found"}`, rec.Body.String())

	rec = do(h, http.MethodGet, "/v1/payment/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"Invalid request parameter"}`, rec.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	h := newTestHandler(stubBank{}, roomy)
	rec := do(h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Page not found"}`, rec.Body.String())
}

func TestRateLimiting(t *testing.T) {
	limits := ratelimit.Config{
		Mutating: ratelimit.EndpointLimit{Capacity: 2, RefillRate: 1},
		Read:     ratelimit.EndpointLimit{Capacity: 5, RefillRate: 1},
	}
	h := newTestHandler(stubBank{status: payment.StatusAuthorized}, limits)

	for want := 1; want >= 0; want-- {
		rec := do(h, http.MethodPost, "/v1/payment", validBody)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, strconv.Itoa(want), rec.Header().Get(HeaderRateLimitRemaining))
	}

	rec := do(h, http.MethodPost, "/v1/payment", validBody)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get(HeaderRateLimitRemaining))
	assert.Equal(t, "1", rec.Header().Get(HeaderRetryAfter))
	assert.JSONEq(t, `{"message":"Rate limit exceeded. Try again later."}`, rec.Body.String())

	// throttling happens before validation
	rec = do(h, http.MethodPost, "/v1/payment", `{`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// reads use their own bucket
	rec = do(h, http.MethodGet, "/v1/payment/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "4", rec.Header().Get(HeaderRateLimitRemaining))

	// health is exempt
	rec = do(h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(HeaderRateLimitRemaining))
}

func TestCorrelationIDIsEchoed(t *testing.T) {
	h := newTestHandler(stubBank{status: payment.StatusAuthorized}, roomy)
	rec := do(h, http.MethodGet, "/healthz", "", HeaderCorrelationID, "abc-123")
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderCorrelationID))
}

type panickingService struct{}

func (panickingService) Process(context.Context, payment.Request, string) (orchestrator.Outcome, error) {
	panic("card 2222405343248877 exploded")
}

func (panickingService) Get(context.Context, uuid.UUID) (payment.Payment, error) {
	return payment.Payment{}, errors.New(errors.CodeUnexpected, "store down")
}

func TestUnexpectedErrors(t *testing.T) {
	h := NewHandler(Deps{
		Payments:   panickingService{},
		Limiter:    ratelimit.New(roomy, fixedNow),
		PathPrefix: "/v1/payment",
	})

	rec := do(h, http.MethodPost, "/v1/payment", validBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"An unexpected error occurred. Please try again later."}`, rec.Body.String())

	rec = do(h, http.MethodGet, "/v1/payment/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestHandler(stubBank{}, roomy)

	rec := do(h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody[map[string]any](t, rec)["ok"])

	rec = do(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

type stubService struct{ err error }

func (s stubService) Process(context.Context, payment.Request, string) (orchestrator.Outcome, error) {
	return nil, s.err
}

func (s stubService) Get(context.Context, uuid.UUID) (payment.Payment, error) {
	return payment.Payment{}, s.err
}

func TestErrorCodesMapToStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{errors.CodeInvalidArgument, http.StatusBadRequest},
		{errors.CodeNotFound, http.StatusNotFound},
		{errors.CodeDownstreamUnavailable, http.StatusBadGateway},
		{errors.CodeCircuitOpen, http.StatusBadGateway},
		{errors.CodeUnexpected, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			h := NewHandler(Deps{
				Payments:   stubService{err: errors.New(tt.code, "boom")},
				Limiter:    ratelimit.New(roomy, fixedNow),
				PathPrefix: "/v1/payment",
			})
			rec := do(h, http.MethodPost, "/v1/payment", validBody)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
