package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/example/paygate/internal/orchestrator"
	"github.com/example/paygate/internal/payment"
	"github.com/example/paygate/internal/validation"
	"github.com/example/paygate/pkg/errors"
)

const maxBodyBytes = 1 << 20

// PaymentService is implemented by *orchestrator.Processor.
type PaymentService interface {
	Process(ctx context.Context, req payment.Request, idempotencyKey string) (orchestrator.Outcome, error)
	Get(ctx context.Context, id uuid.UUID) (payment.Payment, error)
}

func createPaymentHandler(svc PaymentService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in payment.Request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
			logger.InfoContext(r.Context(), "malformed payment request", "err", err)
			writeJSON(w, http.StatusBadRequest, RejectedOut{
				Status:  payment.StatusRejected,
				Message: msgValidationFailed,
				Errors:  []validation.FieldError{{Field: validation.FieldRequestBody, Message: validation.MsgMalformedBody}},
			})
			return
		}

		out, err := svc.Process(r.Context(), in, r.Header.Get(HeaderIdempotencyKey))
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		switch o := out.(type) {
		case orchestrator.Completed:
			if o.Replayed {
				w.Header().Set(HeaderIdempotentReplayed, "true")
			}
			writeJSON(w, http.StatusCreated, paymentOut(o.Payment))
		case orchestrator.Rejected:
			writeJSON(w, http.StatusBadRequest, RejectedOut{
				Status:  payment.StatusRejected,
				Message: msgValidationFailed,
				Errors:  o.Errors,
			})
		default:
			writeError(w, r, logger, errors.New(errors.CodeUnexpected, "unknown outcome"))
		}
	}
}

func getPaymentHandler(svc PaymentService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			writeError(w, r, logger, errors.Wrap(errors.CodeInvalidArgument, "payment id", err))
			return
		}
		p, err := svc.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, paymentOut(p))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.HasCode(err, errors.CodeInvalidArgument):
		writeJSON(w, http.StatusBadRequest, MessageOut{Message: msgInvalidParameter})
	case errors.HasCode(err, errors.CodeNotFound):
		writeJSON(w, http.StatusNotFound, MessageOut{Message: msgNotFound})
	case errors.HasCode(err, errors.CodeDownstreamUnavailable),
		errors.HasCode(err, errors.CodeCircuitOpen),
		errors.HasCode(err, errors.CodeBankCommunication):
		logger.WarnContext(r.Context(), "bank unavailable", "code", errors.CodeOf(err), "err", err)
		writeJSON(w, http.StatusBadGateway, MessageOut{Message: msgBankUnavailable})
	default:
		logger.ErrorContext(r.Context(), "unexpected error", "err", err)
		writeJSON(w, http.StatusInternalServerError, MessageOut{Message: msgUnexpected})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
