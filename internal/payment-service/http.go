package paymentservice

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/order-orchestrator/internal/pkg/interceptors/constants"
)

type chargeRequest struct {
	OrderID        string          `json:"order_id"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type refundRequest struct {
	PaymentID string `json:"payment_id"`
}

// NewRouter serves POST /charge and POST /refund.
func NewRouter(ledger *Ledger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/charge", func(w http.ResponseWriter, r *http.Request) {
		var req chargeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if req.OrderID == "" {
			writeError(w, http.StatusBadRequest, "order_id_required")
			return
		}
		key := req.IdempotencyKey
		if key == "" {
			key = r.Header.Get(constants.HeaderXIdempotencyKey)
		}

		p, err := ledger.Charge(r.Context(), req.OrderID, req.Amount, key)
		switch {
		case errors.Is(err, ErrDeclined):
			writeError(w, http.StatusPaymentRequired, "payment_declined")
			return
		case errors.Is(err, ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "invalid_amount")
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"payment_id": p.ID, "status": string(p.Status)})
	})

	r.Post("/refund", func(w http.ResponseWriter, r *http.Request) {
		var req refundRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentID == "" {
			writeError(w, http.StatusBadRequest, "payment_id_required")
			return
		}
		if _, err := ledger.Refund(r.Context(), req.PaymentID); err != nil {
			if errors.Is(err, ErrPaymentNotFound) {
				writeError(w, http.StatusNotFound, "payment_not_found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
