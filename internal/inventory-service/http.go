package inventoryservice

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/order-orchestrator/internal/inventory-service/domain"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/interceptors/constants"
)

type reserveRequest struct {
	OrderID        string             `json:"order_id"`
	Items          []domain.StockItem `json:"items"`
	IdempotencyKey string             `json:"idempotency_key"`
}

type releaseRequest struct {
	ReservationID string `json:"reservation_id"`
}

// NewRouter serves POST /reserve, POST /release and GET /products/{id}.
func NewRouter(stock *Stock) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/reserve", func(w http.ResponseWriter, r *http.Request) {
		var req reserveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if len(req.Items) == 0 {
			writeError(w, http.StatusBadRequest, "items_required")
			return
		}
		for _, it := range req.Items {
			if it.ProductID == "" || it.Quantity <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_item")
				return
			}
		}
		key := req.IdempotencyKey
		if key == "" {
			key = r.Header.Get(constants.HeaderXIdempotencyKey)
		}

		res, err := stock.Reserve(r.Context(), req.OrderID, key, req.Items)
		switch {
		case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrProductNotFound):
			writeError(w, http.StatusConflict, "insufficient_stock")
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"reservation_id": res.ID})
	})

	r.Post("/release", func(w http.ResponseWriter, r *http.Request) {
		var req releaseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReservationID == "" {
			writeError(w, http.StatusBadRequest, "reservation_id_required")
			return
		}
		err := stock.Release(r.Context(), req.ReservationID)
		switch {
		case errors.Is(err, domain.ErrReservationNotFound):
			writeError(w, http.StatusNotFound, "reservation_not_found")
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		p, err := stock.Product(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "product_not_found")
			return
		}
		writeJSON(w, http.StatusOK, p)
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
