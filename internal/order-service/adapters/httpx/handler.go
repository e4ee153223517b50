package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jcmexdev/order-orchestrator/internal/coordinator"
	"github.com/jcmexdev/order-orchestrator/internal/order-service/adapters/httpx/middlewares"
	"github.com/jcmexdev/order-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/order-orchestrator/internal/order-service/ports"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/breaker"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/interceptors/constants"
)

// Handler serves the order API on top of the orchestrator.
type Handler struct {
	orders   ports.OrderService
	breakers []*breaker.Breaker
}

// NewHandler wires the order service. breakers are only read by the health
// endpoint.
func NewHandler(orders ports.OrderService, breakers ...*breaker.Breaker) *Handler {
	return &Handler{orders: orders, breakers: breakers}
}

// CreateOrder places an order and runs it through reservation and payment
// before answering.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := requester(w, r)
	if !ok {
		return
	}

	var body CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	requestID, _ := r.Context().Value(constants.ContextKeyRequestID).(string)
	slog.InfoContext(r.Context(), "creating order", "request_id", requestID, "user_id", req.UserID, "items", len(body.Items))

	order, err := h.orders.CreateOrder(r.Context(), ports.CreateOrderInput{
		UserID:          req.UserID,
		Lines:           body.lines(),
		ShippingAddress: body.ShippingAddress.toDomain(),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapOrderToResponse(order))
}

// GetOrderByID returns one order visible to the caller.
func (h *Handler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	req, ok := requester(w, r)
	if !ok {
		return
	}
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(r.Context(), req, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

// ListOrders pages through the caller's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	req, ok := requester(w, r)
	if !ok {
		return
	}

	skip, err := queryInt(r, "skip", 0)
	if err != nil || skip < 0 {
		writeError(w, http.StatusBadRequest, "invalid_skip", "skip must be a non-negative integer")
		return
	}
	limit, err := queryInt(r, "limit", coordinator.DefaultListLimit)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
		return
	}
	switch {
	case limit == 0:
		limit = coordinator.DefaultListLimit
	case limit > coordinator.MaxListLimit:
		limit = coordinator.MaxListLimit
	}

	orders, err := h.orders.ListOrders(r.Context(), req, skip, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := ListOrdersResponse{Orders: make([]OrderResponse, len(orders)), Skip: skip, Limit: limit}
	for i, o := range orders {
		resp.Orders[i] = mapOrderToResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelOrder cancels a PENDING or CONFIRMED order and undoes its side effects.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := requester(w, r)
	if !ok {
		return
	}
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(r.Context(), req, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

// Breakers reports the state of every downstream circuit.
func (h *Handler) Breakers(w http.ResponseWriter, _ *http.Request) {
	out := make([]breaker.Snapshot, len(h.breakers))
	for i, b := range h.breakers {
		out[i] = b.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]any{"breakers": out})
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requester(w http.ResponseWriter, r *http.Request) (domain.Requester, bool) {
	req, ok := middlewares.RequesterFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", constants.HeaderXUserID+" header is required")
	}
	return req, ok
}

func orderID(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_order_id", "order id must be a UUID")
		return "", false
	}
	return id.String(), true
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// writeDomainError maps orchestrator errors to HTTP statuses. Anything it
// does not recognise is a 500 and its text is not echoed back.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *domain.ValidationError
		inventory  *domain.InventoryUnavailableError
		payment    *domain.PaymentFailedError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "the order request is invalid",
			Details: validation.Problems,
		})
	case errors.As(err, &inventory):
		if inventory.Kind == domain.KindRejected {
			writeJSON(w, http.StatusConflict, ErrorResponse{Error: "insufficient_stock", Message: "not enough stock for the requested items", OrderID: inventory.OrderID})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "inventory_unavailable", Message: "inventory service is unavailable", OrderID: inventory.OrderID})
	case errors.As(err, &payment):
		if payment.Kind == domain.KindRejected {
			writeJSON(w, http.StatusPaymentRequired, ErrorResponse{Error: "payment_declined", Message: "payment was declined", OrderID: payment.OrderID})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "payment_unavailable", Message: "payment service is unavailable", OrderID: payment.OrderID})
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", "")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "order belongs to another user")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	default:
		slog.ErrorContext(r.Context(), "unhandled order error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
