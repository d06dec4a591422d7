package handler

import (
	"context"
	"net/http"

	"storefront/internal/cache"
	"storefront/internal/model"
	"storefront/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var errDuplicateInFlight = model.NewDomainError(model.KindConflict, model.ErrCodeDuplicateRequest, "A request with this Idempotency-Key is already in progress")

// replayResponse is returned for a repeated Idempotency-Key whose order already exists.
type replayResponse struct {
	OrderID  string `json:"orderId"`
	Replayed bool   `json:"replayed"`
}

// OrderHandler handles order-related HTTP requests.
type OrderHandler struct {
	service     service.OrderWorkflow
	idempotency cache.IdempotencyStore
	logger      zerolog.Logger
}

// NewOrderHandler creates a new order handler. A nil idempotency store
// disables Idempotency-Key handling.
func NewOrderHandler(service service.OrderWorkflow, idempotency cache.IdempotencyStore, logger zerolog.Logger) *OrderHandler {
	if idempotency == nil {
		idempotency = cache.NopIdempotencyStore{}
	}
	return &OrderHandler{
		service:     service,
		idempotency: idempotency,
		logger:      logger.With().Str("handler", "order").Logger(),
	}
}

// Create handles POST /api/orders requests.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	var req model.OrderRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, r, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	h.placeOnce(w, r, uid, func(ctx context.Context) (*model.OrderResult, error) {
		return h.service.Create(ctx, uid, &req)
	})
}

// CreateCombo handles POST /api/orders/combo requests.
func (h *OrderHandler) CreateCombo(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	var req model.ComboOrderRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, r, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	h.placeOnce(w, r, uid, func(ctx context.Context) (*model.OrderResult, error) {
		return h.service.CreateCombo(ctx, uid, &req)
	})
}

// placeOnce runs place under the request's Idempotency-Key when one is sent.
// A failed placement releases the key so the client can retry.
func (h *OrderHandler) placeOnce(w http.ResponseWriter, r *http.Request, uid uuid.UUID, place func(context.Context) (*model.OrderResult, error)) {
	ctx := r.Context()
	key := r.Header.Get(IdempotencyKeyHeader)

	if key != "" {
		existing, reserved, err := h.idempotency.Reserve(ctx, uid, key)
		switch {
		case err != nil:
			// Redis trouble must not block checkout.
			h.logger.Warn().Err(err).Str("user_id", uid.String()).Msg("idempotency reserve failed, continuing without it")
			key = ""
		case !reserved && existing == "":
			writeError(w, r, errDuplicateInFlight, h.logger)
			return
		case !reserved:
			writeJSON(w, http.StatusOK, replayResponse{OrderID: existing, Replayed: true})
			return
		}
	}

	result, err := place(ctx)
	if err != nil {
		if key != "" {
			if relErr := h.idempotency.Release(context.WithoutCancel(ctx), uid, key); relErr != nil {
				h.logger.Warn().Err(relErr).Str("user_id", uid.String()).Msg("idempotency release failed")
			}
		}
		writeError(w, r, err, h.logger)
		return
	}

	if key != "" {
		if err := h.idempotency.Complete(context.WithoutCancel(ctx), uid, key, result.OrderID); err != nil {
			h.logger.Warn().Err(err).Str("order_id", result.OrderID.String()).Msg("idempotency complete failed")
		}
	}

	writeJSON(w, http.StatusCreated, result)
}

// GetByID handles GET /api/orders/{id} requests.
func (h *OrderHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	orderID, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, r, model.ErrCodeMissingField, "invalid order ID format", h.logger)
		return
	}

	order, err := h.service.FindByID(r.Context(), uid, orderID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// List handles GET /api/orders?status= requests.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	orders, err := h.service.FindByStatus(r.Context(), uid, model.OrderStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, orders)
}

// Cancel handles POST /api/orders/{id}/cancel requests.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	orderID, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, r, model.ErrCodeMissingField, "invalid order ID format", h.logger)
		return
	}

	res, err := h.service.Cancel(r.Context(), uid, orderID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// UpdateStatus handles PATCH /api/orders/{id}/status requests.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	orderID, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, r, model.ErrCodeMissingField, "invalid order ID format", h.logger)
		return
	}

	var req model.UpdateStatusRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, r, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	res, err := h.service.UpdateStatus(r.Context(), uid, orderID, req.Status)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// ApplyVoucher handles POST /api/orders/{id}/vouchers requests.
func (h *OrderHandler) ApplyVoucher(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	orderID, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, r, model.ErrCodeMissingField, "invalid order ID format", h.logger)
		return
	}

	var req model.ApplyVoucherRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, r, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	app, err := h.service.ApplyVoucher(r.Context(), uid, orderID, req.Code)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, app)
}

// ShippingFee handles POST /api/orders/shipping-fee requests.
func (h *OrderHandler) ShippingFee(w http.ResponseWriter, r *http.Request) {
	var req model.ShippingFeeRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, r, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	quote, err := h.service.CalculateShippingFee(r.Context(), &req)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

// UpdatePayment handles PATCH /api/payments/{id} requests.
func (h *OrderHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, r, model.ErrCodeMissingField, "invalid payment ID format", h.logger)
		return
	}

	var req model.UpdatePaymentRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, r, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	payment, err := h.service.UpdatePaymentStatus(r.Context(), paymentID, req.TransactionID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, payment)
}

// AdminList handles GET /api/admin/orders requests.
func (h *OrderHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListAll(r.Context())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, orders)
}

// AdminUpdateStatus handles PATCH /api/admin/orders/{id}/status requests.
func (h *OrderHandler) AdminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "id")
	if !ok {
		writeBadRequest(w, r, model.ErrCodeMissingField, "invalid order ID format", h.logger)
		return
	}

	var req model.UpdateStatusRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, r, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	res, err := h.service.UpdateStatusByAdmin(r.Context(), orderID, req.Status)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
