package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"storefront/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOrderWorkflow is a mock implementation of service.OrderWorkflow.
type MockOrderWorkflow struct {
	mock.Mock
}

func (m *MockOrderWorkflow) Create(ctx context.Context, userID uuid.UUID, req *model.OrderRequest) (*model.OrderResult, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OrderResult), args.Error(1)
}

func (m *MockOrderWorkflow) CreateCombo(ctx context.Context, userID uuid.UUID, req *model.ComboOrderRequest) (*model.OrderResult, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OrderResult), args.Error(1)
}

func (m *MockOrderWorkflow) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*model.StatusUpdateResult, error) {
	args := m.Called(ctx, userID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StatusUpdateResult), args.Error(1)
}

func (m *MockOrderWorkflow) FindByID(ctx context.Context, userID, orderID uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, userID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderWorkflow) FindByStatus(ctx context.Context, userID uuid.UUID, status model.OrderStatus) ([]model.Order, error) {
	args := m.Called(ctx, userID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Order), args.Error(1)
}

func (m *MockOrderWorkflow) ListAll(ctx context.Context) ([]model.Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Order), args.Error(1)
}

func (m *MockOrderWorkflow) UpdateStatus(ctx context.Context, userID, orderID uuid.UUID, status model.OrderStatus) (*model.StatusUpdateResult, error) {
	args := m.Called(ctx, userID, orderID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StatusUpdateResult), args.Error(1)
}

func (m *MockOrderWorkflow) UpdateStatusByAdmin(ctx context.Context, orderID uuid.UUID, status model.OrderStatus) (*model.StatusUpdateResult, error) {
	args := m.Called(ctx, orderID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StatusUpdateResult), args.Error(1)
}

func (m *MockOrderWorkflow) ApplyVoucher(ctx context.Context, userID, orderID uuid.UUID, code string) (*model.VoucherApplication, error) {
	args := m.Called(ctx, userID, orderID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VoucherApplication), args.Error(1)
}

func (m *MockOrderWorkflow) CalculateShippingFee(ctx context.Context, req *model.ShippingFeeRequest) (*model.ShippingFeeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ShippingFeeResponse), args.Error(1)
}

func (m *MockOrderWorkflow) UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, transactionID string) (*model.Payment, error) {
	args := m.Called(ctx, paymentID, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

// memoryIdempotency is an in-memory IdempotencyStore.
type memoryIdempotency struct {
	mu       sync.Mutex
	keys     map[string]string
	released []string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]string)}
}

func (s *memoryIdempotency) Reserve(_ context.Context, userID uuid.UUID, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := userID.String() + ":" + key
	if v, ok := s.keys[k]; ok {
		if v == "pending" {
			return "", false, nil
		}
		return v, false, nil
	}
	s.keys[k] = "pending"
	return "", true, nil
}

func (s *memoryIdempotency) Complete(_ context.Context, userID uuid.UUID, key string, orderID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[userID.String()+":"+key] = orderID.String()
	return nil
}

func (s *memoryIdempotency) Release(_ context.Context, userID uuid.UUID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, userID.String()+":"+key)
	s.released = append(s.released, key)
	return nil
}

// serve routes one request through a chi router so URL params resolve.
func serve(method, pattern, path string, fn http.HandlerFunc, body string, headers map[string]string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, fn)

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var body model.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

const createBody = `{"deliveryId":"6f1c1f4e-3f7a-4d8e-9a53-1d2b3c4d5e6f","paymentMethod":"COD","name":"A","phone":"0911","province":"Ha Noi","district":"Ba Dinh","orderDetails":[{"productOptionId":"0b5e2f7a-4a55-4a43-8d1f-0e1d2c3b4a59","quantity":1}],"voucherCodes":["SAVE10"]}`

func TestOrderHandler_Create(t *testing.T) {
	userID := uuid.New()
	orderID := uuid.New()

	tests := []struct {
		name           string
		body           string
		headers        map[string]string
		mockReturn     *model.OrderResult
		mockError      error
		expectService  bool
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "Success",
			body:           createBody,
			headers:        map[string]string{UserIDHeader: userID.String()},
			mockReturn:     &model.OrderResult{OrderID: orderID, Total: decimal.RequireFromString("828000")},
			expectService:  true,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Missing user header",
			body:           createBody,
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   model.ErrCodeUnauthorised,
		},
		{
			name:           "Malformed user header",
			body:           createBody,
			headers:        map[string]string{UserIDHeader: "42"},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   model.ErrCodeUnauthorised,
		},
		{
			name:           "Invalid JSON",
			body:           `{"orderDetails":`,
			headers:        map[string]string{UserIDHeader: userID.String()},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   model.ErrCodeInvalidJSON,
		},
		{
			name:           "Insufficient stock",
			body:           createBody,
			headers:        map[string]string{UserIDHeader: userID.String()},
			mockError:      model.ErrInsufficientStock,
			expectService:  true,
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   model.ErrCodeInsufficientStock,
		},
		{
			name:           "User not found",
			body:           createBody,
			headers:        map[string]string{UserIDHeader: userID.String()},
			mockError:      model.ErrUserNotFound,
			expectService:  true,
			expectedStatus: http.StatusNotFound,
			expectedCode:   model.ErrCodeUserNotFound,
		},
		{
			name:           "Infrastructure failure",
			body:           createBody,
			headers:        map[string]string{UserIDHeader: userID.String()},
			mockError:      errors.New("failed to begin transaction: connection refused"),
			expectService:  true,
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   model.ErrCodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockOrderWorkflow)
			h := NewOrderHandler(svc, nil, zerolog.Nop())

			if tt.expectService {
				svc.On("Create", mock.Anything, userID, mock.MatchedBy(func(req *model.OrderRequest) bool {
					return req.PaymentMethod == "COD" && len(req.Items) == 1 && req.Province == "Ha Noi" && req.VoucherCodes[0] == "SAVE10"
				})).Return(tt.mockReturn, tt.mockError)
			}

			w := serve(http.MethodPost, "/api/orders", "/api/orders", h.Create, tt.body, tt.headers)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				body := decodeError(t, w)
				assert.Equal(t, tt.expectedCode, body.Error)
				if tt.expectedStatus == http.StatusInternalServerError {
					assert.NotContains(t, body.Message, "connection refused")
				}
			}
			if tt.expectService {
				svc.AssertExpectations(t)
			} else {
				svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestOrderHandler_Create_IdempotencyKey(t *testing.T) {
	userID := uuid.New()
	orderID := uuid.New()
	headers := map[string]string{UserIDHeader: userID.String(), IdempotencyKeyHeader: "checkout-1"}

	t.Run("completed duplicate replays the order id", func(t *testing.T) {
		svc := new(MockOrderWorkflow)
		store := newMemoryIdempotency()
		h := NewOrderHandler(svc, store, zerolog.Nop())
		svc.On("Create", mock.Anything, userID, mock.Anything).Return(&model.OrderResult{OrderID: orderID}, nil).Once()

		first := serve(http.MethodPost, "/api/orders", "/api/orders", h.Create, createBody, headers)
		second := serve(http.MethodPost, "/api/orders", "/api/orders", h.Create, createBody, headers)

		assert.Equal(t, http.StatusCreated, first.Code)
		assert.Equal(t, http.StatusOK, second.Code)
		var replay replayResponse
		require.NoError(t, json.Unmarshal(second.Body.Bytes(), &replay))
		assert.Equal(t, orderID.String(), replay.OrderID)
		assert.True(t, replay.Replayed)
		svc.AssertNumberOfCalls(t, "Create", 1)
	})

	t.Run("in-flight duplicate conflicts", func(t *testing.T) {
		svc := new(MockOrderWorkflow)
		store := newMemoryIdempotency()
		_, _, _ = store.Reserve(context.Background(), userID, "checkout-1")
		h := NewOrderHandler(svc, store, zerolog.Nop())

		w := serve(http.MethodPost, "/api/orders", "/api/orders", h.Create, createBody, headers)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, model.ErrCodeDuplicateRequest, decodeError(t, w).Error)
		svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("failure releases the key", func(t *testing.T) {
		svc := new(MockOrderWorkflow)
		store := newMemoryIdempotency()
		h := NewOrderHandler(svc, store, zerolog.Nop())
		svc.On("Create", mock.Anything, userID, mock.Anything).Return(nil, model.ErrInsufficientStock).Once()
		svc.On("Create", mock.Anything, userID, mock.Anything).Return(&model.OrderResult{OrderID: orderID}, nil).Once()

		failed := serve(http.MethodPost, "/api/orders", "/api/orders", h.Create, createBody, headers)
		retried := serve(http.MethodPost, "/api/orders", "/api/orders", h.Create, createBody, headers)

		assert.Equal(t, http.StatusUnprocessableEntity, failed.Code)
		assert.Equal(t, []string{"checkout-1"}, store.released)
		assert.Equal(t, http.StatusCreated, retried.Code)
	})
}

func TestOrderHandler_CreateCombo(t *testing.T) {
	userID := uuid.New()
	svc := new(MockOrderWorkflow)
	h := NewOrderHandler(svc, nil, zerolog.Nop())
	svc.On("CreateCombo", mock.Anything, userID, mock.MatchedBy(func(req *model.ComboOrderRequest) bool {
		return len(req.ComboItemIDs) == 2
	})).Return(nil, model.ErrMixedCombo)

	body := `{"deliveryId":"6f1c1f4e-3f7a-4d8e-9a53-1d2b3c4d5e6f","productOptionId":"0b5e2f7a-4a55-4a43-8d1f-0e1d2c3b4a59","productComboIds":["` + uuid.NewString() + `","` + uuid.NewString() + `"]}`
	w := serve(http.MethodPost, "/api/orders/combo", "/api/orders/combo", h.CreateCombo, body, map[string]string{UserIDHeader: userID.String()})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Combo items must belong to the same combo", decodeError(t, w).Message)
}

func TestOrderHandler_GetByID(t *testing.T) {
	userID := uuid.New()
	orderID := uuid.New()
	headers := map[string]string{UserIDHeader: userID.String()}

	t.Run("found", func(t *testing.T) {
		svc := new(MockOrderWorkflow)
		h := NewOrderHandler(svc, nil, zerolog.Nop())
		svc.On("FindByID", mock.Anything, userID, orderID).Return(&model.Order{ID: orderID, UserID: userID, Status: model.OrderStatusPending}, nil)

		w := serve(http.MethodGet, "/api/orders/{id}", "/api/orders/"+orderID.String(), h.GetByID, "", headers)

		assert.Equal(t, http.StatusOK, w.Code)
		var got model.Order
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, orderID, got.ID)
	})

	t.Run("not found", func(t *testing.T) {
		svc := new(MockOrderWorkflow)
		h := NewOrderHandler(svc, nil, zerolog.Nop())
		svc.On("FindByID", mock.Anything, userID, orderID).Return(nil, model.ErrOrderNotFound)

		w := serve(http.MethodGet, "/api/orders/{id}", "/api/orders/"+orderID.String(), h.GetByID, "", headers)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		svc := new(MockOrderWorkflow)
		h := NewOrderHandler(svc, nil, zerolog.Nop())

		w := serve(http.MethodGet, "/api/orders/{id}", "/api/orders/not-a-uuid", h.GetByID, "", headers)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestOrderHandler_List(t *testing.T) {
	userID := uuid.New()
	svc := new(MockOrderWorkflow)
	h := NewOrderHandler(svc, nil, zerolog.Nop())
	svc.On("FindByStatus", mock.Anything, userID, model.OrderStatusShipping).Return([]model.Order{{ID: uuid.New()}}, nil)

	w := serve(http.MethodGet, "/api/orders", "/api/orders?status=SHIPPING", h.List, "", map[string]string{UserIDHeader: userID.String()})

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestOrderHandler_Cancel(t *testing.T) {
	userID := uuid.New()
	orderID := uuid.New()
	headers := map[string]string{UserIDHeader: userID.String()}

	tests := []struct {
		name           string
		mockReturn     *model.StatusUpdateResult
		mockError      error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "Cancelled",
			mockReturn:     &model.StatusUpdateResult{OrderID: orderID, UserID: userID, Status: model.OrderStatusCancel},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Already shipping",
			mockError:      model.ErrOrderNotCancelable,
			expectedStatus: http.StatusForbidden,
			expectedCode:   model.ErrCodeOrderNotCancelable,
		},
		{
			name:           "Carrier refused",
			mockError:      model.Wrap(model.KindInternal, model.ErrCodeCarrierFailure, "Internal server error", errors.New("status 500")),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   model.ErrCodeCarrierFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockOrderWorkflow)
			h := NewOrderHandler(svc, nil, zerolog.Nop())
			svc.On("Cancel", mock.Anything, userID, orderID).Return(tt.mockReturn, tt.mockError)

			w := serve(http.MethodPost, "/api/orders/{id}/cancel", "/api/orders/"+orderID.String()+"/cancel", h.Cancel, "", headers)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, decodeError(t, w).Error)
			}
		})
	}
}

func TestOrderHandler_UpdateStatus(t *testing.T) {
	userID := uuid.New()
	orderID := uuid.New()
	svc := new(MockOrderWorkflow)
	h := NewOrderHandler(svc, nil, zerolog.Nop())
	svc.On("UpdateStatus", mock.Anything, userID, orderID, model.OrderStatusShipping).Return(nil, model.ErrOrderCompleted)

	w := serve(http.MethodPatch, "/api/orders/{id}/status", "/api/orders/"+orderID.String()+"/status", h.UpdateStatus,
		`{"status":"SHIPPING"}`, map[string]string{UserIDHeader: userID.String()})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Order has been completed", decodeError(t, w).Message)
}

func TestOrderHandler_ApplyVoucher(t *testing.T) {
	userID := uuid.New()
	orderID := uuid.New()
	path := "/api/orders/" + orderID.String() + "/vouchers"
	headers := map[string]string{UserIDHeader: userID.String()}

	t.Run("applied", func(t *testing.T) {
		svc := new(MockOrderWorkflow)
		h := NewOrderHandler(svc, nil, zerolog.Nop())
		svc.On("ApplyVoucher", mock.Anything, userID, orderID, "SAVE10").Return(&model.VoucherApplication{
			OrderID:  orderID,
			Code:     "SAVE10",
			Discount: decimal.RequireFromString("92000"),
			Total:    decimal.RequireFromString("828000"),
		}, nil)

		w := serve(http.MethodPost, "/api/orders/{id}/vouchers", path, h.ApplyVoucher, `{"code":"SAVE10"}`, headers)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.Contains(w.Body.String(), `"code":"SAVE10"`))
	})

	t.Run("already used", func(t *testing.T) {
		svc := new(MockOrderWorkflow)
		h := NewOrderHandler(svc, nil, zerolog.Nop())
		svc.On("ApplyVoucher", mock.Anything, userID, orderID, "SAVE10").
			Return(nil, model.Unprocessable(model.ErrCodeVoucherInvalid, "Voucher has already been used"))

		w := serve(http.MethodPost, "/api/orders/{id}/vouchers", path, h.ApplyVoucher, `{"code":"SAVE10"}`, headers)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, model.ErrCodeVoucherInvalid, decodeError(t, w).Error)
	})
}

func TestOrderHandler_ShippingFee(t *testing.T) {
	svc := new(MockOrderWorkflow)
	h := NewOrderHandler(svc, nil, zerolog.Nop())
	svc.On("CalculateShippingFee", mock.Anything, mock.MatchedBy(func(req *model.ShippingFeeRequest) bool {
		return req.Province == "Ha Noi" && req.WeightGrams == 1500
	})).Return(&model.ShippingFeeResponse{Fee: decimal.RequireFromString("30000"), Delivery: true}, nil)

	w := serve(http.MethodPost, "/api/orders/shipping-fee", "/api/orders/shipping-fee", h.ShippingFee,
		`{"province":"Ha Noi","district":"Ba Dinh","weight":1500,"value":"900000"}`, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"delivery":true`)
}

func TestOrderHandler_UpdatePayment(t *testing.T) {
	paymentID := uuid.New()
	svc := new(MockOrderWorkflow)
	h := NewOrderHandler(svc, nil, zerolog.Nop())
	svc.On("UpdatePaymentStatus", mock.Anything, paymentID, "VNP-1").Return(nil, model.ErrPaymentNotFound)

	w := serve(http.MethodPatch, "/api/payments/{id}", "/api/payments/"+paymentID.String(), h.UpdatePayment, `{"transactionId":"VNP-1"}`, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, model.ErrCodePaymentNotFound, decodeError(t, w).Error)
}

func TestOrderHandler_Admin(t *testing.T) {
	orderID := uuid.New()
	svc := new(MockOrderWorkflow)
	h := NewOrderHandler(svc, nil, zerolog.Nop())
	svc.On("ListAll", mock.Anything).Return([]model.Order{{ID: orderID}}, nil)
	svc.On("UpdateStatusByAdmin", mock.Anything, orderID, model.OrderStatusReceived).
		Return(&model.StatusUpdateResult{OrderID: orderID, Status: model.OrderStatusReceived}, nil)

	list := serve(http.MethodGet, "/api/admin/orders", "/api/admin/orders", h.AdminList, "", nil)
	update := serve(http.MethodPatch, "/api/admin/orders/{id}/status", "/api/admin/orders/"+orderID.String()+"/status", h.AdminUpdateStatus,
		`{"status":"RECEIVED"}`, nil)

	assert.Equal(t, http.StatusOK, list.Code)
	assert.Equal(t, http.StatusOK, update.Code)
	assert.Contains(t, update.Body.String(), `"status":"RECEIVED"`)
	svc.AssertExpectations(t)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(model.KindNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(model.KindConflict))
	assert.Equal(t, http.StatusForbidden, statusFor(model.KindForbidden))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(model.KindUnprocessable))
	assert.Equal(t, http.StatusInternalServerError, statusFor(model.KindInternal))
}
