package service

import (
	"context"

	"storefront/internal/model"

	"github.com/google/uuid"
)

// OrderWorkflow places, cancels and moves orders through their lifecycle.
// Every error it returns is either a *model.DomainError or an infrastructure
// failure that callers should treat as internal.
type OrderWorkflow interface {
	// Create turns cart lines into an order, reserving stock and booking the
	// carrier shipment in one transaction. Vouchers are applied after commit.
	Create(ctx context.Context, userID uuid.UUID, req *model.OrderRequest) (*model.OrderResult, error)

	// CreateCombo buys a bundle: the main option plus the chosen combo items.
	CreateCombo(ctx context.Context, userID uuid.UUID, req *model.ComboOrderRequest) (*model.OrderResult, error)

	// Cancel moves a pending order to CANCEL and cancels its shipment.
	Cancel(ctx context.Context, userID, orderID uuid.UUID) (*model.StatusUpdateResult, error)

	// FindByID returns one of the user's orders with lines, shipping and payment.
	FindByID(ctx context.Context, userID, orderID uuid.UUID) (*model.Order, error)

	// FindByStatus lists the user's orders, newest first. An empty status matches all.
	FindByStatus(ctx context.Context, userID uuid.UUID, status model.OrderStatus) ([]model.Order, error)

	// ListAll lists every order for administrators, newest first.
	ListAll(ctx context.Context) ([]model.Order, error)

	// UpdateStatus changes the status of one of the user's orders.
	UpdateStatus(ctx context.Context, userID, orderID uuid.UUID, status model.OrderStatus) (*model.StatusUpdateResult, error)

	// UpdateStatusByAdmin changes the status of any order.
	UpdateStatusByAdmin(ctx context.Context, orderID uuid.UUID, status model.OrderStatus) (*model.StatusUpdateResult, error)

	// ApplyVoucher applies one voucher to a pending order owned by the user.
	ApplyVoucher(ctx context.Context, userID, orderID uuid.UUID, code string) (*model.VoucherApplication, error)

	// CalculateShippingFee quotes delivery with the carrier.
	CalculateShippingFee(ctx context.Context, req *model.ShippingFeeRequest) (*model.ShippingFeeResponse, error)

	// UpdatePaymentStatus records the payment gateway's transaction id.
	UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, transactionID string) (*model.Payment, error)
}
