package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusShipping OrderStatus = "SHIPPING"
	OrderStatusReceived OrderStatus = "RECEIVED"
	OrderStatusCancel   OrderStatus = "CANCEL"
)

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusShipping, OrderStatusReceived, OrderStatusCancel:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancel || s == OrderStatusReceived
}

// Order represents a customer order.
type Order struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	UserID      uuid.UUID       `json:"userId" db:"user_id"`
	Name        string          `json:"name" db:"name"`
	Phone       string          `json:"phone" db:"phone"`
	Note        string          `json:"note" db:"note"`
	Status      OrderStatus     `json:"status" db:"status"`
	TotalAmount decimal.Decimal `json:"totalAmount" db:"total_amount"`
	OrderDate   time.Time       `json:"orderDate" db:"order_date"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
	Lines       []OrderLine     `json:"orderDetails,omitempty"`
	Shipping    *Shipping       `json:"shipping,omitempty"`
	Payment     *Payment        `json:"payment,omitempty"`
	Vouchers    []string        `json:"vouchers,omitempty"`
}

// OrderLine is one purchased product option. Price is frozen at creation time.
type OrderLine struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	OrderID         uuid.UUID       `json:"-" db:"order_id"`
	ProductOptionID uuid.UUID       `json:"productOptionId" db:"product_option_id"`
	Price           decimal.Decimal `json:"price" db:"price"`
	Quantity        int             `json:"quantity" db:"quantity"`
	Subtotal        decimal.Decimal `json:"subtotal" db:"subtotal"`
}

// Address is the delivery destination of a shipment.
type Address struct {
	Address  string `json:"address" db:"address"`
	Province string `json:"province" db:"province"`
	District string `json:"district" db:"district"`
	Ward     string `json:"ward" db:"ward"`
	Hamlet   string `json:"hamlet" db:"hamlet"`
}

// Shipping holds the carrier-facing data of an order.
type Shipping struct {
	ID         uuid.UUID `json:"id" db:"id"`
	OrderID    uuid.UUID `json:"-" db:"order_id"`
	DeliveryID uuid.UUID `json:"deliveryId" db:"delivery_id"`
	Address
	TrackingNumber string          `json:"trackingNumber" db:"tracking_number"`
	Label          string          `json:"-" db:"order_label"`
	Fee            decimal.Decimal `json:"fee" db:"fee"`
	EstimateDate   string          `json:"estimateDate" db:"estimate_date"`
}

// Payment mirrors the order total; TransactionID stays nil until a gateway confirms.
type Payment struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	OrderID       uuid.UUID       `json:"-" db:"order_id"`
	Method        string          `json:"paymentMethod" db:"payment_method"`
	TransactionID *string         `json:"transactionId" db:"transaction_id"`
	TotalPrice    decimal.Decimal `json:"totalPrice" db:"total_price"`
}

// OrderRequest represents the request payload for creating an order from the cart.
type OrderRequest struct {
	DeliveryID    uuid.UUID `json:"deliveryId"`
	PaymentMethod string    `json:"paymentMethod"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone"`
	Note          string    `json:"note"`
	Address
	Items        []OrderItemRequest `json:"orderDetails"`
	VoucherCodes []string           `json:"voucherCodes,omitempty"`
}

// OrderItemRequest represents a single item in an order request.
type OrderItemRequest struct {
	ProductOptionID uuid.UUID `json:"productOptionId"`
	Quantity        int       `json:"quantity"`
}

// ComboOrderRequest buys a bundle: the main option plus the chosen combo items.
type ComboOrderRequest struct {
	DeliveryID      uuid.UUID   `json:"deliveryId"`
	PaymentMethod   string      `json:"paymentMethod"`
	Name            string      `json:"name"`
	Phone           string      `json:"phone"`
	Note            string      `json:"note"`
	ProductOptionID uuid.UUID   `json:"productOptionId"`
	ComboItemIDs    []uuid.UUID `json:"productComboIds"`
	Address
	VoucherCodes []string `json:"voucherCodes,omitempty"`
}

// OrderResult is returned by order creation.
type OrderResult struct {
	OrderID         uuid.UUID       `json:"orderId"`
	PaymentID       uuid.UUID       `json:"paymentId"`
	TrackingNumber  string          `json:"trackingNumber"`
	Subtotal        decimal.Decimal `json:"totalOrderPrice"`
	ShippingFee     decimal.Decimal `json:"shippingFee"`
	Total           decimal.Decimal `json:"total"`
	Lines           []OrderLine     `json:"orderDetails"`
	AppliedVouchers []string        `json:"appliedVouchers,omitempty"`
	VoucherError    string          `json:"voucherError,omitempty"`
}

// UpdateStatusRequest carries a requested status transition.
type UpdateStatusRequest struct {
	Status OrderStatus `json:"status"`
}

// StatusUpdateResult reports the outcome of a status change.
type StatusUpdateResult struct {
	OrderID       uuid.UUID   `json:"orderId"`
	UserID        uuid.UUID   `json:"userId"`
	Status        OrderStatus `json:"status"`
	TransactionID *string     `json:"transactionId,omitempty"`
}

// UpdatePaymentRequest records the payment gateway's transaction id.
type UpdatePaymentRequest struct {
	TransactionID string `json:"transactionId"`
}

// ShippingFeeRequest asks the carrier for a quote.
type ShippingFeeRequest struct {
	Province    string          `json:"province"`
	District    string          `json:"district"`
	Ward        string          `json:"ward"`
	WeightGrams int             `json:"weight"`
	Value       decimal.Decimal `json:"value"`
}

// ShippingFeeResponse is the carrier quote returned to clients.
type ShippingFeeResponse struct {
	Fee        decimal.Decimal `json:"fee"`
	Delivery   bool            `json:"delivery"`
	IncludeVAT bool            `json:"includeVat"`
}
