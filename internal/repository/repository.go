package repository

import (
	"context"
	"errors"

	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var (
	// ErrUsageExists is returned when a voucher usage row already exists for
	// the order or for the user.
	ErrUsageExists = errors.New("voucher usage already recorded")

	// ErrVoucherExhausted is returned when a voucher has no quantity left to decrement.
	ErrVoucherExhausted = errors.New("voucher quantity exhausted")
)

// Transactor runs a unit of work inside one database transaction.
type Transactor interface {
	// WithinTx begins a transaction, runs fn and commits. The transaction is
	// rolled back when fn returns an error or panics.
	WithinTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// UserRepository looks up buyers and delivery methods.
// Both lookups return nil, nil when the row does not exist.
type UserRepository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetDelivery(ctx context.Context, id uuid.UUID) (*model.Delivery, error)
}

// InventoryRepository is the cart and stock store.
type InventoryRepository interface {
	// FindCartLine returns the user's cart line for the option, or nil when there is none.
	FindCartLine(ctx context.Context, tx pgx.Tx, userID, productOptionID uuid.UUID) (*model.CartLine, error)

	// GetOption returns the option with its product's base price, or nil when missing.
	GetOption(ctx context.Context, tx pgx.Tx, productOptionID uuid.UUID) (*model.ProductOption, error)

	// ReserveStock decrements stock only when at least quantity remains.
	// It returns model.ErrInsufficientStock otherwise.
	ReserveStock(ctx context.Context, tx pgx.Tx, productOptionID uuid.UUID, quantity int) error

	// ConsumeCartLine removes quantity from the cart line, deleting it at zero.
	// It returns model.ErrInsufficientCart when the line holds less than quantity.
	ConsumeCartLine(ctx context.Context, tx pgx.Tx, cartLineID uuid.UUID, quantity int) error

	// ReleaseStock puts quantity back on the option.
	ReleaseStock(ctx context.Context, tx pgx.Tx, productOptionID uuid.UUID, quantity int) error
}

// ComboRepository reads bundles and records which bundle an order bought.
type ComboRepository interface {
	GetComboItems(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) ([]model.ComboItem, error)
	CreateOrderCombo(ctx context.Context, tx pgx.Tx, orderID, comboID uuid.UUID) error
}

// OrderRepository defines the interface for order data access operations.
type OrderRepository interface {
	// CreateOrder inserts a new order within the provided transaction.
	CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error

	// CreateOrderLines inserts the order's lines within the provided transaction.
	CreateOrderLines(ctx context.Context, tx pgx.Tx, lines []model.OrderLine) error

	CreateShipping(ctx context.Context, tx pgx.Tx, shipping *model.Shipping) error
	CreatePayment(ctx context.Context, tx pgx.Tx, payment *model.Payment) error

	// UpdateTotals sets orders.total_amount and payments.total_price together.
	UpdateTotals(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, total decimal.Decimal) error

	// GetForUpdate locks the order row and returns it with its shipping record.
	// It returns nil, nil when the order does not exist.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error)

	// UpdateStatus moves the order from one status to another. It reports
	// false when the order was not in the expected status.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.OrderStatus) (bool, error)

	// GetByID retrieves an order with its lines, shipping, payment and voucher codes.
	// It returns nil, nil when the order does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// ListByUser returns the user's orders, newest first. An empty status matches all.
	ListByUser(ctx context.Context, userID uuid.UUID, status model.OrderStatus) ([]model.Order, error)

	// ListAll returns every order, newest first.
	ListAll(ctx context.Context) ([]model.Order, error)

	// UpdatePaymentTransaction records the gateway transaction id.
	// It returns nil, nil when the payment does not exist.
	UpdatePaymentTransaction(ctx context.Context, paymentID uuid.UUID, transactionID string) (*model.Payment, error)
}

// VoucherRepository is the voucher catalogue and its usage ledger.
type VoucherRepository interface {
	// GetByCode returns the voucher, or nil when the code is unknown.
	GetByCode(ctx context.Context, tx pgx.Tx, code string) (*model.Voucher, error)

	// HasUsage reports whether the voucher was already used on the order or by the user.
	HasUsage(ctx context.Context, tx pgx.Tx, voucherID, orderID, userID uuid.UUID) (bool, error)

	// RecordUsage inserts the usage row. It returns ErrUsageExists on a duplicate.
	RecordUsage(ctx context.Context, tx pgx.Tx, voucherID, orderID, userID uuid.UUID) error

	// DecrementQuantity takes one unit off the voucher. It returns
	// ErrVoucherExhausted when none is left.
	DecrementQuantity(ctx context.Context, tx pgx.Tx, voucherID uuid.UUID) error

	// InsertVouchers adds vouchers whose code is not yet known and returns how many were inserted.
	InsertVouchers(ctx context.Context, vouchers []model.Voucher) (int64, error)
}
