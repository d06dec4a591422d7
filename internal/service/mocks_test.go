package service

import (
	"context"
	"sync"

	"storefront/internal/model"
	"storefront/internal/shipping"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockTx is a minimal mock implementation of pgx.Tx for testing.
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Commit(ctx context.Context) error   { return nil }
func (m *MockTx) Rollback(ctx context.Context) error { return nil }

// Stub methods to satisfy pgx.Tx interface - these are not used in our tests
func (m *MockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (m *MockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (m *MockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (m *MockTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (m *MockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (m *MockTx) Exec(ctx context.Context, sql string, arguments ...any) (commandTag pgconn.CommandTag, err error) {
	return
}
func (m *MockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (m *MockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (m *MockTx) Conn() *pgx.Conn                                               { return nil }

// MockTransactor runs fn on a MockTx. commitErr simulates a failed commit.
type MockTransactor struct {
	tx        *MockTx
	commitErr error
	calls     int
}

func newMockTransactor() *MockTransactor {
	return &MockTransactor{tx: new(MockTx)}
}

func (m *MockTransactor) WithinTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	m.calls++
	if err := fn(m.tx); err != nil {
		return err
	}
	return m.commitErr
}

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) GetDelivery(ctx context.Context, id uuid.UUID) (*model.Delivery, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Delivery), args.Error(1)
}

// MockInventoryRepository is a mock implementation of InventoryRepository.
type MockInventoryRepository struct {
	mock.Mock
}

func (m *MockInventoryRepository) FindCartLine(ctx context.Context, tx pgx.Tx, userID, productOptionID uuid.UUID) (*model.CartLine, error) {
	args := m.Called(ctx, tx, userID, productOptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CartLine), args.Error(1)
}

func (m *MockInventoryRepository) GetOption(ctx context.Context, tx pgx.Tx, productOptionID uuid.UUID) (*model.ProductOption, error) {
	args := m.Called(ctx, tx, productOptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProductOption), args.Error(1)
}

func (m *MockInventoryRepository) ReserveStock(ctx context.Context, tx pgx.Tx, productOptionID uuid.UUID, quantity int) error {
	return m.Called(ctx, tx, productOptionID, quantity).Error(0)
}

func (m *MockInventoryRepository) ConsumeCartLine(ctx context.Context, tx pgx.Tx, cartLineID uuid.UUID, quantity int) error {
	return m.Called(ctx, tx, cartLineID, quantity).Error(0)
}

func (m *MockInventoryRepository) ReleaseStock(ctx context.Context, tx pgx.Tx, productOptionID uuid.UUID, quantity int) error {
	return m.Called(ctx, tx, productOptionID, quantity).Error(0)
}

// MockComboRepository is a mock implementation of ComboRepository.
type MockComboRepository struct {
	mock.Mock
}

func (m *MockComboRepository) GetComboItems(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) ([]model.ComboItem, error) {
	args := m.Called(ctx, tx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ComboItem), args.Error(1)
}

func (m *MockComboRepository) CreateOrderCombo(ctx context.Context, tx pgx.Tx, orderID, comboID uuid.UUID) error {
	return m.Called(ctx, tx, orderID, comboID).Error(0)
}

// MockOrderRepository is a mock implementation of OrderRepository.
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	return m.Called(ctx, tx, order).Error(0)
}

func (m *MockOrderRepository) CreateOrderLines(ctx context.Context, tx pgx.Tx, lines []model.OrderLine) error {
	return m.Called(ctx, tx, lines).Error(0)
}

func (m *MockOrderRepository) CreateShipping(ctx context.Context, tx pgx.Tx, s *model.Shipping) error {
	return m.Called(ctx, tx, s).Error(0)
}

func (m *MockOrderRepository) CreatePayment(ctx context.Context, tx pgx.Tx, p *model.Payment) error {
	return m.Called(ctx, tx, p).Error(0)
}

func (m *MockOrderRepository) UpdateTotals(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, total decimal.Decimal) error {
	return m.Called(ctx, tx, orderID, total).Error(0)
}

func (m *MockOrderRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.OrderStatus) (bool, error) {
	args := m.Called(ctx, tx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, status model.OrderStatus) ([]model.Order, error) {
	args := m.Called(ctx, userID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Order), args.Error(1)
}

func (m *MockOrderRepository) ListAll(ctx context.Context) ([]model.Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdatePaymentTransaction(ctx context.Context, paymentID uuid.UUID, transactionID string) (*model.Payment, error) {
	args := m.Called(ctx, paymentID, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

// MockLedger is a mock implementation of voucher.Ledger.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Validate(ctx context.Context, tx pgx.Tx, userID, orderID uuid.UUID, code string, total decimal.Decimal) (*model.Voucher, error) {
	args := m.Called(ctx, tx, userID, orderID, code, total)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Voucher), args.Error(1)
}

func (m *MockLedger) Redeem(ctx context.Context, tx pgx.Tx, userID, orderID uuid.UUID, v *model.Voucher) error {
	return m.Called(ctx, tx, userID, orderID, v).Error(0)
}

// MockGateway is a mock implementation of shipping.Gateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) QuoteFee(ctx context.Context, req shipping.FeeRequest) (*shipping.Quote, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shipping.Quote), args.Error(1)
}

func (m *MockGateway) CreateShipment(ctx context.Context, req shipping.ShipmentRequest) (*shipping.Shipment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shipping.Shipment), args.Error(1)
}

func (m *MockGateway) CancelShipment(ctx context.Context, label string) error {
	return m.Called(ctx, label).Error(0)
}

// fakeCache is an in-memory OrderCache with the same generation rule as Redis.
type fakeCache struct {
	mu          sync.Mutex
	orders      map[uuid.UUID]*model.Order
	gens        map[uuid.UUID]int64
	invalidated []uuid.UUID
}

func newFakeCache() *fakeCache {
	return &fakeCache{orders: make(map[uuid.UUID]*model.Order), gens: make(map[uuid.UUID]int64)}
}

func (c *fakeCache) Get(ctx context.Context, id uuid.UUID) (*model.Order, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orders[id], c.gens[id], nil
}

func (c *fakeCache) Set(ctx context.Context, order *model.Order, gen int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[order.ID] != gen {
		return nil
	}
	c.orders[order.ID] = order
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.orders, id)
	c.gens[id]++
	c.invalidated = append(c.invalidated, id)
	return nil
}

// recordingPublisher keeps the event types it was given.
type recordingPublisher struct {
	mu       sync.Mutex
	types    []string
	payloads []any
}

func (p *recordingPublisher) Publish(ctx context.Context, eventType string, orderID uuid.UUID, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, eventType)
	p.payloads = append(p.payloads, payload)
}

func (p *recordingPublisher) Close() error { return nil }
