package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/handler"
	"storefront/internal/repository"
	"storefront/internal/router"
	"storefront/internal/service"
	"storefront/internal/shipping"
	"storefront/internal/voucher"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testAPIKey = "test-api-key"

// TestDB represents a test database instance.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB creates a PostgreSQL test container, a connection pool and the schema.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	// Create PostgreSQL container
	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	// Get connection string
	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	logger := zerolog.Nop()
	pool, err := database.NewPoolFromURL(ctx, connStr, config.DatabaseConfig{
		MaxConnections:  20,
		MinConnections:  2,
		MaxConnLifetime: 300,
	}, logger)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}

	if err := database.Migrate(ctx, pool, logger); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	return &TestDB{
		Container: postgresContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
}

// Catalog holds the ids of the seeded catalogue.
type Catalog struct {
	DeliveryID uuid.UUID
	ProductID  uuid.UUID
	OptionID   uuid.UUID
	ComboID    uuid.UUID
	ComboItem  uuid.UUID
}

// SeedCatalog inserts one delivery method and one option priced 1,000,000 at
// 10% off with the given stock, plus a combo holding that option at 20% off.
func SeedCatalog(t *testing.T, pool *pgxpool.Pool, stock int) Catalog {
	t.Helper()

	c := Catalog{
		DeliveryID: uuid.New(),
		ProductID:  uuid.New(),
		OptionID:   uuid.New(),
		ComboID:    uuid.New(),
		ComboItem:  uuid.New(),
	}
	exec(t, pool, `INSERT INTO deliveries (id, name) VALUES ($1, 'GHTK')`, c.DeliveryID)
	exec(t, pool, `INSERT INTO products (id, name, price) VALUES ($1, 'Phone X', 1000000)`, c.ProductID)
	exec(t, pool, `INSERT INTO product_options (id, product_id, sku, price_modifier, discount, stock, weight_grams)
		VALUES ($1, $2, 'PHONE-X-BLK', 0, 10, $3, 300)`, c.OptionID, c.ProductID, stock)
	exec(t, pool, `INSERT INTO combos (id, name) VALUES ($1, 'Starter kit')`, c.ComboID)
	exec(t, pool, `INSERT INTO combo_items (id, combo_id, product_option_id, discount) VALUES ($1, $2, $3, 20)`,
		c.ComboItem, c.ComboID, c.OptionID)
	return c
}

// SeedBuyer inserts a user holding cartQty of optionID in their cart.
func SeedBuyer(t *testing.T, pool *pgxpool.Pool, optionID uuid.UUID, cartQty int) uuid.UUID {
	t.Helper()

	id := uuid.New()
	exec(t, pool, `INSERT INTO users (id, email, name) VALUES ($1, $2, 'Buyer')`, id, id.String()+"@example.com")
	if cartQty > 0 {
		exec(t, pool, `INSERT INTO carts (id, user_id, product_option_id, quantity) VALUES ($1, $2, $3, $4)`,
			uuid.New(), id, optionID, cartQty)
	}
	return id
}

// SeedVoucher inserts a live voucher with the given percent value and quantity.
func SeedVoucher(t *testing.T, pool *pgxpool.Pool, code string, percent, quantity int) uuid.UUID {
	t.Helper()

	id := uuid.New()
	now := time.Now().UTC()
	exec(t, pool, `INSERT INTO vouchers (id, code, type, value, available_quantity, min_order_value, start_date, end_date)
		VALUES ($1, $2, 'PERCENT', $3, $4, 500000, $5, $6)`,
		id, code, percent, quantity, now.Add(-24*time.Hour), now.Add(30*24*time.Hour))
	return id
}

func exec(t *testing.T, pool *pgxpool.Pool, sql string, args ...any) {
	t.Helper()
	if _, err := pool.Exec(context.Background(), sql, args...); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

// FakeCarrier is an in-process stand-in for the GHTK API.
type FakeCarrier struct {
	Server *httptest.Server

	mu           sync.Mutex
	seq          int
	created      []string
	cancelled    []string
	rejectCreate string
	cancelStatus int
}

// NewFakeCarrier starts a fake carrier that accepts every request.
func NewFakeCarrier(t *testing.T) *FakeCarrier {
	t.Helper()

	c := &FakeCarrier{}
	c.Server = httptest.NewServer(http.HandlerFunc(c.serve))
	t.Cleanup(c.Server.Close)
	return c
}

// RejectCreate makes shipment creation answer success=false with message.
func (c *FakeCarrier) RejectCreate(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectCreate = message
}

// FailCancel makes shipment cancellation answer with the given HTTP status.
func (c *FakeCarrier) FailCancel(status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelStatus = status
}

// Created returns the labels of created shipments.
func (c *FakeCarrier) Created() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.created...)
}

// Cancelled returns the labels the carrier was asked to cancel.
func (c *FakeCarrier) Cancelled() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cancelled...)
}

func (c *FakeCarrier) serve(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/shipment/fee":
		writeCarrier(w, http.StatusOK, map[string]any{
			"success": true,
			"fee":     map[string]any{"fee": 30000, "delivery": true, "include_vat": 0},
		})

	case r.URL.Path == "/shipment/order":
		if c.rejectCreate != "" {
			writeCarrier(w, http.StatusOK, map[string]any{"success": false, "message": c.rejectCreate})
			return
		}
		c.seq++
		label := fmt.Sprintf("S1.A1.%d", 17373470+c.seq)
		c.created = append(c.created, label)
		writeCarrier(w, http.StatusOK, map[string]any{
			"success": true,
			"order": map[string]any{
				"label":                  label,
				"tracking_id":            17373470 + c.seq,
				"fee":                    20000,
				"estimated_deliver_time": "Chiều 18/10/2026",
			},
		})

	case strings.HasPrefix(r.URL.Path, "/shipment/cancel/"):
		label := strings.TrimPrefix(r.URL.Path, "/shipment/cancel/")
		c.cancelled = append(c.cancelled, label)
		if c.cancelStatus != 0 {
			writeCarrier(w, c.cancelStatus, map[string]any{"success": false, "message": "upstream error"})
			return
		}
		writeCarrier(w, http.StatusOK, map[string]any{"success": true, "message": ""})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeCarrier(w http.ResponseWriter, status int, body any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// NewWorkflow wires the order workflow against the test database and carrier.
func NewWorkflow(testDB *TestDB, carrier *FakeCarrier) service.OrderWorkflow {
	logger := zerolog.Nop()
	pool := testDB.Pool

	return service.NewOrderWorkflow(service.Dependencies{
		Tx:        repository.NewTransactor(pool, logger),
		Users:     repository.NewUserRepository(pool, logger),
		Inventory: repository.NewInventoryRepository(logger),
		Combos:    repository.NewComboRepository(logger),
		Orders:    repository.NewOrderRepository(pool, logger),
		Vouchers:  voucher.NewLedger(repository.NewVoucherRepository(pool, logger), logger),
		Carrier: shipping.NewGHTKGateway(config.CarrierConfig{
			BaseURL:           carrier.Server.URL,
			Token:             "test-token",
			Timeout:           5 * time.Second,
			RequestsPerSecond: 1000,
			Burst:             100,
			PickProvince:      "Ha Noi",
			PickDistrict:      "Cau Giay",
		}, logger),
	}, logger)
}

// NewTestServer builds the full HTTP stack without Redis or Kafka.
func NewTestServer(testDB *TestDB, carrier *FakeCarrier) http.Handler {
	logger := zerolog.Nop()
	orderHandler := handler.NewOrderHandler(NewWorkflow(testDB, carrier), nil, logger)
	return router.New(orderHandler, testAPIKey, logger)
}
