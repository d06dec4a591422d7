package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// orderSelect reads an order together with its shipping and payment rows,
// which are always created in the same transaction as the order.
const orderSelect = `
	SELECT o.id, o.user_id, o.name, o.phone, o.note, o.status, o.total_amount, o.order_date, o.updated_at,
	       s.id, s.delivery_id, s.address, s.province, s.district, s.ward, s.hamlet,
	       s.tracking_number, s.order_label, s.fee, s.estimate_date,
	       p.id, p.payment_method, p.transaction_id, p.total_price
	FROM orders o
	JOIN order_shippings s ON s.order_id = o.id
	JOIN payments p ON p.order_id = o.id
`

// orderRepository implements the OrderRepository interface using PostgreSQL.
type orderRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) OrderRepository {
	return &orderRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "order").Logger(),
	}
}

// CreateOrder inserts a new order within the provided transaction.
func (r *orderRepository) CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	query := `
		INSERT INTO orders (id, user_id, name, phone, note, status, total_amount, order_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := tx.Exec(ctx, query,
		order.ID, order.UserID, order.Name, order.Phone, order.Note,
		order.Status, order.TotalAmount, order.OrderDate, order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Msg("failed to create order")
		return fmt.Errorf("failed to create order: %w", err)
	}

	r.logger.Debug().
		Str("order_id", order.ID.String()).
		Msg("order created successfully")

	return nil
}

// CreateOrderLines inserts multiple order lines within the provided transaction.
func (r *orderRepository) CreateOrderLines(ctx context.Context, tx pgx.Tx, lines []model.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}

	query := `
		INSERT INTO order_details (id, order_id, product_option_id, price, quantity, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(query, l.ID, l.OrderID, l.ProductOptionID, l.Price, l.Quantity, l.Subtotal)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(lines); i++ {
		if _, err := results.Exec(); err != nil {
			r.logger.Error().
				Err(err).
				Str("order_id", lines[i].OrderID.String()).
				Str("product_option_id", lines[i].ProductOptionID.String()).
				Msg("failed to create order line")
			return fmt.Errorf("failed to create order line: %w", err)
		}
	}

	r.logger.Debug().
		Int("count", len(lines)).
		Msg("order lines created successfully")

	return nil
}

func (r *orderRepository) CreateShipping(ctx context.Context, tx pgx.Tx, s *model.Shipping) error {
	query := `
		INSERT INTO order_shippings (id, order_id, delivery_id, address, province, district, ward, hamlet,
		                             tracking_number, order_label, fee, estimate_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := tx.Exec(ctx, query,
		s.ID, s.OrderID, s.DeliveryID, s.Address.Address, s.Province, s.District, s.Ward, s.Hamlet,
		s.TrackingNumber, s.Label, s.Fee, s.EstimateDate,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", s.OrderID.String()).Msg("failed to create shipping")
		return fmt.Errorf("failed to create shipping: %w", err)
	}
	return nil
}

func (r *orderRepository) CreatePayment(ctx context.Context, tx pgx.Tx, p *model.Payment) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO payments (id, order_id, payment_method, transaction_id, total_price) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.OrderID, p.Method, p.TransactionID, p.TotalPrice,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", p.OrderID.String()).Msg("failed to create payment")
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *orderRepository) UpdateTotals(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, total decimal.Decimal) error {
	tag, err := tx.Exec(ctx,
		`UPDATE orders SET total_amount = $2, updated_at = $3 WHERE id = $1`,
		orderID, total, time.Now().UTC(),
	)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to update order total")
		return fmt.Errorf("failed to update order total: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}

	tag, err = tx.Exec(ctx, `UPDATE payments SET total_price = $2 WHERE order_id = $1`, orderID, total)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to update payment total")
		return fmt.Errorf("failed to update payment total: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrPaymentNotFound
	}
	return nil
}

func (r *orderRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error) {
	order, err := scanOrder(tx.QueryRow(ctx, orderSelect+` WHERE o.id = $1 FOR UPDATE OF o`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to lock order")
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.OrderStatus) (bool, error) {
	tag, err := tx.Exec(ctx,
		`UPDATE orders SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, from, to, time.Now().UTC(),
	)
	if err != nil {
		r.logger.Error().Err(err).
			Str("order_id", id.String()).
			Str("status", string(to)).
			Msg("failed to update order status")
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByID retrieves an order by its ID along with its lines and applied voucher codes.
func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, orderSelect+` WHERE o.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("order_id", id.String()).Msg("order not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to query order")
		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, product_option_id, price, quantity, subtotal
		FROM order_details
		WHERE order_id = $1
		ORDER BY product_option_id
	`, id)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to query order lines")
		return nil, fmt.Errorf("failed to query order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l model.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductOptionID, &l.Price, &l.Quantity, &l.Subtotal); err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order line row")
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		order.Lines = append(order.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order lines: %w", err)
	}

	codes, err := r.pool.Query(ctx, `
		SELECT v.code
		FROM order_vouchers ov
		JOIN vouchers v ON v.id = ov.voucher_id
		WHERE ov.order_id = $1
		ORDER BY ov.created_at
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query order vouchers: %w", err)
	}
	order.Vouchers, err = pgx.CollectRows(codes, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan order vouchers: %w", err)
	}

	return order, nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID uuid.UUID, status model.OrderStatus) ([]model.Order, error) {
	query := orderSelect + ` WHERE o.user_id = $1 AND ($2 = '' OR o.status = $2) ORDER BY o.order_date DESC`
	return r.list(ctx, query, userID, string(status))
}

func (r *orderRepository) ListAll(ctx context.Context) ([]model.Order, error) {
	return r.list(ctx, orderSelect+` ORDER BY o.order_date DESC`)
}

func (r *orderRepository) list(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to query orders")
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order row")
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}

func (r *orderRepository) UpdatePaymentTransaction(ctx context.Context, paymentID uuid.UUID, transactionID string) (*model.Payment, error) {
	var p model.Payment
	err := r.pool.QueryRow(ctx, `
		UPDATE payments SET transaction_id = $2
		WHERE id = $1
		RETURNING id, order_id, payment_method, transaction_id, total_price
	`, paymentID, transactionID).Scan(&p.ID, &p.OrderID, &p.Method, &p.TransactionID, &p.TotalPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("payment_id", paymentID.String()).Msg("failed to update payment")
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}
	return &p, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o model.Order
		s model.Shipping
		p model.Payment
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.Name, &o.Phone, &o.Note, &o.Status, &o.TotalAmount, &o.OrderDate, &o.UpdatedAt,
		&s.ID, &s.DeliveryID, &s.Address.Address, &s.Province, &s.District, &s.Ward, &s.Hamlet,
		&s.TrackingNumber, &s.Label, &s.Fee, &s.EstimateDate,
		&p.ID, &p.Method, &p.TransactionID, &p.TotalPrice,
	)
	if err != nil {
		return nil, err
	}
	s.OrderID = o.ID
	p.OrderID = o.ID
	o.Shipping = &s
	o.Payment = &p
	return &o, nil
}
