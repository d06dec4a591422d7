package repository

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// inventoryRepository implements InventoryRepository using PostgreSQL.
// Every method runs on the caller's transaction.
type inventoryRepository struct {
	logger zerolog.Logger
}

// NewInventoryRepository creates a new PostgreSQL-backed cart and stock store.
func NewInventoryRepository(logger zerolog.Logger) InventoryRepository {
	return &inventoryRepository{
		logger: logger.With().Str("repository", "inventory").Logger(),
	}
}

func (r *inventoryRepository) FindCartLine(ctx context.Context, tx pgx.Tx, userID, productOptionID uuid.UUID) (*model.CartLine, error) {
	query := `
		SELECT id, user_id, product_option_id, quantity
		FROM carts
		WHERE user_id = $1 AND product_option_id = $2
	`

	var c model.CartLine
	err := tx.QueryRow(ctx, query, userID, productOptionID).Scan(&c.ID, &c.UserID, &c.ProductOptionID, &c.Quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).
			Str("user_id", userID.String()).
			Str("product_option_id", productOptionID.String()).
			Msg("failed to query cart line")
		return nil, fmt.Errorf("failed to query cart line: %w", err)
	}
	return &c, nil
}

func (r *inventoryRepository) GetOption(ctx context.Context, tx pgx.Tx, productOptionID uuid.UUID) (*model.ProductOption, error) {
	query := `
		SELECT po.id, po.product_id, p.name, po.sku, p.price, po.price_modifier,
		       po.discount, po.stock, po.weight_grams
		FROM product_options po
		JOIN products p ON p.id = po.product_id
		WHERE po.id = $1
	`

	var o model.ProductOption
	err := tx.QueryRow(ctx, query, productOptionID).Scan(
		&o.ID,
		&o.ProductID,
		&o.ProductName,
		&o.SKU,
		&o.BasePrice,
		&o.PriceModifier,
		&o.Discount,
		&o.Stock,
		&o.WeightGrams,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("product_option_id", productOptionID.String()).Msg("product option not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("product_option_id", productOptionID.String()).Msg("failed to query product option")
		return nil, fmt.Errorf("failed to query product option: %w", err)
	}
	return &o, nil
}

func (r *inventoryRepository) ReserveStock(ctx context.Context, tx pgx.Tx, productOptionID uuid.UUID, quantity int) error {
	tag, err := tx.Exec(ctx,
		`UPDATE product_options SET stock = stock - $2 WHERE id = $1 AND stock >= $2`,
		productOptionID, quantity,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("product_option_id", productOptionID.String()).Msg("failed to reserve stock")
		return fmt.Errorf("failed to reserve stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrInsufficientStock
	}

	r.logger.Debug().
		Str("product_option_id", productOptionID.String()).
		Int("quantity", quantity).
		Msg("stock reserved")
	return nil
}

func (r *inventoryRepository) ConsumeCartLine(ctx context.Context, tx pgx.Tx, cartLineID uuid.UUID, quantity int) error {
	tag, err := tx.Exec(ctx, `DELETE FROM carts WHERE id = $1 AND quantity = $2`, cartLineID, quantity)
	if err != nil {
		r.logger.Error().Err(err).Str("cart_line_id", cartLineID.String()).Msg("failed to delete cart line")
		return fmt.Errorf("failed to consume cart line: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	tag, err = tx.Exec(ctx,
		`UPDATE carts SET quantity = quantity - $2 WHERE id = $1 AND quantity > $2`,
		cartLineID, quantity,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("cart_line_id", cartLineID.String()).Msg("failed to decrement cart line")
		return fmt.Errorf("failed to consume cart line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrInsufficientCart
	}
	return nil
}

func (r *inventoryRepository) ReleaseStock(ctx context.Context, tx pgx.Tx, productOptionID uuid.UUID, quantity int) error {
	_, err := tx.Exec(ctx,
		`UPDATE product_options SET stock = stock + $2 WHERE id = $1`,
		productOptionID, quantity,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("product_option_id", productOptionID.String()).Msg("failed to release stock")
		return fmt.Errorf("failed to release stock: %w", err)
	}
	return nil
}
