package repository

import (
	"context"
	"fmt"

	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

type comboRepository struct {
	logger zerolog.Logger
}

// NewComboRepository creates a new PostgreSQL-backed combo repository.
func NewComboRepository(logger zerolog.Logger) ComboRepository {
	return &comboRepository{
		logger: logger.With().Str("repository", "combo").Logger(),
	}
}

// GetComboItems returns the combo items with the given ids. Unknown ids are skipped.
func (r *comboRepository) GetComboItems(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) ([]model.ComboItem, error) {
	if len(ids) == 0 {
		return []model.ComboItem{}, nil
	}

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	rows, err := tx.Query(ctx, `
		SELECT id, combo_id, product_option_id, discount
		FROM combo_items
		WHERE id = ANY($1::uuid[])
		ORDER BY product_option_id
	`, strIDs)
	if err != nil {
		r.logger.Error().Err(err).Int("count", len(ids)).Msg("failed to query combo items")
		return nil, fmt.Errorf("failed to query combo items: %w", err)
	}
	defer rows.Close()

	items := make([]model.ComboItem, 0, len(ids))
	for rows.Next() {
		var it model.ComboItem
		if err := rows.Scan(&it.ID, &it.ComboID, &it.ProductOptionID, &it.Discount); err != nil {
			return nil, fmt.Errorf("failed to scan combo item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating combo items: %w", err)
	}
	return items, nil
}

func (r *comboRepository) CreateOrderCombo(ctx context.Context, tx pgx.Tx, orderID, comboID uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO order_combos (id, order_id, combo_id) VALUES ($1, $2, $3)`,
		uuid.New(), orderID, comboID,
	)
	if err != nil {
		r.logger.Error().Err(err).
			Str("order_id", orderID.String()).
			Str("combo_id", comboID.String()).
			Msg("failed to record order combo")
		return fmt.Errorf("failed to record order combo: %w", err)
	}
	return nil
}
