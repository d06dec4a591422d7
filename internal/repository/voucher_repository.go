package repository

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type voucherRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewVoucherRepository creates a new PostgreSQL-backed voucher ledger store.
func NewVoucherRepository(pool *pgxpool.Pool, logger zerolog.Logger) VoucherRepository {
	return &voucherRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "voucher").Logger(),
	}
}

func (r *voucherRepository) GetByCode(ctx context.Context, tx pgx.Tx, code string) (*model.Voucher, error) {
	query := `
		SELECT id, code, type, value, available_quantity, min_order_value, start_date, end_date, disabled
		FROM vouchers
		WHERE code = $1
	`

	var v model.Voucher
	err := tx.QueryRow(ctx, query, code).Scan(
		&v.ID, &v.Code, &v.Type, &v.Value, &v.AvailableQuantity,
		&v.MinOrderValue, &v.StartDate, &v.EndDate, &v.Disabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("voucher_code", code).Msg("failed to query voucher")
		return nil, fmt.Errorf("failed to query voucher: %w", err)
	}
	return &v, nil
}

func (r *voucherRepository) HasUsage(ctx context.Context, tx pgx.Tx, voucherID, orderID, userID uuid.UUID) (bool, error) {
	var used bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM order_vouchers
			WHERE voucher_id = $1 AND (order_id = $2 OR user_id = $3)
		)
	`, voucherID, orderID, userID).Scan(&used)
	if err != nil {
		r.logger.Error().Err(err).Str("voucher_id", voucherID.String()).Msg("failed to query voucher usage")
		return false, fmt.Errorf("failed to query voucher usage: %w", err)
	}
	return used, nil
}

func (r *voucherRepository) RecordUsage(ctx context.Context, tx pgx.Tx, voucherID, orderID, userID uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO order_vouchers (id, voucher_id, order_id, user_id) VALUES ($1, $2, $3, $4)`,
		uuid.New(), voucherID, orderID, userID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsageExists
		}
		r.logger.Error().Err(err).
			Str("voucher_id", voucherID.String()).
			Str("order_id", orderID.String()).
			Msg("failed to record voucher usage")
		return fmt.Errorf("failed to record voucher usage: %w", err)
	}
	return nil
}

func (r *voucherRepository) DecrementQuantity(ctx context.Context, tx pgx.Tx, voucherID uuid.UUID) error {
	tag, err := tx.Exec(ctx,
		`UPDATE vouchers SET available_quantity = available_quantity - 1 WHERE id = $1 AND available_quantity > 0`,
		voucherID,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("voucher_id", voucherID.String()).Msg("failed to decrement voucher")
		return fmt.Errorf("failed to decrement voucher: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVoucherExhausted
	}
	return nil
}

// InsertVouchers queues one insert per voucher in a single batch. Codes that
// already exist are left untouched.
func (r *voucherRepository) InsertVouchers(ctx context.Context, vouchers []model.Voucher) (int64, error) {
	if len(vouchers) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO vouchers (id, code, type, value, available_quantity, min_order_value, start_date, end_date, disabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (code) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, v := range vouchers {
		id := v.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		batch.Queue(query, id, v.Code, v.Type, v.Value, v.AvailableQuantity, v.MinOrderValue, v.StartDate, v.EndDate, v.Disabled)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for i := range vouchers {
		tag, err := results.Exec()
		if err != nil {
			r.logger.Error().Err(err).Str("voucher_code", vouchers[i].Code).Msg("failed to insert voucher")
			return inserted, fmt.Errorf("failed to insert voucher %s: %w", vouchers[i].Code, err)
		}
		inserted += tag.RowsAffected()
	}

	r.logger.Debug().Int64("inserted", inserted).Int("total", len(vouchers)).Msg("vouchers inserted")
	return inserted, nil
}
