package voucher

import (
	"context"
	"errors"
	"time"

	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type ledger struct {
	repo   repository.VoucherRepository
	now    func() time.Time
	logger zerolog.Logger
}

// NewLedger creates a Ledger backed by repo.
func NewLedger(repo repository.VoucherRepository, logger zerolog.Logger) Ledger {
	return &ledger{
		repo:   repo,
		now:    time.Now,
		logger: logger.With().Str("component", "voucher-ledger").Logger(),
	}
}

// Validate runs the checks in a fixed order: existence, enabled, date window,
// prior use, remaining quantity, minimum order value. The order total must be
// strictly greater than the voucher's minimum.
func (l *ledger) Validate(ctx context.Context, tx pgx.Tx, userID, orderID uuid.UUID, code string, total decimal.Decimal) (*model.Voucher, error) {
	v, err := l.repo.GetByCode(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, reject(ReasonNotFound, code)
	}

	now := l.now()
	if v.Disabled || !v.StartDate.Before(v.EndDate) || now.Before(v.StartDate) || now.After(v.EndDate) {
		return nil, reject(ReasonExpired, code)
	}

	used, err := l.repo.HasUsage(ctx, tx, v.ID, orderID, userID)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, reject(ReasonAlreadyUsed, code)
	}

	if v.AvailableQuantity <= 0 {
		return nil, reject(ReasonExhausted, code)
	}

	if !total.GreaterThan(v.MinOrderValue) {
		l.logger.Debug().
			Str("voucher_code", code).
			Str("total", total.String()).
			Str("min_order_value", v.MinOrderValue.String()).
			Msg("order total below voucher minimum")
		return nil, reject(ReasonBelowMinimum, code)
	}

	return v, nil
}

func (l *ledger) Redeem(ctx context.Context, tx pgx.Tx, userID, orderID uuid.UUID, v *model.Voucher) error {
	if err := l.repo.RecordUsage(ctx, tx, v.ID, orderID, userID); err != nil {
		if errors.Is(err, repository.ErrUsageExists) {
			return reject(ReasonAlreadyUsed, v.Code)
		}
		return err
	}

	if err := l.repo.DecrementQuantity(ctx, tx, v.ID); err != nil {
		if errors.Is(err, repository.ErrVoucherExhausted) {
			return reject(ReasonExhausted, v.Code)
		}
		return err
	}

	l.logger.Info().
		Str("voucher_code", v.Code).
		Str("order_id", orderID.String()).
		Str("user_id", userID.String()).
		Msg("voucher redeemed")
	return nil
}
