// Package voucher validates and redeems discount codes and seeds the voucher
// catalogue from gzipped JSON-lines files.
package voucher

import (
	"context"

	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Reason tells why a voucher cannot be applied.
type Reason string

const (
	ReasonNotFound     Reason = "NOT_FOUND"
	ReasonExpired      Reason = "EXPIRED_CODE"
	ReasonAlreadyUsed  Reason = "ALREADY_USED"
	ReasonExhausted    Reason = "EXHAUSTED"
	ReasonBelowMinimum Reason = "BELOW_MINIMUM"
)

var reasonMessages = map[Reason]string{
	ReasonNotFound:     "Voucher does not exist",
	ReasonExpired:      "Voucher has expired",
	ReasonAlreadyUsed:  "Voucher has already been used",
	ReasonExhausted:    "Voucher is out of stock",
	ReasonBelowMinimum: "Order value is not enough to apply this voucher",
}

// Error is a voucher rejection. It is returned wrapped in a model.DomainError,
// so errors.As finds both.
type Error struct {
	Reason Reason
	Code   string
}

func (e *Error) Error() string {
	return reasonMessages[e.Reason]
}

// Is matches any *Error with the same reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

// Reason sentinels for errors.Is.
var (
	ErrNotFound     = &Error{Reason: ReasonNotFound}
	ErrExpired      = &Error{Reason: ReasonExpired}
	ErrAlreadyUsed  = &Error{Reason: ReasonAlreadyUsed}
	ErrExhausted    = &Error{Reason: ReasonExhausted}
	ErrBelowMinimum = &Error{Reason: ReasonBelowMinimum}
)

func reject(reason Reason, code string) error {
	e := &Error{Reason: reason, Code: code}
	kind := model.KindUnprocessable
	errCode := model.ErrCodeVoucherInvalid
	if reason == ReasonNotFound {
		kind = model.KindNotFound
		errCode = model.ErrCodeVoucherNotFound
	}
	return model.Wrap(kind, errCode, e.Error(), e)
}

// Ledger checks vouchers against an order and records their use.
// Both methods run on the caller's transaction.
type Ledger interface {
	// Validate returns the voucher when code may be applied by userID to
	// orderID whose current total is total.
	Validate(ctx context.Context, tx pgx.Tx, userID, orderID uuid.UUID, code string, total decimal.Decimal) (*model.Voucher, error)

	// Redeem records the usage and takes one unit off the voucher.
	Redeem(ctx context.Context, tx pgx.Tx, userID, orderID uuid.UUID, v *model.Voucher) error
}

// Loader reads one voucher catalogue file.
type Loader interface {
	Load(ctx context.Context, path string) ([]model.Voucher, error)
}
