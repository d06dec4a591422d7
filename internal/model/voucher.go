package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VoucherType selects how a voucher's value is applied.
type VoucherType string

const (
	VoucherFixed   VoucherType = "FIXED"
	VoucherPercent VoucherType = "PERCENT"
)

// Voucher is a redeemable discount code.
type Voucher struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	Code              string          `json:"code" db:"code"`
	Type              VoucherType     `json:"type" db:"type"`
	Value             decimal.Decimal `json:"value" db:"value"`
	AvailableQuantity int             `json:"availableQuantity" db:"available_quantity"`
	MinOrderValue     decimal.Decimal `json:"minOrderValue" db:"min_order_value"`
	StartDate         time.Time       `json:"startDate" db:"start_date"`
	EndDate           time.Time       `json:"endDate" db:"end_date"`
	Disabled          bool            `json:"disabled" db:"disabled"`
}

// ApplyVoucherRequest applies one voucher code to an existing order.
type ApplyVoucherRequest struct {
	Code string `json:"code"`
}

// VoucherApplication reports the effect of one applied voucher.
type VoucherApplication struct {
	OrderID  uuid.UUID       `json:"orderId"`
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}
