// Package pricing holds the order price arithmetic. All functions are pure and
// round money to two decimal places.
package pricing

import (
	"storefront/internal/model"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// EffectivePrice returns the unit price of an option after its percentage discount:
// (base + modifier) - (base + modifier) * discount / 100.
func EffectivePrice(basePrice, priceModifier, discountPercent decimal.Decimal) decimal.Decimal {
	gross := basePrice.Add(priceModifier)
	return gross.Sub(gross.Mul(discountPercent).Div(hundred)).Round(2)
}

// LineSubtotal returns price * quantity.
func LineSubtotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// SumSubtotals adds up the subtotals of lines.
func SumSubtotals(lines []model.OrderLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Subtotal)
	}
	return sum
}

// VoucherDiscount returns the amount v takes off total. A FIXED voucher never
// discounts more than total, so the running total floors at zero.
func VoucherDiscount(total decimal.Decimal, v model.Voucher) decimal.Decimal {
	var d decimal.Decimal
	switch v.Type {
	case model.VoucherFixed:
		d = v.Value
	case model.VoucherPercent:
		d = total.Mul(v.Value).Div(hundred)
	default:
		return decimal.Zero
	}
	d = d.Round(2)
	if d.GreaterThan(total) {
		return total
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// ApplyVoucher returns total after v.
func ApplyVoucher(total decimal.Decimal, v model.Voucher) decimal.Decimal {
	return total.Sub(VoucherDiscount(total, v))
}

// ApplyVouchers applies vs in order, each against the already discounted total.
func ApplyVouchers(total decimal.Decimal, vs []model.Voucher) decimal.Decimal {
	for _, v := range vs {
		total = ApplyVoucher(total, v)
	}
	return total
}
