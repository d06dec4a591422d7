package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultWeightGrams is used for options without a recorded weight.
const DefaultWeightGrams = 500

// ProductOption is a purchasable SKU variant carrying its own stock and pricing.
// Discount is a percentage in [0, 100].
type ProductOption struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	ProductID     uuid.UUID       `json:"productId" db:"product_id"`
	ProductName   string          `json:"productName" db:"name"`
	SKU           string          `json:"sku" db:"sku"`
	BasePrice     decimal.Decimal `json:"basePrice" db:"price"`
	PriceModifier decimal.Decimal `json:"priceModifier" db:"price_modifier"`
	Discount      decimal.Decimal `json:"discount" db:"discount"`
	Stock         int             `json:"stock" db:"stock"`
	WeightGrams   int             `json:"weight" db:"weight_grams"`
}

// CartLine is a user's pending quantity of one product option.
type CartLine struct {
	ID              uuid.UUID `json:"id" db:"id"`
	UserID          uuid.UUID `json:"userId" db:"user_id"`
	ProductOptionID uuid.UUID `json:"productOptionId" db:"product_option_id"`
	Quantity        int       `json:"quantity" db:"quantity"`
}

// ComboItem is one member of a predefined bundle with its bundle discount.
type ComboItem struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	ComboID         uuid.UUID       `json:"comboId" db:"combo_id"`
	ProductOptionID uuid.UUID       `json:"productOptionId" db:"product_option_id"`
	Discount        decimal.Decimal `json:"discount" db:"discount"`
}
