// Package events publishes order lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventVoucherApplied     = "VoucherApplied"
)

const (
	envelopeVersion = 1
	producerName    = "storefront-api"
)

// Envelope wraps every event on the wire. CorrelationID is the order id.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type LineItem struct {
	ProductOptionID string          `json:"product_option_id"`
	Quantity        int             `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
}

type OrderCreatedPayload struct {
	OrderID        string          `json:"order_id"`
	UserID         string          `json:"user_id"`
	TrackingNumber string          `json:"tracking_number"`
	ShippingFee    decimal.Decimal `json:"shipping_fee"`
	Total          decimal.Decimal `json:"total"`
	Combo          bool            `json:"combo"`
	Items          []LineItem      `json:"items"`
}

type OrderCancelledPayload struct {
	OrderID          string `json:"order_id"`
	UserID           string `json:"user_id"`
	CarrierCancelled bool   `json:"carrier_cancelled"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	ByAdmin bool   `json:"by_admin"`
}

type VoucherAppliedPayload struct {
	OrderID  string          `json:"order_id"`
	UserID   string          `json:"user_id"`
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// Publisher emits events. Publishing is best effort: failures are logged by
// the implementation and never reach the caller.
type Publisher interface {
	Publish(ctx context.Context, eventType string, orderID uuid.UUID, payload any)
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, uuid.UUID, any) {}
func (NopPublisher) Close() error                                    { return nil }
