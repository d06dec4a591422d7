// Package shipping talks to the external delivery carrier.
package shipping

import (
	"context"
	"fmt"

	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gateway is the carrier contract the order workflow depends on.
// Implementations make no retries; every failure is returned as a *CarrierError.
type Gateway interface {
	QuoteFee(ctx context.Context, req FeeRequest) (*Quote, error)
	CreateShipment(ctx context.Context, req ShipmentRequest) (*Shipment, error)
	CancelShipment(ctx context.Context, label string) error
}

// Item is one parcel line of a shipment.
type Item struct {
	Name        string
	WeightGrams int
	Quantity    int
}

// FeeRequest asks for a delivery quote to destination.
type FeeRequest struct {
	Destination   model.Address
	WeightGrams   int
	DeclaredValue decimal.Decimal
}

// Quote is the carrier's fee answer.
type Quote struct {
	Fee        decimal.Decimal
	Delivery   bool
	IncludeVAT bool
}

// ShipmentRequest describes a parcel to be picked up from the warehouse.
type ShipmentRequest struct {
	OrderID        uuid.UUID
	RecipientName  string
	RecipientPhone string
	Destination    model.Address
	Note           string
	DeclaredValue  decimal.Decimal
	Items          []Item
}

// Shipment is what the carrier returns for a created parcel. Label is needed to cancel it.
type Shipment struct {
	Label                string
	TrackingID           string
	Fee                  decimal.Decimal
	EstimatedDeliverTime string
}

// CarrierError reports a failed carrier call with the carrier's own message when it sent one.
type CarrierError struct {
	Op         string
	Message    string
	StatusCode int
	Err        error
}

func (e *CarrierError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("carrier %s failed (status %d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("carrier %s failed: %s", e.Op, e.Message)
}

func (e *CarrierError) Unwrap() error {
	return e.Err
}
