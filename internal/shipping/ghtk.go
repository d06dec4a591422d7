package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront/internal/config"
	"storefront/internal/model"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	opQuote  = "quote_fee"
	opCreate = "create_shipment"
	opCancel = "cancel_shipment"

	transportRoad   = "road"
	defaultHamlet   = "Khác"
	maxResponseSize = 1 << 20
)

// Carrier tags sent with every parcel: 1 fragile, 2 high value.
var parcelTags = []int{1, 2}

type ghtkProduct struct {
	Name     string  `json:"name"`
	Weight   float64 `json:"weight"`
	Quantity int     `json:"quantity"`
}

type ghtkOrder struct {
	ID           string `json:"id"`
	PickName     string `json:"pick_name"`
	PickAddress  string `json:"pick_address"`
	PickProvince string `json:"pick_province"`
	PickDistrict string `json:"pick_district"`
	PickWard     string `json:"pick_ward"`
	PickTel      string `json:"pick_tel"`
	Tel          string `json:"tel"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	Province     string `json:"province"`
	District     string `json:"district"`
	Ward         string `json:"ward"`
	Hamlet       string `json:"hamlet"`
	PickDate     string `json:"pick_date"`
	PickMoney    int64  `json:"pick_money"`
	Note         string `json:"note"`
	Value        int64  `json:"value"`
	Transport    string `json:"transport"`
	Tags         []int  `json:"tags"`
}

type createRequest struct {
	Products []ghtkProduct `json:"products"`
	Order    ghtkOrder     `json:"order"`
}

type feeRequest struct {
	PickProvince string  `json:"pick_province"`
	PickDistrict string  `json:"pick_district"`
	PickWard     string  `json:"pick_ward"`
	Province     string  `json:"province"`
	District     string  `json:"district"`
	Ward         string  `json:"ward"`
	Weight       float64 `json:"weight"`
	Value        int64   `json:"value"`
	Transport    string  `json:"transport"`
	Tags         []int   `json:"tags"`
}

// envelope is the part every carrier response shares.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (e *envelope) result() *envelope { return e }

type createResponse struct {
	envelope
	Order struct {
		Label                string          `json:"label"`
		TrackingID           json.Number     `json:"tracking_id"`
		Fee                  decimal.Decimal `json:"fee"`
		EstimatedDeliverTime string          `json:"estimated_deliver_time"`
	} `json:"order"`
}

type feeResponse struct {
	envelope
	Fee struct {
		Fee        decimal.Decimal `json:"fee"`
		Delivery   bool            `json:"delivery"`
		IncludeVAT int             `json:"include_vat"`
	} `json:"fee"`
}

type cancelResponse struct {
	envelope
}

type carrierResponse interface {
	result() *envelope
}

// GHTKGateway is the Giao Hang Tiet Kiem implementation of Gateway.
type GHTKGateway struct {
	baseURL string
	token   string
	origin  config.CarrierConfig
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
	tracer  trace.Tracer
	logger  zerolog.Logger
	now     func() time.Time
}

// NewGHTKGateway creates a gateway from the carrier configuration.
// The pick-up address of every parcel is the configured warehouse.
func NewGHTKGateway(cfg config.CarrierConfig, logger zerolog.Logger) *GHTKGateway {
	return &GHTKGateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		origin:  cfg,
		timeout: cfg.Timeout,
		client:  &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		tracer:  otel.Tracer("storefront/shipping"),
		logger:  logger.With().Str("component", "ghtk").Logger(),
		now:     time.Now,
	}
}

// QuoteFee asks the carrier what delivering req would cost.
func (g *GHTKGateway) QuoteFee(ctx context.Context, req FeeRequest) (*Quote, error) {
	body := feeRequest{
		PickProvince: g.origin.PickProvince,
		PickDistrict: g.origin.PickDistrict,
		PickWard:     g.origin.PickWard,
		Province:     req.Destination.Province,
		District:     req.Destination.District,
		Ward:         req.Destination.Ward,
		Weight:       kilograms(req.WeightGrams),
		Value:        req.DeclaredValue.Round(0).IntPart(),
		Transport:    transportRoad,
		Tags:         parcelTags,
	}

	var resp feeResponse
	if err := g.do(ctx, opQuote, "/shipment/fee", body, &resp); err != nil {
		return nil, err
	}

	return &Quote{
		Fee:        resp.Fee.Fee,
		Delivery:   resp.Fee.Delivery,
		IncludeVAT: resp.Fee.IncludeVAT == 1,
	}, nil
}

// CreateShipment registers a parcel for pick-up. The declared value doubles as
// the cash the courier collects on delivery.
func (g *GHTKGateway) CreateShipment(ctx context.Context, req ShipmentRequest) (*Shipment, error) {
	products := make([]ghtkProduct, 0, len(req.Items))
	for _, it := range req.Items {
		w := it.WeightGrams
		if w <= 0 {
			w = model.DefaultWeightGrams
		}
		products = append(products, ghtkProduct{Name: it.Name, Weight: kilograms(w), Quantity: it.Quantity})
	}

	hamlet := req.Destination.Hamlet
	if hamlet == "" {
		hamlet = defaultHamlet
	}
	value := req.DeclaredValue.Round(0).IntPart()

	body := createRequest{
		Products: products,
		Order: ghtkOrder{
			ID:           req.OrderID.String(),
			PickName:     g.origin.PickName,
			PickAddress:  g.origin.PickAddress,
			PickProvince: g.origin.PickProvince,
			PickDistrict: g.origin.PickDistrict,
			PickWard:     g.origin.PickWard,
			PickTel:      g.origin.PickTel,
			Tel:          req.RecipientPhone,
			Name:         req.RecipientName,
			Address:      req.Destination.Address,
			Province:     req.Destination.Province,
			District:     req.Destination.District,
			Ward:         req.Destination.Ward,
			Hamlet:       hamlet,
			PickDate:     g.now().Format("2006-01-02"),
			PickMoney:    value,
			Note:         req.Note,
			Value:        value,
			Transport:    transportRoad,
			Tags:         parcelTags,
		},
	}

	var resp createResponse
	if err := g.do(ctx, opCreate, "/shipment/order", body, &resp); err != nil {
		return nil, err
	}
	if resp.Order.Label == "" {
		return nil, &CarrierError{Op: opCreate, Message: "carrier returned no shipment label"}
	}

	g.logger.Info().
		Str("order_id", req.OrderID.String()).
		Str("label", resp.Order.Label).
		Str("fee", resp.Order.Fee.String()).
		Msg("shipment created")

	return &Shipment{
		Label:                resp.Order.Label,
		TrackingID:           resp.Order.TrackingID.String(),
		Fee:                  resp.Order.Fee,
		EstimatedDeliverTime: resp.Order.EstimatedDeliverTime,
	}, nil
}

// CancelShipment cancels the parcel identified by label.
func (g *GHTKGateway) CancelShipment(ctx context.Context, label string) error {
	if label == "" {
		return model.ErrMissingShippingLabel
	}

	var resp cancelResponse
	if err := g.do(ctx, opCancel, "/shipment/cancel/"+url.PathEscape(label), nil, &resp); err != nil {
		return err
	}

	g.logger.Info().Str("label", label).Msg("shipment cancelled")
	return nil
}

// do POSTs body to path and decodes the JSON answer into out. The call waits
// for the rate limiter and is bounded by the configured timeout.
func (g *GHTKGateway) do(ctx context.Context, op, path string, body any, out carrierResponse) (err error) {
	ctx, span := g.tracer.Start(ctx, "ghtk."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return &CarrierError{Op: op, Message: "carrier rate limit wait aborted", Err: err}
	}

	var payload io.Reader = http.NoBody
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &CarrierError{Op: op, Message: "failed to encode carrier request", Err: err}
		}
		payload = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, payload)
	if err != nil {
		return &CarrierError{Op: op, Message: "failed to build carrier request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Token", g.token)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		msg := "carrier is unreachable"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "carrier request timed out"
		}
		g.logger.Error().Err(err).Str("op", op).Dur("elapsed", time.Since(start)).Msg("carrier request failed")
		return &CarrierError{Op: op, Message: msg, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &CarrierError{Op: op, Message: "failed to read carrier response", StatusCode: resp.StatusCode, Err: err}
	}

	decodeErr := json.Unmarshal(raw, out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && out.result().Message != "" {
			msg = out.result().Message
		}
		g.logger.Warn().Str("op", op).Int("status_code", resp.StatusCode).Str("message", msg).Msg("carrier returned an error status")
		return &CarrierError{Op: op, Message: msg, StatusCode: resp.StatusCode}
	}

	if decodeErr != nil {
		return &CarrierError{Op: op, Message: "failed to decode carrier response", StatusCode: resp.StatusCode, Err: decodeErr}
	}

	if !out.result().Success {
		msg := out.result().Message
		if msg == "" {
			msg = fmt.Sprintf("carrier rejected %s", op)
		}
		g.logger.Warn().Str("op", op).Str("message", msg).Msg("carrier rejected request")
		return &CarrierError{Op: op, Message: msg, StatusCode: resp.StatusCode}
	}

	g.logger.Debug().Str("op", op).Dur("elapsed", time.Since(start)).Msg("carrier request succeeded")
	return nil
}

func kilograms(grams int) float64 {
	return float64(grams) / 1000
}
