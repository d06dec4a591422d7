package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"storefront/internal/cache"
	"storefront/internal/events"
	"storefront/internal/model"
	"storefront/internal/pricing"
	"storefront/internal/repository"
	"storefront/internal/shipping"
	"storefront/internal/voucher"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Dependencies are the collaborators of the order workflow. Cache and Events
// may be left nil, in which case no-op implementations are used.
type Dependencies struct {
	Tx        repository.Transactor
	Users     repository.UserRepository
	Inventory repository.InventoryRepository
	Combos    repository.ComboRepository
	Orders    repository.OrderRepository
	Vouchers  voucher.Ledger
	Carrier   shipping.Gateway
	Cache     cache.OrderCache
	Events    events.Publisher
}

// orderWorkflow implements OrderWorkflow.
type orderWorkflow struct {
	tx        repository.Transactor
	users     repository.UserRepository
	inventory repository.InventoryRepository
	combos    repository.ComboRepository
	orders    repository.OrderRepository
	vouchers  voucher.Ledger
	carrier   shipping.Gateway
	cache     cache.OrderCache
	events    events.Publisher
	tracer    trace.Tracer
	now       func() time.Time
	logger    zerolog.Logger
}

// NewOrderWorkflow creates the order workflow.
func NewOrderWorkflow(deps Dependencies, logger zerolog.Logger) OrderWorkflow {
	w := &orderWorkflow{
		tx:        deps.Tx,
		users:     deps.Users,
		inventory: deps.Inventory,
		combos:    deps.Combos,
		orders:    deps.Orders,
		vouchers:  deps.Vouchers,
		carrier:   deps.Carrier,
		cache:     deps.Cache,
		events:    deps.Events,
		tracer:    otel.Tracer("storefront/service"),
		now:       time.Now,
		logger:    logger.With().Str("service", "order").Logger(),
	}
	if w.cache == nil {
		w.cache = cache.NopOrderCache{}
	}
	if w.events == nil {
		w.events = events.NopPublisher{}
	}
	return w
}

// reserveFunc reserves stock for a new order and returns its lines together
// with the parcel items sent to the carrier.
type reserveFunc func(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) ([]model.OrderLine, []shipping.Item, error)

// placement is what Create and CreateCombo have in common.
type placement struct {
	userID        uuid.UUID
	deliveryID    uuid.UUID
	paymentMethod string
	name          string
	phone         string
	note          string
	address       model.Address
	voucherCodes  []string
	combo         bool
	reserve       reserveFunc
}

// Create turns cart lines into an order.
func (s *orderWorkflow) Create(ctx context.Context, userID uuid.UUID, req *model.OrderRequest) (res *model.OrderResult, err error) {
	ctx, span := s.tracer.Start(ctx, "OrderWorkflow.Create", trace.WithAttributes(attribute.String("user_id", userID.String())))
	defer func() { endSpan(span, err) }()

	if err := s.validateOrderRequest(req); err != nil {
		return nil, err
	}

	return s.place(ctx, placement{
		userID:        userID,
		deliveryID:    req.DeliveryID,
		paymentMethod: req.PaymentMethod,
		name:          req.Name,
		phone:         req.Phone,
		note:          req.Note,
		address:       req.Address,
		voucherCodes:  req.VoucherCodes,
		reserve:       s.reserveFromCart(userID, mergeItems(req.Items)),
	})
}

// CreateCombo buys a bundle directly, without going through the cart.
func (s *orderWorkflow) CreateCombo(ctx context.Context, userID uuid.UUID, req *model.ComboOrderRequest) (res *model.OrderResult, err error) {
	ctx, span := s.tracer.Start(ctx, "OrderWorkflow.CreateCombo", trace.WithAttributes(attribute.String("user_id", userID.String())))
	defer func() { endSpan(span, err) }()

	if err := validateComboRequest(req); err != nil {
		return nil, err
	}

	return s.place(ctx, placement{
		userID:        userID,
		deliveryID:    req.DeliveryID,
		paymentMethod: req.PaymentMethod,
		name:          req.Name,
		phone:         req.Phone,
		note:          req.Note,
		address:       req.Address,
		voucherCodes:  req.VoucherCodes,
		combo:         true,
		reserve:       s.reserveCombo(req.ProductOptionID, req.ComboItemIDs),
	})
}

// place runs the creation transaction: order row, stock reservation, carrier
// shipment, totals, shipping and payment rows. The carrier is called before
// commit; if anything fails after it accepted the parcel the shipment is
// cancelled again on a best-effort basis.
func (s *orderWorkflow) place(ctx context.Context, p placement) (*model.OrderResult, error) {
	if err := s.checkBuyer(ctx, p.userID, p.deliveryID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &model.Order{
		ID:          uuid.New(),
		UserID:      p.userID,
		Name:        p.name,
		Phone:       p.phone,
		Note:        p.note,
		Status:      model.OrderStatusPending,
		TotalAmount: decimal.Zero,
		OrderDate:   now,
		UpdatedAt:   now,
	}
	log := s.logger.With().Str("order_id", order.ID.String()).Str("user_id", p.userID.String()).Logger()

	var (
		lines    []model.OrderLine
		subtotal decimal.Decimal
		total    decimal.Decimal
		shipment *shipping.Shipment
		payment  *model.Payment
	)

	err := s.tx.WithinTx(ctx, func(tx pgx.Tx) error {
		if err := s.orders.CreateOrder(ctx, tx, order); err != nil {
			return err
		}

		var (
			items []shipping.Item
			err   error
		)
		lines, items, err = p.reserve(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if err := s.orders.CreateOrderLines(ctx, tx, lines); err != nil {
			return err
		}
		subtotal = pricing.SumSubtotals(lines)

		shipment, err = s.carrier.CreateShipment(ctx, shipping.ShipmentRequest{
			OrderID:        order.ID,
			RecipientName:  p.name,
			RecipientPhone: p.phone,
			Destination:    p.address,
			Note:           p.note,
			DeclaredValue:  subtotal,
			Items:          items,
		})
		if err != nil {
			return carrierRejected(err)
		}

		total = subtotal.Add(shipment.Fee).Round(2)

		if err := s.orders.CreateShipping(ctx, tx, &model.Shipping{
			ID:             uuid.New(),
			OrderID:        order.ID,
			DeliveryID:     p.deliveryID,
			Address:        p.address,
			TrackingNumber: shipment.TrackingID,
			Label:          shipment.Label,
			Fee:            shipment.Fee,
			EstimateDate:   shipment.EstimatedDeliverTime,
		}); err != nil {
			return err
		}

		payment = &model.Payment{
			ID:         uuid.New(),
			OrderID:    order.ID,
			Method:     p.paymentMethod,
			TotalPrice: total,
		}
		if err := s.orders.CreatePayment(ctx, tx, payment); err != nil {
			return err
		}

		return s.orders.UpdateTotals(ctx, tx, order.ID, total)
	})
	if err != nil {
		if shipment != nil {
			s.compensateShipment(ctx, order.ID, shipment.Label)
		}
		log.Warn().Err(err).Msg("order placement failed")
		return nil, err
	}

	log.Info().
		Int("line_count", len(lines)).
		Str("subtotal", subtotal.String()).
		Str("shipping_fee", shipment.Fee.String()).
		Str("label", shipment.Label).
		Bool("combo", p.combo).
		Msg("order created successfully")

	s.events.Publish(ctx, events.EventOrderCreated, order.ID, events.OrderCreatedPayload{
		OrderID:        order.ID.String(),
		UserID:         p.userID.String(),
		TrackingNumber: shipment.TrackingID,
		ShippingFee:    shipment.Fee,
		Total:          total,
		Combo:          p.combo,
		Items:          lineItems(lines),
	})

	result := &model.OrderResult{
		OrderID:        order.ID,
		PaymentID:      payment.ID,
		TrackingNumber: shipment.TrackingID,
		Subtotal:       subtotal,
		ShippingFee:    shipment.Fee,
		Total:          total,
		Lines:          lines,
	}

	// Vouchers are applied one transaction each after the order exists. The
	// first rejection stops the phase; the order keeps what was applied so far.
	for _, code := range p.voucherCodes {
		app, err := s.applyVoucher(ctx, p.userID, order.ID, code, result.Total)
		if err != nil {
			log.Warn().Err(err).Str("voucher_code", code).Msg("voucher application failed")
			result.VoucherError = voucherMessage(err)
			break
		}
		result.AppliedVouchers = append(result.AppliedVouchers, app.Code)
		result.Total = app.Total
	}

	return result, nil
}

// reserveFromCart consumes the user's cart lines for items, which must be
// sorted by product option id so concurrent orders lock rows in one order.
func (s *orderWorkflow) reserveFromCart(userID uuid.UUID, items []model.OrderItemRequest) reserveFunc {
	return func(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) ([]model.OrderLine, []shipping.Item, error) {
		lines := make([]model.OrderLine, 0, len(items))
		parcel := make([]shipping.Item, 0, len(items))

		for _, item := range items {
			cart, err := s.inventory.FindCartLine(ctx, tx, userID, item.ProductOptionID)
			if err != nil {
				return nil, nil, err
			}
			if cart == nil {
				return nil, nil, model.ErrCartLineNotFound
			}
			if cart.Quantity < item.Quantity {
				return nil, nil, model.ErrInsufficientCart
			}

			opt, err := s.reserveOption(ctx, tx, item.ProductOptionID, item.Quantity)
			if err != nil {
				return nil, nil, err
			}
			if err := s.inventory.ConsumeCartLine(ctx, tx, cart.ID, item.Quantity); err != nil {
				return nil, nil, err
			}

			price := pricing.EffectivePrice(opt.BasePrice, opt.PriceModifier, opt.Discount)
			lines = append(lines, newLine(orderID, opt.ID, price, item.Quantity))
			parcel = append(parcel, shipping.Item{Name: opt.ProductName, WeightGrams: opt.WeightGrams, Quantity: item.Quantity})
		}
		return lines, parcel, nil
	}
}

// comboEntry is one unit bought through a combo with the discount that applies to it.
type comboEntry struct {
	optionID uuid.UUID
	discount *decimal.Decimal // nil means the option's own discount
}

// reserveCombo reserves one unit of the main option at its own discount and
// one unit of each combo item at the bundle discount.
func (s *orderWorkflow) reserveCombo(mainOptionID uuid.UUID, comboItemIDs []uuid.UUID) reserveFunc {
	return func(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) ([]model.OrderLine, []shipping.Item, error) {
		ids := uniqueIDs(comboItemIDs)
		members, err := s.combos.GetComboItems(ctx, tx, ids)
		if err != nil {
			return nil, nil, err
		}
		if len(members) != len(ids) {
			return nil, nil, model.ErrComboNotFound
		}

		comboID := members[0].ComboID
		entries := []comboEntry{{optionID: mainOptionID}}
		for _, m := range members {
			if m.ComboID != comboID {
				return nil, nil, model.ErrMixedCombo
			}
			entries = append(entries, comboEntry{optionID: m.ProductOptionID, discount: &m.Discount})
		}
		slices.SortStableFunc(entries, func(a, b comboEntry) int {
			return strings.Compare(a.optionID.String(), b.optionID.String())
		})

		lines := make([]model.OrderLine, 0, len(entries))
		parcel := make([]shipping.Item, 0, len(entries))
		for _, e := range entries {
			opt, err := s.reserveOption(ctx, tx, e.optionID, 1)
			if err != nil {
				return nil, nil, err
			}
			discount := opt.Discount
			if e.discount != nil {
				discount = *e.discount
			}
			price := pricing.EffectivePrice(opt.BasePrice, opt.PriceModifier, discount)
			lines = append(lines, newLine(orderID, opt.ID, price, 1))
			parcel = append(parcel, shipping.Item{Name: opt.ProductName, WeightGrams: opt.WeightGrams, Quantity: 1})
		}

		if err := s.combos.CreateOrderCombo(ctx, tx, orderID, comboID); err != nil {
			return nil, nil, err
		}
		return lines, parcel, nil
	}
}

// reserveOption reads the option and decrements its stock with a guarded update.
func (s *orderWorkflow) reserveOption(ctx context.Context, tx pgx.Tx, optionID uuid.UUID, quantity int) (*model.ProductOption, error) {
	opt, err := s.inventory.GetOption(ctx, tx, optionID)
	if err != nil {
		return nil, err
	}
	// A vanished option reads the same as an empty one.
	if opt == nil || opt.Stock < quantity {
		return nil, model.ErrInsufficientStock
	}
	if err := s.inventory.ReserveStock(ctx, tx, optionID, quantity); err != nil {
		if errors.Is(err, model.ErrInsufficientStock) {
			s.logger.Info().
				Str("product_option_id", optionID.String()).
				Int("quantity", quantity).
				Msg("stock taken by a concurrent order")
		}
		return nil, err
	}
	return opt, nil
}

// compensateShipment cancels a shipment whose order was never committed.
func (s *orderWorkflow) compensateShipment(ctx context.Context, orderID uuid.UUID, label string) {
	log := s.logger.With().Str("order_id", orderID.String()).Str("label", label).Logger()
	if err := s.carrier.CancelShipment(context.WithoutCancel(ctx), label); err != nil {
		log.Error().Err(err).Msg("orphaned shipment: compensating cancel failed")
		return
	}
	log.Warn().Msg("shipment cancelled after failed order placement")
}

// ApplyVoucher applies one voucher to a pending order owned by userID.
func (s *orderWorkflow) ApplyVoucher(ctx context.Context, userID, orderID uuid.UUID, code string) (app *model.VoucherApplication, err error) {
	ctx, span := s.tracer.Start(ctx, "OrderWorkflow.ApplyVoucher", trace.WithAttributes(
		attribute.String("order_id", orderID.String()),
		attribute.String("voucher_code", code),
	))
	defer func() { endSpan(span, err) }()

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, model.Unprocessable(model.ErrCodeMissingField, "Voucher code is required")
	}

	err = s.tx.WithinTx(ctx, func(tx pgx.Tx) error {
		order, err := s.orders.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil || order.UserID != userID {
			return model.ErrOrderNotFound
		}
		if order.Status != model.OrderStatusPending {
			return model.ErrOrderNotPending
		}
		app, err = s.redeem(ctx, tx, userID, orderID, code, order.TotalAmount)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterVoucher(ctx, userID, app)
	return app, nil
}

// applyVoucher applies code to a freshly created order in its own transaction.
func (s *orderWorkflow) applyVoucher(ctx context.Context, userID, orderID uuid.UUID, code string, total decimal.Decimal) (*model.VoucherApplication, error) {
	var app *model.VoucherApplication
	err := s.tx.WithinTx(ctx, func(tx pgx.Tx) error {
		var err error
		app, err = s.redeem(ctx, tx, userID, orderID, code, total)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterVoucher(ctx, userID, app)
	return app, nil
}

// redeem validates and redeems code against total, then writes the new total
// to the order and its payment.
func (s *orderWorkflow) redeem(ctx context.Context, tx pgx.Tx, userID, orderID uuid.UUID, code string, total decimal.Decimal) (*model.VoucherApplication, error) {
	v, err := s.vouchers.Validate(ctx, tx, userID, orderID, code, total)
	if err != nil {
		return nil, err
	}
	if err := s.vouchers.Redeem(ctx, tx, userID, orderID, v); err != nil {
		return nil, err
	}

	discount := pricing.VoucherDiscount(total, *v)
	newTotal := total.Sub(discount).Round(2)
	if err := s.orders.UpdateTotals(ctx, tx, orderID, newTotal); err != nil {
		return nil, err
	}

	return &model.VoucherApplication{OrderID: orderID, Code: v.Code, Discount: discount, Total: newTotal}, nil
}

func (s *orderWorkflow) afterVoucher(ctx context.Context, userID uuid.UUID, app *model.VoucherApplication) {
	s.invalidate(ctx, app.OrderID)
	s.logger.Info().
		Str("order_id", app.OrderID.String()).
		Str("voucher_code", app.Code).
		Str("discount", app.Discount.String()).
		Str("total", app.Total.String()).
		Msg("voucher applied")
	s.events.Publish(ctx, events.EventVoucherApplied, app.OrderID, events.VoucherAppliedPayload{
		OrderID:  app.OrderID.String(),
		UserID:   userID.String(),
		Code:     app.Code,
		Discount: app.Discount,
		Total:    app.Total,
	})
}

// Cancel moves a pending order to CANCEL. The status change is kept even when
// the carrier refuses to cancel the shipment; stock is not restored.
func (s *orderWorkflow) Cancel(ctx context.Context, userID, orderID uuid.UUID) (res *model.StatusUpdateResult, err error) {
	ctx, span := s.tracer.Start(ctx, "OrderWorkflow.Cancel", trace.WithAttributes(attribute.String("order_id", orderID.String())))
	defer func() { endSpan(span, err) }()

	if err := s.checkUser(ctx, userID); err != nil {
		return nil, err
	}

	var order *model.Order
	err = s.tx.WithinTx(ctx, func(tx pgx.Tx) error {
		var err error
		order, err = s.orders.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil || order.UserID != userID {
			return model.ErrOrderNotFound
		}
		if order.Status != model.OrderStatusPending {
			return model.ErrOrderNotCancelable
		}
		ok, err := s.orders.UpdateStatus(ctx, tx, orderID, model.OrderStatusPending, model.OrderStatusCancel)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrStatusNotUpdated
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, orderID)

	log := s.logger.With().Str("order_id", orderID.String()).Str("user_id", userID.String()).Logger()

	var label string
	if order.Shipping != nil {
		label = order.Shipping.Label
	}
	cancelErr := s.carrier.CancelShipment(ctx, label)

	s.events.Publish(ctx, events.EventOrderCancelled, orderID, events.OrderCancelledPayload{
		OrderID:          orderID.String(),
		UserID:           userID.String(),
		CarrierCancelled: cancelErr == nil,
	})

	if cancelErr != nil {
		log.Error().Err(cancelErr).Str("label", label).Msg("order cancelled but carrier shipment was not")
		var de *model.DomainError
		if errors.As(cancelErr, &de) {
			return nil, cancelErr
		}
		return nil, model.Wrap(model.KindInternal, model.ErrCodeCarrierFailure, model.ErrCarrierCancelFailed.Message, cancelErr)
	}

	log.Info().Msg("order cancelled")
	return statusResult(order, model.OrderStatusCancel), nil
}

// FindByID returns one of the user's orders, from cache when possible.
func (s *orderWorkflow) FindByID(ctx context.Context, userID, orderID uuid.UUID) (*model.Order, error) {
	if err := s.checkUser(ctx, userID); err != nil {
		return nil, err
	}

	cached, gen, cacheErr := s.cache.Get(ctx, orderID)
	if cacheErr != nil {
		s.logger.Warn().Err(cacheErr).Str("order_id", orderID.String()).Msg("order cache read failed")
	} else if cached != nil {
		if cached.UserID != userID {
			return nil, model.ErrOrderNotFound
		}
		return cached, nil
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.UserID != userID {
		return nil, model.ErrOrderNotFound
	}

	// Without a generation the write could overwrite a newer invalidation.
	if cacheErr != nil {
		return order, nil
	}
	if err := s.cache.Set(ctx, order, gen); err != nil {
		s.logger.Warn().Err(err).Str("order_id", orderID.String()).Msg("order cache write failed")
	}
	return order, nil
}

func (s *orderWorkflow) FindByStatus(ctx context.Context, userID uuid.UUID, status model.OrderStatus) ([]model.Order, error) {
	if status != "" && !status.Valid() {
		return nil, model.ErrInvalidStatus
	}
	if err := s.checkUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.orders.ListByUser(ctx, userID, status)
}

func (s *orderWorkflow) ListAll(ctx context.Context) ([]model.Order, error) {
	return s.orders.ListAll(ctx)
}

// UpdateStatus changes the status of one of the user's orders. Terminal orders
// cannot move; a request for CANCEL takes the cancel path.
func (s *orderWorkflow) UpdateStatus(ctx context.Context, userID, orderID uuid.UUID, status model.OrderStatus) (res *model.StatusUpdateResult, err error) {
	ctx, span := s.tracer.Start(ctx, "OrderWorkflow.UpdateStatus", trace.WithAttributes(
		attribute.String("order_id", orderID.String()),
		attribute.String("status", string(status)),
	))
	defer func() { endSpan(span, err) }()

	if !status.Valid() {
		return nil, model.ErrInvalidStatus
	}
	if err := s.checkUser(ctx, userID); err != nil {
		return nil, err
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.UserID != userID {
		return nil, model.ErrOrderNotFound
	}
	if err := terminalError(order.Status); err != nil {
		return nil, err
	}

	if status == model.OrderStatusCancel {
		return s.Cancel(ctx, userID, orderID)
	}

	if err := s.writeStatus(ctx, order, status, false); err != nil {
		return nil, err
	}
	return statusResult(order, status), nil
}

// UpdateStatusByAdmin changes the status of any non-terminal order. Moving an
// order to RECEIVED also cancels its carrier shipment.
func (s *orderWorkflow) UpdateStatusByAdmin(ctx context.Context, orderID uuid.UUID, status model.OrderStatus) (res *model.StatusUpdateResult, err error) {
	ctx, span := s.tracer.Start(ctx, "OrderWorkflow.UpdateStatusByAdmin", trace.WithAttributes(
		attribute.String("order_id", orderID.String()),
		attribute.String("status", string(status)),
	))
	defer func() { endSpan(span, err) }()

	if !status.Valid() {
		return nil, model.ErrInvalidStatus
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	if err := terminalError(order.Status); err != nil {
		return nil, err
	}

	if err := s.writeStatus(ctx, order, status, true); err != nil {
		return nil, err
	}

	// TODO(orders): confirm with product whether receipt should close rather than cancel the carrier shipment.
	if status == model.OrderStatusReceived && order.Shipping != nil {
		if err := s.carrier.CancelShipment(ctx, order.Shipping.Label); err != nil {
			s.logger.Warn().
				Err(err).
				Str("order_id", orderID.String()).
				Str("label", order.Shipping.Label).
				Msg("carrier cancel on receipt failed")
		}
	}

	return statusResult(order, status), nil
}

// writeStatus moves order from its current status to status with a guarded update.
func (s *orderWorkflow) writeStatus(ctx context.Context, order *model.Order, status model.OrderStatus, byAdmin bool) error {
	err := s.tx.WithinTx(ctx, func(tx pgx.Tx) error {
		ok, err := s.orders.UpdateStatus(ctx, tx, order.ID, order.Status, status)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrStatusNotUpdated
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, order.ID)

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("from", string(order.Status)).
		Str("status", string(status)).
		Bool("by_admin", byAdmin).
		Msg("order status updated")

	s.events.Publish(ctx, events.EventOrderStatusChanged, order.ID, events.OrderStatusChangedPayload{
		OrderID: order.ID.String(),
		UserID:  order.UserID.String(),
		From:    string(order.Status),
		To:      string(status),
		ByAdmin: byAdmin,
	})
	return nil
}

func (s *orderWorkflow) CalculateShippingFee(ctx context.Context, req *model.ShippingFeeRequest) (*model.ShippingFeeResponse, error) {
	if req == nil || req.Province == "" || req.District == "" {
		return nil, model.Unprocessable(model.ErrCodeMissingField, "Province and district are required")
	}

	quote, err := s.carrier.QuoteFee(ctx, shipping.FeeRequest{
		Destination:   model.Address{Province: req.Province, District: req.District, Ward: req.Ward},
		WeightGrams:   req.WeightGrams,
		DeclaredValue: req.Value,
	})
	if err != nil {
		return nil, carrierRejected(err)
	}

	return &model.ShippingFeeResponse{Fee: quote.Fee, Delivery: quote.Delivery, IncludeVAT: quote.IncludeVAT}, nil
}

func (s *orderWorkflow) UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, transactionID string) (*model.Payment, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, model.Unprocessable(model.ErrCodeMissingField, "Transaction id is required")
	}

	payment, err := s.orders.UpdatePaymentTransaction(ctx, paymentID, transactionID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, model.ErrPaymentNotFound
	}
	s.invalidate(ctx, payment.OrderID)

	s.logger.Info().
		Str("order_id", payment.OrderID.String()).
		Str("payment_id", paymentID.String()).
		Msg("payment transaction recorded")
	return payment, nil
}

func (s *orderWorkflow) checkUser(ctx context.Context, userID uuid.UUID) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return model.ErrUserNotFound
	}
	return nil
}

func (s *orderWorkflow) checkBuyer(ctx context.Context, userID, deliveryID uuid.UUID) error {
	if err := s.checkUser(ctx, userID); err != nil {
		return err
	}
	delivery, err := s.users.GetDelivery(ctx, deliveryID)
	if err != nil {
		return err
	}
	if delivery == nil {
		return model.ErrDeliveryNotFound
	}
	return nil
}

func (s *orderWorkflow) invalidate(ctx context.Context, orderID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, orderID); err != nil {
		s.logger.Warn().Err(err).Str("order_id", orderID.String()).Msg("order cache invalidation failed")
	}
}

// validateOrderRequest validates the order request.
func (s *orderWorkflow) validateOrderRequest(req *model.OrderRequest) error {
	if req == nil {
		return model.Unprocessable(model.ErrCodeMissingField, "Order request is required")
	}
	if len(req.Items) == 0 {
		return model.Unprocessable(model.ErrCodeMissingField, "Order must contain at least one item")
	}

	for i, item := range req.Items {
		if item.ProductOptionID == uuid.Nil {
			return model.Unprocessable(model.ErrCodeMissingField, fmt.Sprintf("Item %d: product option id is required", i))
		}
		if item.Quantity <= 0 {
			s.logger.Warn().
				Int("item_index", i).
				Str("product_option_id", item.ProductOptionID.String()).
				Int("quantity", item.Quantity).
				Msg("invalid quantity")
			return model.ErrInvalidQuantity
		}
	}
	return nil
}

func validateComboRequest(req *model.ComboOrderRequest) error {
	if req == nil {
		return model.Unprocessable(model.ErrCodeMissingField, "Order request is required")
	}
	if req.ProductOptionID == uuid.Nil {
		return model.Unprocessable(model.ErrCodeMissingField, "Main product option id is required")
	}
	if len(req.ComboItemIDs) == 0 {
		return model.Unprocessable(model.ErrCodeMissingField, "At least one combo item is required")
	}
	return nil
}

// mergeItems folds repeated options into one item and sorts by option id.
func mergeItems(items []model.OrderItemRequest) []model.OrderItemRequest {
	qty := make(map[uuid.UUID]int, len(items))
	merged := make([]model.OrderItemRequest, 0, len(items))
	for _, it := range items {
		if _, seen := qty[it.ProductOptionID]; !seen {
			merged = append(merged, model.OrderItemRequest{ProductOptionID: it.ProductOptionID})
		}
		qty[it.ProductOptionID] += it.Quantity
	}
	for i := range merged {
		merged[i].Quantity = qty[merged[i].ProductOptionID]
	}
	slices.SortFunc(merged, func(a, b model.OrderItemRequest) int {
		return strings.Compare(a.ProductOptionID.String(), b.ProductOptionID.String())
	})
	return merged
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b uuid.UUID) int { return cmp.Compare(a.String(), b.String()) })
	return slices.Compact(out)
}

func newLine(orderID, optionID uuid.UUID, price decimal.Decimal, quantity int) model.OrderLine {
	return model.OrderLine{
		ID:              uuid.New(),
		OrderID:         orderID,
		ProductOptionID: optionID,
		Price:           price,
		Quantity:        quantity,
		Subtotal:        pricing.LineSubtotal(price, quantity),
	}
}

func lineItems(lines []model.OrderLine) []events.LineItem {
	items := make([]events.LineItem, len(lines))
	for i, l := range lines {
		items[i] = events.LineItem{ProductOptionID: l.ProductOptionID.String(), Quantity: l.Quantity, Price: l.Price}
	}
	return items
}

func statusResult(order *model.Order, status model.OrderStatus) *model.StatusUpdateResult {
	res := &model.StatusUpdateResult{OrderID: order.ID, UserID: order.UserID, Status: status}
	if order.Payment != nil {
		res.TransactionID = order.Payment.TransactionID
	}
	return res
}

func terminalError(status model.OrderStatus) error {
	switch status {
	case model.OrderStatusCancel:
		return model.ErrOrderCanceled
	case model.OrderStatusReceived:
		return model.ErrOrderCompleted
	}
	return nil
}

// carrierRejected turns a carrier failure into an unprocessable domain error
// carrying the carrier's message.
func carrierRejected(err error) error {
	var ce *shipping.CarrierError
	if errors.As(err, &ce) {
		msg := ce.Message
		if msg == "" {
			msg = "Carrier rejected the shipment"
		}
		return model.Wrap(model.KindUnprocessable, model.ErrCodeCarrierRejected, msg, err)
	}
	return err
}

func voucherMessage(err error) string {
	var de *model.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return "Voucher could not be applied"
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
