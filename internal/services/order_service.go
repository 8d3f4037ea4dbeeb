package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/foodiehq/api/internal/domain"
	"github.com/foodiehq/api/internal/payments"
	"github.com/foodiehq/api/internal/platform/pagination"
	"github.com/foodiehq/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix       = "ord_"
	receiptRefPrefix    = "receipt_"
	directPaymentPrefix = "direct_"

	outForDeliveryETA = 30 * time.Minute
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the actor may not access the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrEmptyCart indicates the user tried to place an order with no items.
	ErrEmptyCart = errors.New("order: cart is empty")
	// ErrAmountBelowMinimum indicates the charge is below the gateway minimum.
	ErrAmountBelowMinimum = errors.New("order: amount below minimum charge")
	// ErrSignatureMismatch indicates the payment callback signature did not verify.
	ErrSignatureMismatch = errors.New("order: payment signature mismatch")
	// ErrInvalidStatus indicates an unknown fulfillment status was requested.
	ErrInvalidStatus = errors.New("order: invalid status")
	// ErrPaymentRejected indicates the payment gateway refused the charge.
	ErrPaymentRejected = errors.New("order: payment rejected")
	// ErrPaymentAuthFailed indicates the gateway rejected the configured credentials.
	ErrPaymentAuthFailed = errors.New("order: gateway authentication failed")
	// ErrPaymentUnavailable indicates the payment gateway cannot be reached.
	ErrPaymentUnavailable = errors.New("order: payment gateway unavailable")
	// ErrOrderUnavailable indicates the order backend cannot fulfil the request.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

// PaymentRejectedError carries the gateway's rejection code and description
// so the edge can surface them to the client.
type PaymentRejectedError struct {
	Code        string
	Description string
}

// Error implements the error interface.
func (e *PaymentRejectedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("order: payment rejected (%s): %s", e.Code, e.Description)
	}
	return fmt.Sprintf("order: payment rejected (%s)", e.Code)
}

// Unwrap keeps errors.Is(err, ErrPaymentRejected) working for callers.
func (e *PaymentRejectedError) Unwrap() error { return ErrPaymentRejected }

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	UserID         string
	PreviousStatus string
	CurrentStatus  string
	PaymentStatus  string
	OccurredAt     time.Time
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders         repositories.OrderRepository
	Carts          repositories.CartRepository
	Gateway        payments.Gateway
	CallbackSecret string
	Currency       string
	DeliveryFee    int64
	MinimumCharge  int64
	Clock          func() time.Time
	IDGenerator    func() string
	Events         OrderEventPublisher
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders         repositories.OrderRepository
	carts          repositories.CartRepository
	gateway        payments.Gateway
	callbackSecret string
	currency       string
	deliveryFee    int64
	minimumCharge  int64
	clock          func() time.Time
	newID          func() string
	events         OrderEventPublisher
	logger         func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.DeliveryFee < 0 {
		return nil, errors.New("order service: delivery fee must not be negative")
	}
	if deps.MinimumCharge <= 0 {
		return nil, errors.New("order service: minimum charge must be positive")
	}

	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "inr"
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:         deps.Orders,
		carts:          deps.Carts,
		gateway:        deps.Gateway,
		callbackSecret: strings.TrimSpace(deps.CallbackSecret),
		currency:       currency,
		deliveryFee:    deps.DeliveryFee,
		minimumCharge:  deps.MinimumCharge,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// Checkout opens a payment intent for the user's cart and records a pending
// order referencing it. The cart stays intact until the payment verifies.
func (s *orderService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	if s.gateway == nil {
		return CheckoutResult{}, ErrPaymentUnavailable
	}

	order, err := s.buildOrderFromCart(ctx, cmd.UserID, cmd.DeliveryAddress, cmd.Phone)
	if err != nil {
		return CheckoutResult{}, err
	}

	charge := order.TotalAmount + s.deliveryFee
	if charge < s.minimumCharge {
		return CheckoutResult{}, ErrAmountBelowMinimum
	}

	now := s.clock()
	intent, err := s.gateway.CreateIntent(ctx, payments.IntentRequest{
		Amount:     charge,
		Currency:   s.currency,
		ReceiptRef: receiptRefPrefix + strconv.FormatInt(now.UnixMilli(), 10),
		Metadata: map[string]string{
			"userId":  order.UserID,
			"orderId": order.ID,
		},
	})
	if err != nil {
		s.logger(ctx, "order.intent_failed", map[string]any{"userID": order.UserID, "error": err.Error()})
		return CheckoutResult{}, s.translateGatewayError(err)
	}

	order.GatewayOrderID = intent.ID
	order.RecordStatusHistory(now)

	if err := s.orders.Insert(ctx, order); err != nil {
		return CheckoutResult{}, s.translateRepoError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		OccurredAt:    now,
	})
	s.logger(ctx, "order.checkout_started", map[string]any{"orderID": order.ID, "gatewayOrderID": intent.ID})

	return CheckoutResult{
		Order:          order,
		GatewayOrderID: intent.ID,
		Amount:         charge,
		Currency:       s.currency,
	}, nil
}

// PlaceDirect records a cash-on-delivery style order: the payment is settled
// out of band, so the order confirms immediately and the cart empties.
func (s *orderService) PlaceDirect(ctx context.Context, cmd DirectOrderCommand) (Order, error) {
	order, err := s.buildOrderFromCart(ctx, cmd.UserID, cmd.DeliveryAddress, cmd.Phone)
	if err != nil {
		return Order{}, err
	}

	now := s.clock()
	order.PaymentID = directPaymentPrefix + strconv.FormatInt(now.UnixMilli(), 10)
	order.PaymentStatus = domain.PaymentStatusCompleted
	order.ApplyStatus(domain.OrderStatusConfirmed, now)
	order.UpdatedAt = now

	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.clearCartAfterSettlement(ctx, order.UserID)
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		OccurredAt:    now,
	})
	s.logger(ctx, "order.placed_direct", map[string]any{"orderID": order.ID})
	return order, nil
}

// VerifyPayment checks the gateway callback signature and settles the order.
// A bad signature leaves the order and cart untouched: the gateway may still
// confirm the pending charge through a later, correctly signed callback.
func (s *orderService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error) {
	uid := strings.TrimSpace(cmd.UserID)
	gatewayOrderID := strings.TrimSpace(cmd.GatewayOrderID)
	paymentID := strings.TrimSpace(cmd.PaymentID)
	signature := strings.TrimSpace(cmd.Signature)
	if uid == "" || gatewayOrderID == "" || paymentID == "" || signature == "" {
		return Order{}, ErrOrderInvalidInput
	}
	if s.callbackSecret == "" {
		return Order{}, ErrPaymentUnavailable
	}

	order, err := s.orders.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if order.UserID != uid {
		return Order{}, ErrOrderForbidden
	}

	now := s.clock()
	if !payments.VerifyCallbackSignature(gatewayOrderID, paymentID, signature, s.callbackSecret) {
		s.logger(ctx, "order.signature_mismatch", map[string]any{"orderID": order.ID})
		return Order{}, ErrSignatureMismatch
	}

	previous := order.Status
	order.PaymentID = paymentID
	order.PaymentStatus = domain.PaymentStatusCompleted
	order.ApplyStatus(domain.OrderStatusConfirmed, now)
	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.clearCartAfterSettlement(ctx, order.UserID)
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		OccurredAt:     now,
	})
	s.logger(ctx, "order.payment_verified", map[string]any{"orderID": order.ID, "paymentID": paymentID})
	return order, nil
}

// ListMine pages through the caller's own orders.
func (s *orderService) ListMine(ctx context.Context, query ListMyOrdersQuery) (OrderPage, error) {
	uid := strings.TrimSpace(query.UserID)
	if uid == "" {
		return OrderPage{}, ErrOrderInvalidInput
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:    uid,
		PageSize:  query.PageSize,
		PageToken: query.PageToken,
	})
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return OrderPage{}, ErrOrderInvalidInput
		}
		return OrderPage{}, s.translateRepoError(err)
	}
	return page, nil
}

// ListAll pages through every order for staff dashboards.
func (s *orderService) ListAll(ctx context.Context, filter OrderListFilter) (OrderPage, error) {
	if filter.Status != nil && !domain.ValidOrderStatus(*filter.Status) {
		return OrderPage{}, ErrInvalidStatus
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return OrderPage{}, ErrOrderInvalidInput
		}
		return OrderPage{}, s.translateRepoError(err)
	}
	return page, nil
}

// GetOrder loads an order, restricting access to its owner and staff.
func (s *orderService) GetOrder(ctx context.Context, query GetOrderQuery) (Order, error) {
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if !query.ActorIsAdmin && order.UserID != strings.TrimSpace(query.ActorID) {
		return Order{}, ErrOrderForbidden
	}
	return order, nil
}

// UpdateStatus moves an order to the requested fulfillment status. Delivery
// estimates update alongside: dispatch stamps a thirty minute window and
// delivery closes it.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}
	if !domain.ValidOrderStatus(cmd.Status) {
		return Order{}, ErrInvalidStatus
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	now := s.clock()
	previous := order.Status
	if !order.ApplyStatus(cmd.Status, now) {
		return order, nil
	}

	switch order.Status {
	case domain.OrderStatusOutForDelivery:
		eta := now.Add(outForDeliveryETA)
		order.EstimatedDeliveryTime = &eta
	case domain.OrderStatusDelivered:
		eta := now
		order.EstimatedDeliveryTime = &eta
	}
	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		OccurredAt:     now,
	})
	s.logger(ctx, "order.status_updated", map[string]any{
		"orderID": order.ID,
		"from":    string(previous),
		"to":      string(order.Status),
		"actorID": cmd.ActorID,
	})
	return order, nil
}

// Stats aggregates order counters for the staff dashboard.
func (s *orderService) Stats(ctx context.Context) (OrderStats, error) {
	stats, err := s.orders.Stats(ctx)
	if err != nil {
		return OrderStats{}, s.translateRepoError(err)
	}
	return stats, nil
}

// buildOrderFromCart snapshots the user's cart into a new pending order. The
// order total covers the items only; the delivery fee is added at charge time.
func (s *orderService) buildOrderFromCart(ctx context.Context, userID, deliveryAddress, phone string) (Order, error) {
	uid := strings.TrimSpace(userID)
	deliveryAddress = strings.TrimSpace(deliveryAddress)
	phone = strings.TrimSpace(phone)
	if uid == "" || deliveryAddress == "" || phone == "" {
		return Order{}, ErrOrderInvalidInput
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, ErrEmptyCart
		}
		return Order{}, s.translateRepoError(err)
	}
	if len(cart.Items) == 0 {
		return Order{}, ErrEmptyCart
	}

	now := s.clock()
	order := Order{
		ID:              orderIDPrefix + s.newID(),
		UserID:          uid,
		Items:           make([]OrderItem, 0, len(cart.Items)),
		TotalAmount:     domain.CartSubtotal(cart.Items),
		Currency:        s.currency,
		DeliveryAddress: deliveryAddress,
		Phone:           phone,
		PaymentStatus:   domain.PaymentStatusPending,
		Status:          domain.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, line := range cart.Items {
		order.Items = append(order.Items, OrderItem{
			MenuItemID: line.MenuItemID,
			Name:       line.Name,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
		})
	}
	order.RecordStatusHistory(now)
	return order, nil
}

// clearCartAfterSettlement empties the cart once payment is settled. The
// order is already persisted, so a failure here only logs.
func (s *orderService) clearCartAfterSettlement(ctx context.Context, userID string) {
	if err := s.carts.ClearCart(ctx, userID); err != nil {
		s.logger(ctx, "order.cart_clear_failed", map[string]any{"userID": userID, "error": err.Error()})
	}
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{
			"orderID": event.OrderID,
			"type":    event.Type,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) translateGatewayError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, payments.ErrAuthenticationFailed):
		return ErrPaymentAuthFailed
	case errors.Is(err, payments.ErrUnavailable),
		errors.Is(err, payments.ErrNotConfigured):
		return ErrPaymentUnavailable
	}
	var reqErr *payments.RequestError
	if errors.As(err, &reqErr) {
		return &PaymentRejectedError{Code: reqErr.Code, Description: reqErr.Description}
	}
	return ErrPaymentUnavailable
}

func (s *orderService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrOrderNotFound
		case repoErr.IsConflict():
			return ErrOrderUnavailable
		}
	}
	return ErrOrderUnavailable
}
