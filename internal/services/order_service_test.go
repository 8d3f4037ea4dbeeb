package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/foodiehq/api/internal/domain"
	"github.com/foodiehq/api/internal/payments"
	"github.com/foodiehq/api/internal/repositories"
)

type stubOrderRepo struct {
	orders  map[string]domain.Order
	inserts int
	updates int
	fail    error
}

func newStubOrderRepo() *stubOrderRepo {
	return &stubOrderRepo{orders: map[string]domain.Order{}}
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.fail != nil {
		return s.fail
	}
	s.inserts++
	s.orders[order.ID] = order
	return nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order) error {
	if s.fail != nil {
		return s.fail
	}
	if _, ok := s.orders[order.ID]; !ok {
		return errStubNotFound
	}
	s.updates++
	s.orders[order.ID] = order
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.fail != nil {
		return domain.Order{}, s.fail
	}
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, errStubNotFound
	}
	return order, nil
}

func (s *stubOrderRepo) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Order, error) {
	if s.fail != nil {
		return domain.Order{}, s.fail
	}
	for _, order := range s.orders {
		if order.GatewayOrderID == gatewayOrderID {
			return order, nil
		}
	}
	return domain.Order{}, errStubNotFound
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (repositories.OrderPage, error) {
	if s.fail != nil {
		return repositories.OrderPage{}, s.fail
	}
	var page repositories.OrderPage
	for _, order := range s.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		page.Orders = append(page.Orders, order)
	}
	return page, nil
}

func (s *stubOrderRepo) Stats(ctx context.Context) (repositories.OrderStats, error) {
	if s.fail != nil {
		return repositories.OrderStats{}, s.fail
	}
	var stats repositories.OrderStats
	for _, order := range s.orders {
		stats.TotalOrders++
		if order.PaymentStatus == domain.PaymentStatusCompleted {
			stats.Revenue += order.TotalAmount
		}
	}
	return stats, nil
}

type stubGateway struct {
	intent payments.Intent
	err    error
	calls  int
	last   payments.IntentRequest
}

func (s *stubGateway) CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return payments.Intent{}, s.err
	}
	return s.intent, nil
}

type capturingPublisher struct {
	events []OrderEvent
	err    error
}

func (c *capturingPublisher) PublishOrderEvent(ctx context.Context, event OrderEvent) error {
	c.events = append(c.events, event)
	return c.err
}

const testCallbackSecret = "callback-secret"

func callbackSignature(gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(testCallbackSecret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

type orderServiceFixture struct {
	orders    *stubOrderRepo
	carts     *memCartRepository
	gateway   *stubGateway
	publisher *capturingPublisher
	now       time.Time
	svc       OrderService
}

func newOrderServiceFixture(t *testing.T) *orderServiceFixture {
	t.Helper()
	f := &orderServiceFixture{
		orders:    newStubOrderRepo(),
		carts:     newMemCartRepository(),
		gateway:   &stubGateway{intent: payments.Intent{ID: "pi_test_1", Status: payments.StatusPending}},
		publisher: &capturingPublisher{},
		now:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:         f.orders,
		Carts:          f.carts,
		Gateway:        f.gateway,
		CallbackSecret: testCallbackSecret,
		Currency:       "INR",
		DeliveryFee:    5000,
		MinimumCharge:  100,
		Clock:          func() time.Time { return f.now },
		IDGenerator:    func() string { return "01ORDER" },
		Events:         f.publisher,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	f.svc = svc
	return f
}

func (f *orderServiceFixture) seedCart(t *testing.T, userID string, lines ...domain.CartItem) {
	t.Helper()
	_, err := f.carts.MutateCart(context.Background(), userID, func(cart *domain.Cart) error {
		cart.Items = lines
		return nil
	})
	if err != nil {
		t.Fatalf("seed cart: %v", err)
	}
}

func standardCartLines() []domain.CartItem {
	return []domain.CartItem{
		{ID: "cit_1", MenuItemID: "itm_1", Name: "Paneer Tikka", Quantity: 2, UnitPrice: 24900},
		{ID: "cit_2", MenuItemID: "itm_2", Name: "Masala Chai", Quantity: 1, UnitPrice: 4900},
	}
}

func TestOrderServiceCheckout(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.seedCart(t, "usr_1", standardCartLines()...)

	result, err := f.svc.Checkout(context.Background(), CheckoutCommand{
		UserID:          "usr_1",
		DeliveryAddress: "12 MG Road",
		Phone:           "+911234567890",
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	// The order total covers items only; the charge adds the delivery fee.
	if result.Order.TotalAmount != 54700 {
		t.Fatalf("expected order total 54700, got %d", result.Order.TotalAmount)
	}
	if result.Amount != 59700 {
		t.Fatalf("expected charge 59700, got %d", result.Amount)
	}
	if result.Currency != "inr" {
		t.Fatalf("expected inr, got %q", result.Currency)
	}
	if result.GatewayOrderID != "pi_test_1" {
		t.Fatalf("expected gateway order id pi_test_1, got %q", result.GatewayOrderID)
	}
	if result.Order.Status != domain.OrderStatusPending || result.Order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected pending/pending, got %s/%s", result.Order.Status, result.Order.PaymentStatus)
	}
	if len(result.Order.StatusHistory) != 1 || result.Order.StatusHistory[0].Status != domain.OrderStatusPending {
		t.Fatalf("expected initial pending history entry, got %+v", result.Order.StatusHistory)
	}
	if !strings.HasPrefix(f.gateway.last.ReceiptRef, "receipt_") {
		t.Fatalf("expected receipt_ prefix, got %q", f.gateway.last.ReceiptRef)
	}
	if f.gateway.last.Amount != 59700 {
		t.Fatalf("expected gateway amount 59700, got %d", f.gateway.last.Amount)
	}

	// The cart survives until the payment verifies.
	cart, err := f.carts.GetCart(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("expected cart to stay intact, got %d lines", len(cart.Items))
	}

	if len(f.publisher.events) != 1 || f.publisher.events[0].Type != orderEventCreated {
		t.Fatalf("expected a created event, got %+v", f.publisher.events)
	}
}

func TestOrderServiceCheckoutEmptyCart(t *testing.T) {
	f := newOrderServiceFixture(t)

	_, err := f.svc.Checkout(context.Background(), CheckoutCommand{
		UserID:          "usr_1",
		DeliveryAddress: "12 MG Road",
		Phone:           "+911234567890",
	})
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
	if f.gateway.calls != 0 {
		t.Fatal("expected no gateway call for empty cart")
	}
}

func TestOrderServiceCheckoutBelowMinimumSkipsGateway(t *testing.T) {
	f := newOrderServiceFixture(t)

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:         f.orders,
		Carts:          f.carts,
		Gateway:        f.gateway,
		CallbackSecret: testCallbackSecret,
		DeliveryFee:    0,
		MinimumCharge:  100,
		Clock:          func() time.Time { return f.now },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	f.seedCart(t, "usr_1", domain.CartItem{ID: "cit_1", MenuItemID: "itm_1", Name: "Mint", Quantity: 1, UnitPrice: 50})

	if _, err := svc.Checkout(context.Background(), CheckoutCommand{
		UserID:          "usr_1",
		DeliveryAddress: "12 MG Road",
		Phone:           "+911234567890",
	}); !errors.Is(err, ErrAmountBelowMinimum) {
		t.Fatalf("expected ErrAmountBelowMinimum, got %v", err)
	}
	if f.gateway.calls != 0 {
		t.Fatal("expected no gateway call below minimum")
	}
	if f.orders.inserts != 0 {
		t.Fatal("expected no order insert below minimum")
	}
}

func TestOrderServiceCheckoutGatewayErrors(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.seedCart(t, "usr_1", standardCartLines()...)

	f.gateway.err = payments.ErrUnavailable
	if _, err := f.svc.Checkout(context.Background(), CheckoutCommand{
		UserID: "usr_1", DeliveryAddress: "12 MG Road", Phone: "+911234567890",
	}); !errors.Is(err, ErrPaymentUnavailable) {
		t.Fatalf("expected ErrPaymentUnavailable, got %v", err)
	}

	f.gateway.err = payments.ErrAuthenticationFailed
	if _, err := f.svc.Checkout(context.Background(), CheckoutCommand{
		UserID: "usr_1", DeliveryAddress: "12 MG Road", Phone: "+911234567890",
	}); !errors.Is(err, ErrPaymentAuthFailed) {
		t.Fatalf("expected ErrPaymentAuthFailed, got %v", err)
	}

	f.gateway.err = &payments.RequestError{Code: "card_declined", Description: "card declined", StatusCode: 402}
	_, err := f.svc.Checkout(context.Background(), CheckoutCommand{
		UserID: "usr_1", DeliveryAddress: "12 MG Road", Phone: "+911234567890",
	})
	if !errors.Is(err, ErrPaymentRejected) {
		t.Fatalf("expected ErrPaymentRejected, got %v", err)
	}
	var rejected *PaymentRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected PaymentRejectedError, got %v", err)
	}
	if rejected.Code != "card_declined" || rejected.Description != "card declined" {
		t.Fatalf("unexpected rejection %+v", rejected)
	}
	if f.orders.inserts != 0 {
		t.Fatal("expected no order insert on gateway failure")
	}
}

func TestOrderServicePlaceDirect(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.seedCart(t, "usr_1", standardCartLines()...)

	order, err := f.svc.PlaceDirect(context.Background(), DirectOrderCommand{
		UserID:          "usr_1",
		DeliveryAddress: "12 MG Road",
		Phone:           "+911234567890",
	})
	if err != nil {
		t.Fatalf("PlaceDirect: %v", err)
	}

	if !strings.HasPrefix(order.PaymentID, "direct_") {
		t.Fatalf("expected direct_ payment id, got %q", order.PaymentID)
	}
	if order.PaymentStatus != domain.PaymentStatusCompleted {
		t.Fatalf("expected completed payment, got %s", order.PaymentStatus)
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed status, got %s", order.Status)
	}
	if len(order.StatusHistory) != 2 {
		t.Fatalf("expected pending then confirmed history, got %+v", order.StatusHistory)
	}
	if f.gateway.calls != 0 {
		t.Fatal("expected no gateway involvement for direct orders")
	}

	cart, err := f.carts.GetCart(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatal("expected cart cleared after direct order")
	}
}

func TestOrderServiceVerifyPayment(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.seedCart(t, "usr_1", standardCartLines()...)

	result, err := f.svc.Checkout(context.Background(), CheckoutCommand{
		UserID: "usr_1", DeliveryAddress: "12 MG Road", Phone: "+911234567890",
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	order, err := f.svc.VerifyPayment(context.Background(), VerifyPaymentCommand{
		UserID:         "usr_1",
		GatewayOrderID: result.GatewayOrderID,
		PaymentID:      "pay_123",
		Signature:      callbackSignature(result.GatewayOrderID, "pay_123"),
	})
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}

	if order.PaymentStatus != domain.PaymentStatusCompleted {
		t.Fatalf("expected completed payment, got %s", order.PaymentStatus)
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed order, got %s", order.Status)
	}
	if order.PaymentID != "pay_123" {
		t.Fatalf("expected payment id recorded, got %q", order.PaymentID)
	}

	cart, err := f.carts.GetCart(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatal("expected cart cleared after verification")
	}
}

func TestOrderServiceVerifyPaymentBadSignature(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.seedCart(t, "usr_1", standardCartLines()...)

	result, err := f.svc.Checkout(context.Background(), CheckoutCommand{
		UserID: "usr_1", DeliveryAddress: "12 MG Road", Phone: "+911234567890",
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	_, err = f.svc.VerifyPayment(context.Background(), VerifyPaymentCommand{
		UserID:         "usr_1",
		GatewayOrderID: result.GatewayOrderID,
		PaymentID:      "pay_123",
		Signature:      "deadbeef",
	})
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}

	stored := f.orders.orders[result.Order.ID]
	if stored.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected pending payment untouched, got %s", stored.PaymentStatus)
	}
	if stored.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending order untouched, got %s", stored.Status)
	}
	if stored.PaymentID != "" {
		t.Fatalf("expected no payment id recorded, got %q", stored.PaymentID)
	}
	if !stored.UpdatedAt.Equal(result.Order.UpdatedAt) {
		t.Fatal("expected order not rewritten on signature mismatch")
	}

	cart, err := f.carts.GetCart(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(cart.Items) == 0 {
		t.Fatal("expected cart untouched on signature mismatch")
	}

	// The pending order must still settle once a valid callback arrives.
	order, err := f.svc.VerifyPayment(context.Background(), VerifyPaymentCommand{
		UserID:         "usr_1",
		GatewayOrderID: result.GatewayOrderID,
		PaymentID:      "pay_123",
		Signature:      callbackSignature(result.GatewayOrderID, "pay_123"),
	})
	if err != nil {
		t.Fatalf("VerifyPayment after mismatch: %v", err)
	}
	if order.PaymentStatus != domain.PaymentStatusCompleted {
		t.Fatalf("expected completed payment, got %s", order.PaymentStatus)
	}
}

func TestOrderServiceVerifyPaymentWrongUser(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.seedCart(t, "usr_1", standardCartLines()...)

	result, err := f.svc.Checkout(context.Background(), CheckoutCommand{
		UserID: "usr_1", DeliveryAddress: "12 MG Road", Phone: "+911234567890",
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	if _, err := f.svc.VerifyPayment(context.Background(), VerifyPaymentCommand{
		UserID:         "usr_2",
		GatewayOrderID: result.GatewayOrderID,
		PaymentID:      "pay_123",
		Signature:      callbackSignature(result.GatewayOrderID, "pay_123"),
	}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
}

func TestOrderServiceGetOrderAccessControl(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.orders.orders["ord_1"] = domain.Order{ID: "ord_1", UserID: "usr_1"}

	if _, err := f.svc.GetOrder(context.Background(), GetOrderQuery{OrderID: "ord_1", ActorID: "usr_1"}); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := f.svc.GetOrder(context.Background(), GetOrderQuery{OrderID: "ord_1", ActorID: "usr_2"}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
	if _, err := f.svc.GetOrder(context.Background(), GetOrderQuery{OrderID: "ord_1", ActorID: "usr_2", ActorIsAdmin: true}); err != nil {
		t.Fatalf("admin read: %v", err)
	}
	if _, err := f.svc.GetOrder(context.Background(), GetOrderQuery{OrderID: "ord_x", ActorID: "usr_1"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderServiceUpdateStatus(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.orders.orders["ord_1"] = domain.Order{
		ID:        "ord_1",
		UserID:    "usr_1",
		Status:    domain.OrderStatusConfirmed,
		CreatedAt: f.now.Add(-time.Hour),
		StatusHistory: []domain.StatusHistoryEntry{
			{Status: domain.OrderStatusPending, Timestamp: f.now.Add(-time.Hour)},
			{Status: domain.OrderStatusConfirmed, Timestamp: f.now.Add(-30 * time.Minute)},
		},
	}

	order, err := f.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID: "ord_1",
		Status:  domain.OrderStatusOutForDelivery,
		ActorID: "usr_admin",
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	if order.Status != domain.OrderStatusOutForDelivery {
		t.Fatalf("expected out-for-delivery, got %s", order.Status)
	}
	if order.EstimatedDeliveryTime == nil || !order.EstimatedDeliveryTime.Equal(f.now.Add(30*time.Minute)) {
		t.Fatalf("expected ETA thirty minutes out, got %v", order.EstimatedDeliveryTime)
	}
	if len(order.StatusHistory) != 3 {
		t.Fatalf("expected three history entries, got %d", len(order.StatusHistory))
	}

	order, err = f.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID: "ord_1",
		Status:  domain.OrderStatusDelivered,
	})
	if err != nil {
		t.Fatalf("UpdateStatus delivered: %v", err)
	}
	if order.EstimatedDeliveryTime == nil || !order.EstimatedDeliveryTime.Equal(f.now) {
		t.Fatalf("expected ETA stamped to delivery time, got %v", order.EstimatedDeliveryTime)
	}
}

func TestOrderServiceUpdateStatusNoOpOnSameStatus(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.orders.orders["ord_1"] = domain.Order{
		ID:     "ord_1",
		Status: domain.OrderStatusConfirmed,
		StatusHistory: []domain.StatusHistoryEntry{
			{Status: domain.OrderStatusPending, Timestamp: f.now.Add(-time.Hour)},
			{Status: domain.OrderStatusConfirmed, Timestamp: f.now.Add(-30 * time.Minute)},
		},
	}

	order, err := f.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID: "ord_1",
		Status:  domain.OrderStatusConfirmed,
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if len(order.StatusHistory) != 2 {
		t.Fatalf("expected history untouched, got %d entries", len(order.StatusHistory))
	}
	if f.orders.updates != 0 {
		t.Fatal("expected no write for a no-op transition")
	}
	if len(f.publisher.events) != 0 {
		t.Fatal("expected no event for a no-op transition")
	}
}

func TestOrderServiceUpdateStatusRejectsUnknown(t *testing.T) {
	f := newOrderServiceFixture(t)

	if _, err := f.svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID: "ord_1",
		Status:  domain.OrderStatus("teleported"),
	}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestOrderServiceListMine(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.orders.orders["ord_1"] = domain.Order{ID: "ord_1", UserID: "usr_1"}
	f.orders.orders["ord_2"] = domain.Order{ID: "ord_2", UserID: "usr_2"}

	page, err := f.svc.ListMine(context.Background(), ListMyOrdersQuery{UserID: "usr_1"})
	if err != nil {
		t.Fatalf("ListMine: %v", err)
	}
	if len(page.Orders) != 1 || page.Orders[0].ID != "ord_1" {
		t.Fatalf("expected only usr_1 orders, got %+v", page.Orders)
	}

	if _, err := f.svc.ListMine(context.Background(), ListMyOrdersQuery{}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestOrderServiceListAllValidatesStatus(t *testing.T) {
	f := newOrderServiceFixture(t)

	bogus := domain.OrderStatus("bogus")
	if _, err := f.svc.ListAll(context.Background(), OrderListFilter{Status: &bogus}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestOrderServicePublishFailureDoesNotFailOrder(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.publisher.err = errors.New("broker down")
	f.seedCart(t, "usr_1", standardCartLines()...)

	if _, err := f.svc.PlaceDirect(context.Background(), DirectOrderCommand{
		UserID: "usr_1", DeliveryAddress: "12 MG Road", Phone: "+911234567890",
	}); err != nil {
		t.Fatalf("PlaceDirect: %v", err)
	}
}
