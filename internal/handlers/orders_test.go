package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	domain "github.com/foodiehq/api/internal/domain"
	"github.com/foodiehq/api/internal/platform/pagination"
	"github.com/foodiehq/api/internal/services"
)

type stubOrderService struct {
	checkoutFn      func(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error)
	placeDirectFn   func(ctx context.Context, cmd services.DirectOrderCommand) (services.Order, error)
	verifyPaymentFn func(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Order, error)
	listMineFn      func(ctx context.Context, query services.ListMyOrdersQuery) (services.OrderPage, error)
	listAllFn       func(ctx context.Context, filter services.OrderListFilter) (services.OrderPage, error)
	getOrderFn      func(ctx context.Context, query services.GetOrderQuery) (services.Order, error)
	updateStatusFn  func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error)
	statsFn         func(ctx context.Context) (services.OrderStats, error)
}

func (s *stubOrderService) Checkout(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
	if s.checkoutFn == nil {
		return services.CheckoutResult{}, services.ErrOrderUnavailable
	}
	return s.checkoutFn(ctx, cmd)
}

func (s *stubOrderService) PlaceDirect(ctx context.Context, cmd services.DirectOrderCommand) (services.Order, error) {
	if s.placeDirectFn == nil {
		return services.Order{}, services.ErrOrderUnavailable
	}
	return s.placeDirectFn(ctx, cmd)
}

func (s *stubOrderService) VerifyPayment(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
	if s.verifyPaymentFn == nil {
		return services.Order{}, services.ErrOrderUnavailable
	}
	return s.verifyPaymentFn(ctx, cmd)
}

func (s *stubOrderService) ListMine(ctx context.Context, query services.ListMyOrdersQuery) (services.OrderPage, error) {
	if s.listMineFn == nil {
		return services.OrderPage{}, services.ErrOrderUnavailable
	}
	return s.listMineFn(ctx, query)
}

func (s *stubOrderService) ListAll(ctx context.Context, filter services.OrderListFilter) (services.OrderPage, error) {
	if s.listAllFn == nil {
		return services.OrderPage{}, services.ErrOrderUnavailable
	}
	return s.listAllFn(ctx, filter)
}

func (s *stubOrderService) GetOrder(ctx context.Context, query services.GetOrderQuery) (services.Order, error) {
	if s.getOrderFn == nil {
		return services.Order{}, services.ErrOrderUnavailable
	}
	return s.getOrderFn(ctx, query)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.updateStatusFn == nil {
		return services.Order{}, services.ErrOrderUnavailable
	}
	return s.updateStatusFn(ctx, cmd)
}

func (s *stubOrderService) Stats(ctx context.Context) (services.OrderStats, error) {
	if s.statsFn == nil {
		return services.OrderStats{}, services.ErrOrderUnavailable
	}
	return s.statsFn(ctx)
}

func sampleOrder() domain.Order {
	created := time.Date(2025, time.June, 3, 13, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:     "ord_1",
		UserID: "usr_1",
		Items: []domain.OrderItem{
			{MenuItemID: "itm_1", Name: "Paneer Tikka", Quantity: 2, UnitPrice: 24900},
		},
		TotalAmount:     49800,
		Currency:        "inr",
		DeliveryAddress: "42 MG Road",
		Phone:           "+911234567890",
		PaymentStatus:   domain.PaymentStatusPending,
		Status:          domain.OrderStatusPending,
		StatusHistory: []domain.StatusHistoryEntry{
			{Status: domain.OrderStatusPending, Timestamp: created},
		},
		GatewayOrderID: "gw_order_1",
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func newOrderTestRouter(orders services.OrderService) http.Handler {
	h := NewOrderHandlers(OrderHandlersConfig{Orders: orders})
	return mountRoutes("/orders", customerIdentity(), h.Routes)
}

func TestOrdersCheckoutReturnsGatewayIntent(t *testing.T) {
	var captured services.CheckoutCommand
	orders := &stubOrderService{
		checkoutFn: func(_ context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
			captured = cmd
			return services.CheckoutResult{
				Order:          sampleOrder(),
				GatewayOrderID: "gw_order_1",
				Amount:         54800,
				Currency:       "inr",
			}, nil
		},
	}
	router := newOrderTestRouter(orders)

	rec := doJSON(t, router, http.MethodPost, "/orders/", map[string]string{
		"deliveryAddress": "42 MG Road",
		"phone":           "+911234567890",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.UserID != "usr_1" || captured.DeliveryAddress != "42 MG Road" {
		t.Fatalf("unexpected command %+v", captured)
	}

	var resp checkoutResponse
	decodeResponse(t, rec, &resp)
	if resp.GatewayOrderID != "gw_order_1" || resp.Amount != 54800 || resp.Currency != "inr" {
		t.Fatalf("unexpected checkout payload %+v", resp)
	}
	if resp.Order.ID != "ord_1" || resp.Order.TotalAmount != 49800 {
		t.Fatalf("unexpected order payload %+v", resp.Order)
	}
}

func TestOrdersCheckoutEmptyCart(t *testing.T) {
	orders := &stubOrderService{
		checkoutFn: func(context.Context, services.CheckoutCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{}, services.ErrEmptyCart
		},
	}
	router := newOrderTestRouter(orders)

	rec := doJSON(t, router, http.MethodPost, "/orders/", map[string]string{
		"deliveryAddress": "42 MG Road",
		"phone":           "+911234567890",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "empty_cart") {
		t.Fatalf("expected empty_cart code, got %s", rec.Body.String())
	}
}

func TestOrdersCheckoutPaymentUnavailable(t *testing.T) {
	orders := &stubOrderService{
		checkoutFn: func(context.Context, services.CheckoutCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{}, services.ErrPaymentUnavailable
		},
	}
	router := newOrderTestRouter(orders)

	rec := doJSON(t, router, http.MethodPost, "/orders/", map[string]string{
		"deliveryAddress": "42 MG Road",
		"phone":           "+911234567890",
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestOrdersCheckoutPaymentRejectedCarriesGatewayDetails(t *testing.T) {
	orders := &stubOrderService{
		checkoutFn: func(context.Context, services.CheckoutCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{}, &services.PaymentRejectedError{
				Code:        "amount_too_small",
				Description: "Amount must be at least 50 cents",
			}
		},
	}
	router := newOrderTestRouter(orders)

	rec := doJSON(t, router, http.MethodPost, "/orders/", map[string]string{
		"deliveryAddress": "42 MG Road",
		"phone":           "+911234567890",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var resp struct {
		Error     string `json:"error"`
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
	}
	decodeResponse(t, rec, &resp)
	if resp.Error != "payment_rejected" {
		t.Fatalf("unexpected error code %q", resp.Error)
	}
	if resp.Message != "Amount must be at least 50 cents" {
		t.Fatalf("expected gateway description surfaced, got %q", resp.Message)
	}
	if resp.ErrorCode != "amount_too_small" {
		t.Fatalf("expected gateway error code surfaced, got %q", resp.ErrorCode)
	}
}

func TestOrdersCheckoutGatewayAuthenticationFailure(t *testing.T) {
	orders := &stubOrderService{
		checkoutFn: func(context.Context, services.CheckoutCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{}, services.ErrPaymentAuthFailed
		},
	}
	router := newOrderTestRouter(orders)

	rec := doJSON(t, router, http.MethodPost, "/orders/", map[string]string{
		"deliveryAddress": "42 MG Road",
		"phone":           "+911234567890",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gateway_authentication_failed") {
		t.Fatalf("expected gateway_authentication_failed code, got %s", rec.Body.String())
	}
}

func TestOrdersPlaceDirect(t *testing.T) {
	order := sampleOrder()
	order.PaymentID = "direct_1748955600000"
	order.PaymentStatus = domain.PaymentStatusCompleted
	order.Status = domain.OrderStatusConfirmed
	orders := &stubOrderService{
		placeDirectFn: func(_ context.Context, cmd services.DirectOrderCommand) (services.Order, error) {
			if cmd.UserID != "usr_1" {
				t.Fatalf("unexpected user id %q", cmd.UserID)
			}
			return order, nil
		},
	}
	router := newOrderTestRouter(orders)

	rec := doJSON(t, router, http.MethodPost, "/orders/direct", map[string]string{
		"deliveryAddress": "42 MG Road",
		"phone":           "+911234567890",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp orderResponse
	decodeResponse(t, rec, &resp)
	if resp.Order.Status != "confirmed" || resp.Order.PaymentStatus != "completed" {
		t.Fatalf("unexpected order payload %+v", resp.Order)
	}
}

func TestOrdersVerifySignatureMismatch(t *testing.T) {
	orders := &stubOrderService{
		verifyPaymentFn: func(context.Context, services.VerifyPaymentCommand) (services.Order, error) {
			return services.Order{}, services.ErrSignatureMismatch
		},
	}
	router := newOrderTestRouter(orders)

	rec := doJSON(t, router, http.MethodPost, "/orders/verify", map[string]string{
		"gatewayOrderId": "gw_order_1",
		"paymentId":      "pay_1",
		"signature":      "bogus",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "signature_mismatch") {
		t.Fatalf("expected signature_mismatch code, got %s", rec.Body.String())
	}
}

func TestOrdersVerifySettlesOrder(t *testing.T) {
	var captured services.VerifyPaymentCommand
	order := sampleOrder()
	order.PaymentStatus = domain.PaymentStatusCompleted
	order.Status = domain.OrderStatusConfirmed
	orders := &stubOrderService{
		verifyPaymentFn: func(_ context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
			captured = cmd
			return order, nil
		},
	}
	router := newOrderTestRouter(orders)

	rec := doJSON(t, router, http.MethodPost, "/orders/verify", map[string]string{
		"gatewayOrderId": "gw_order_1",
		"paymentId":      "pay_1",
		"signature":      "deadbeef",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.UserID != "usr_1" || captured.GatewayOrderID != "gw_order_1" || captured.PaymentID != "pay_1" {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestOrdersListMinePassesPaging(t *testing.T) {
	token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{"2025-03-01T00:00:00Z", "ord_0"}})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}

	var captured services.ListMyOrdersQuery
	orders := &stubOrderService{
		listMineFn: func(_ context.Context, query services.ListMyOrdersQuery) (services.OrderPage, error) {
			captured = query
			return services.OrderPage{Orders: []services.Order{sampleOrder()}, NextPageToken: "tok_2"}, nil
		},
	}
	router := newOrderTestRouter(orders)

	rec := doJSON(t, router, http.MethodGet, "/orders/mine?pageSize=10&pageToken="+token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.UserID != "usr_1" || captured.PageSize != 10 || captured.PageToken != token {
		t.Fatalf("unexpected query %+v", captured)
	}

	var resp orderListPayload
	decodeResponse(t, rec, &resp)
	if len(resp.Orders) != 1 || resp.NextPageToken != "tok_2" {
		t.Fatalf("unexpected page %+v", resp)
	}
}

func TestOrdersListMineDefaultsPageSize(t *testing.T) {
	var captured services.ListMyOrdersQuery
	orders := &stubOrderService{
		listMineFn: func(_ context.Context, query services.ListMyOrdersQuery) (services.OrderPage, error) {
			captured = query
			return services.OrderPage{}, nil
		},
	}
	router := newOrderTestRouter(orders)

	rec := doJSON(t, router, http.MethodGet, "/orders/mine", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.PageSize != pagination.DefaultPageSize {
		t.Fatalf("expected default page size %d, got %d", pagination.DefaultPageSize, captured.PageSize)
	}
}

func TestOrdersListMineRejectsBadPaging(t *testing.T) {
	called := false
	orders := &stubOrderService{
		listMineFn: func(context.Context, services.ListMyOrdersQuery) (services.OrderPage, error) {
			called = true
			return services.OrderPage{}, nil
		},
	}
	router := newOrderTestRouter(orders)

	rec := doJSON(t, router, http.MethodGet, "/orders/mine?pageSize=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad pageSize, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/orders/mine?pageToken=%21%21%21", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad pageToken, got %d", rec.Code)
	}
	if called {
		t.Fatal("service must not be called for invalid paging input")
	}
}

func TestOrdersGetForbidden(t *testing.T) {
	orders := &stubOrderService{
		getOrderFn: func(context.Context, services.GetOrderQuery) (services.Order, error) {
			return services.Order{}, services.ErrOrderForbidden
		},
	}
	router := newOrderTestRouter(orders)

	rec := doJSON(t, router, http.MethodGet, "/orders/ord_2", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestOrdersGetPassesActor(t *testing.T) {
	var captured services.GetOrderQuery
	orders := &stubOrderService{
		getOrderFn: func(_ context.Context, query services.GetOrderQuery) (services.Order, error) {
			captured = query
			return sampleOrder(), nil
		},
	}
	h := NewOrderHandlers(OrderHandlersConfig{Orders: orders})
	router := mountRoutes("/orders", adminIdentity(), h.Routes)

	rec := doJSON(t, router, http.MethodGet, "/orders/ord_1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.ActorID != "usr_admin" || !captured.ActorIsAdmin {
		t.Fatalf("unexpected query %+v", captured)
	}
}

func TestOrdersPlacementUsesIdempotencyMiddleware(t *testing.T) {
	wrapped := 0
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped++
			next.ServeHTTP(w, r)
		})
	}
	orders := &stubOrderService{
		checkoutFn: func(context.Context, services.CheckoutCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{Order: sampleOrder()}, nil
		},
		verifyPaymentFn: func(context.Context, services.VerifyPaymentCommand) (services.Order, error) {
			return sampleOrder(), nil
		},
	}
	h := NewOrderHandlers(OrderHandlersConfig{Orders: orders, Idempotency: mw})
	router := mountRoutes("/orders", customerIdentity(), h.Routes)

	doJSON(t, router, http.MethodPost, "/orders/", map[string]string{
		"deliveryAddress": "42 MG Road",
		"phone":           "+911234567890",
	})
	if wrapped != 1 {
		t.Fatalf("expected placement to pass through the middleware once, got %d", wrapped)
	}

	doJSON(t, router, http.MethodPost, "/orders/verify", map[string]string{
		"gatewayOrderId": "gw_order_1",
		"paymentId":      "pay_1",
		"signature":      "deadbeef",
	})
	if wrapped != 1 {
		t.Fatalf("verify endpoint should not run the placement middleware, got %d", wrapped)
	}
}
