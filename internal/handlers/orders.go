package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foodiehq/api/internal/platform/auth"
	"github.com/foodiehq/api/internal/platform/httpx"
	"github.com/foodiehq/api/internal/platform/pagination"
	"github.com/foodiehq/api/internal/services"
)

const maxOrderBodySize = 32 * 1024

// OrderHandlers exposes authenticated order placement and tracking endpoints.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
}

// OrderHandlersConfig bundles constructor inputs for the order handlers.
type OrderHandlersConfig struct {
	Authenticator *auth.Authenticator
	Orders        services.OrderService
	// Idempotency guards the order placement endpoints against client retries.
	Idempotency func(http.Handler) http.Handler
}

// NewOrderHandlers constructs handlers for the /orders route group.
func NewOrderHandlers(cfg OrderHandlersConfig) *OrderHandlers {
	return &OrderHandlers{
		authn:       cfg.Authenticator,
		orders:      cfg.Orders,
		idempotency: cfg.Idempotency,
	}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}

	r.Group(func(placing chi.Router) {
		if h.idempotency != nil {
			placing.Use(h.idempotency)
		}
		placing.Post("/", h.checkout)
		placing.Post("/direct", h.placeDirect)
	})
	r.Post("/verify", h.verifyPayment)
	r.Get("/mine", h.listMine)
	r.Get("/{orderID}", h.getOrder)
}

type placeOrderRequest struct {
	DeliveryAddress string `json:"deliveryAddress"`
	Phone           string `json:"phone"`
}

type verifyPaymentRequest struct {
	GatewayOrderID string `json:"gatewayOrderId"`
	PaymentID      string `json:"paymentId"`
	Signature      string `json:"signature"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type checkoutResponse struct {
	Order          orderPayload `json:"order"`
	GatewayOrderID string       `json:"gatewayOrderId"`
	Amount         int64        `json:"amount"`
	Currency       string       `json:"currency"`
}

func (h *OrderHandlers) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	result, err := h.orders.Checkout(ctx, services.CheckoutCommand{
		UserID:          identity.UserID,
		DeliveryAddress: req.DeliveryAddress,
		Phone:           req.Phone,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, checkoutResponse{
		Order:          buildOrderPayload(result.Order),
		GatewayOrderID: result.GatewayOrderID,
		Amount:         result.Amount,
		Currency:       result.Currency,
	})
}

func (h *OrderHandlers) placeDirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	order, err := h.orders.PlaceDirect(ctx, services.DirectOrderCommand{
		UserID:          identity.UserID,
		DeliveryAddress: req.DeliveryAddress,
		Phone:           req.Phone,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req verifyPaymentRequest
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	order, err := h.orders.VerifyPayment(ctx, services.VerifyPaymentCommand{
		UserID:         identity.UserID,
		GatewayOrderID: req.GatewayOrderID,
		PaymentID:      req.PaymentID,
		Signature:      req.Signature,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		writePageParamsError(w, r, err)
		return
	}

	page, err := h.orders.ListMine(ctx, services.ListMyOrdersQuery{
		UserID:    identity.UserID,
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderListPayload(page))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderQuery{
		OrderID:      chi.URLParam(r, "orderID"),
		ActorID:      identity.UserID,
		ActorIsAdmin: identity.IsAdmin(),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order request is invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "cart has no items to order", http.StatusBadRequest))
	case errors.Is(err, services.ErrAmountBelowMinimum):
		httpx.WriteError(ctx, w, httpx.NewError("amount_below_minimum", "order amount is below the chargeable minimum", http.StatusBadRequest))
	case errors.Is(err, services.ErrSignatureMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("signature_mismatch", "payment signature verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrInvalidStatus):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status", "unknown order status", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "you may not access this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentRejected):
		message := "payment was rejected by the gateway"
		details := map[string]any(nil)
		var rejected *services.PaymentRejectedError
		if errors.As(err, &rejected) {
			if rejected.Description != "" {
				message = rejected.Description
			}
			if rejected.Code != "" {
				details = map[string]any{"errorCode": rejected.Code}
			}
		}
		httpx.WriteError(ctx, w, httpx.NewError("payment_rejected", message, http.StatusBadRequest).WithDetails(details))
	case errors.Is(err, services.ErrPaymentAuthFailed):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_authentication_failed", "payment gateway rejected the configured credentials", http.StatusUnauthorized))
	case errors.Is(err, services.ErrPaymentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "payment gateway is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order backend is unavailable", http.StatusServiceUnavailable))
	}
}
