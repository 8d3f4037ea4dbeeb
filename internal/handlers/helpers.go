package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/foodiehq/api/internal/domain"
	"github.com/foodiehq/api/internal/platform/auth"
	"github.com/foodiehq/api/internal/platform/httpx"
	"github.com/foodiehq/api/internal/platform/pagination"
	"github.com/foodiehq/api/internal/repositories"
)

const defaultMaxBodySize = 16 * 1024

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func decodeJSONBody(r *http.Request, limit int64, dst any) error {
	data, err := readLimitedBody(r, limit)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
	}
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// requireIdentity pulls the authenticated identity out of the context,
// answering 401 itself when it is missing.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writePageParamsError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, pagination.ErrInvalidPageSize):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pageSize must be a positive integer", http.StatusBadRequest))
	case errors.Is(err, pagination.ErrInvalidPageToken):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pageToken is not a valid page cursor", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid pagination parameters", http.StatusBadRequest))
	}
}

// Shared response payload shapes -------------------------------------------

type userPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt,omitempty"`
}

func buildUserPayload(user domain.User) userPayload {
	return userPayload{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Phone:     user.Phone,
		Address:   user.Address,
		Role:      string(user.Role),
		CreatedAt: formatTime(user.CreatedAt),
	}
}

type menuItemPayload struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Price           int64  `json:"price"`
	Category        string `json:"category"`
	ImageURL        string `json:"imageUrl,omitempty"`
	Available       bool   `json:"available"`
	PreparationTime int    `json:"preparationTime,omitempty"`
	CreatedAt       string `json:"createdAt,omitempty"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}

func buildMenuItemPayload(item domain.MenuItem) menuItemPayload {
	return menuItemPayload{
		ID:              item.ID,
		Name:            item.Name,
		Description:     item.Description,
		Price:           item.Price,
		Category:        item.Category,
		ImageURL:        item.ImageURL,
		Available:       item.Available,
		PreparationTime: item.PreparationTime,
		CreatedAt:       formatTime(item.CreatedAt),
		UpdatedAt:       formatTime(item.UpdatedAt),
	}
}

type categoryPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

func buildCategoryPayload(category domain.Category) categoryPayload {
	return categoryPayload{
		ID:          category.ID,
		Name:        category.Name,
		DisplayName: category.DisplayName,
	}
}

type cartItemPayload struct {
	ID         string `json:"id"`
	MenuItemID string `json:"menuItemId"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unitPrice"`
	LineTotal  int64  `json:"lineTotal"`
	AddedAt    string `json:"addedAt,omitempty"`
}

type cartPayload struct {
	UserID   string            `json:"userId"`
	Items    []cartItemPayload `json:"items"`
	Subtotal int64             `json:"subtotal"`
}

func buildCartPayload(cart domain.Cart) cartPayload {
	payload := cartPayload{
		UserID:   cart.UserID,
		Items:    make([]cartItemPayload, 0, len(cart.Items)),
		Subtotal: domain.CartSubtotal(cart.Items),
	}
	for _, line := range cart.Items {
		payload.Items = append(payload.Items, cartItemPayload{
			ID:         line.ID,
			MenuItemID: line.MenuItemID,
			Name:       line.Name,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			LineTotal:  line.UnitPrice * int64(line.Quantity),
			AddedAt:    formatTime(line.AddedAt),
		})
	}
	return payload
}

type orderItemPayload struct {
	MenuItemID string `json:"menuItemId"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unitPrice"`
}

type statusHistoryPayload struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type orderPayload struct {
	ID                    string                 `json:"id"`
	UserID                string                 `json:"userId"`
	Items                 []orderItemPayload     `json:"items"`
	TotalAmount           int64                  `json:"totalAmount"`
	Currency              string                 `json:"currency"`
	DeliveryAddress       string                 `json:"deliveryAddress"`
	Phone                 string                 `json:"phone"`
	PaymentID             string                 `json:"paymentId,omitempty"`
	PaymentStatus         string                 `json:"paymentStatus"`
	Status                string                 `json:"status"`
	StatusHistory         []statusHistoryPayload `json:"statusHistory"`
	EstimatedDeliveryTime string                 `json:"estimatedDeliveryTime,omitempty"`
	CreatedAt             string                 `json:"createdAt"`
	UpdatedAt             string                 `json:"updatedAt,omitempty"`
}

type orderListPayload struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

func buildOrderListPayload(page repositories.OrderPage) orderListPayload {
	payload := orderListPayload{
		Orders:        make([]orderPayload, 0, len(page.Orders)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Orders {
		payload.Orders = append(payload.Orders, buildOrderPayload(order))
	}
	return payload
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:                    order.ID,
		UserID:                order.UserID,
		Items:                 make([]orderItemPayload, 0, len(order.Items)),
		TotalAmount:           order.TotalAmount,
		Currency:              order.Currency,
		DeliveryAddress:       order.DeliveryAddress,
		Phone:                 order.Phone,
		PaymentID:             order.PaymentID,
		PaymentStatus:         string(order.PaymentStatus),
		Status:                string(order.Status),
		StatusHistory:         make([]statusHistoryPayload, 0, len(order.StatusHistory)),
		EstimatedDeliveryTime: formatTimePtr(order.EstimatedDeliveryTime),
		CreatedAt:             formatTime(order.CreatedAt),
		UpdatedAt:             formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}
	for _, entry := range order.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, statusHistoryPayload{
			Status:    string(entry.Status),
			Timestamp: formatTime(entry.Timestamp),
		})
	}
	return payload
}
