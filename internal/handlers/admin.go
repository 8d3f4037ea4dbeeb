package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/foodiehq/api/internal/domain"
	"github.com/foodiehq/api/internal/platform/auth"
	"github.com/foodiehq/api/internal/platform/httpx"
	"github.com/foodiehq/api/internal/platform/pagination"
	"github.com/foodiehq/api/internal/services"
)

const maxAdminBodySize = 32 * 1024

// AdminHandlers exposes the management endpoints: order oversight, catalog
// curation, and super-admin account provisioning.
type AdminHandlers struct {
	authn           *auth.Authenticator
	accounts        services.AuthService
	catalog         services.CatalogService
	orders          services.OrderService
	media           services.MediaService
	superAdminEmail string
}

// AdminHandlersConfig bundles constructor inputs for the admin handlers.
type AdminHandlersConfig struct {
	Authenticator *auth.Authenticator
	Accounts      services.AuthService
	Catalog       services.CatalogService
	Orders        services.OrderService
	// Media is optional; image endpoints answer 503 when unset.
	Media services.MediaService
	// SuperAdminEmail gates the account-provisioning and category routes.
	SuperAdminEmail string
}

// NewAdminHandlers constructs handlers for the /admin route group.
func NewAdminHandlers(cfg AdminHandlersConfig) *AdminHandlers {
	return &AdminHandlers{
		authn:           cfg.Authenticator,
		accounts:        cfg.Accounts,
		catalog:         cfg.Catalog,
		orders:          cfg.Orders,
		media:           cfg.Media,
		superAdminEmail: cfg.SuperAdminEmail,
	}
}

// Routes wires the /admin endpoints onto the provided router. Every route
// requires an authenticated admin; the provisioning subtree additionally
// requires the configured super admin.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Use(auth.RequireRole(auth.RoleAdmin))

	r.Get("/orders", h.listOrders)
	r.Patch("/orders/{orderID}/status", h.updateOrderStatus)
	r.Get("/stats", h.stats)

	r.Post("/menu", h.createMenuItem)
	r.Put("/menu/{itemID}", h.updateMenuItem)
	r.Delete("/menu/{itemID}", h.deleteMenuItem)
	r.Post("/menu/{itemID}/image-upload", h.createImageUpload)
	r.Get("/menu/{itemID}/image-preview", h.previewImage)
	r.Post("/menu/{itemID}/image", h.promoteImage)

	r.Group(func(super chi.Router) {
		super.Use(auth.RequireSuperAdmin(h.superAdminEmail))
		super.Get("/admins", h.listAdmins)
		super.Post("/admins", h.createAdmin)
		super.Post("/categories", h.createCategory)
		super.Put("/categories/{categoryID}", h.updateCategory)
		super.Delete("/categories/{categoryID}", h.deleteCategory)
	})
}

// Orders ---------------------------------------------------------------------

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		writePageParamsError(w, r, err)
		return
	}

	filter := services.OrderListFilter{
		UserID:    strings.TrimSpace(r.URL.Query().Get("userId")),
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := domain.OrderStatus(strings.ToLower(raw))
		filter.Status = &status
	}

	page, err := h.orders.ListAll(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderListPayload(page))
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req updateOrderStatusRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Status:  domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		ActorID: identity.UserID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type statsResponse struct {
	TotalOrders     int64 `json:"totalOrders"`
	PendingOrders   int64 `json:"pendingOrders"`
	DeliveredOrders int64 `json:"deliveredOrders"`
	Revenue         int64 `json:"revenue"`
}

func (h *AdminHandlers) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	stats, err := h.orders.Stats(ctx)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, statsResponse{
		TotalOrders:     stats.TotalOrders,
		PendingOrders:   stats.PendingOrders,
		DeliveredOrders: stats.DeliveredOrders,
		Revenue:         stats.Revenue,
	})
}

// Menu curation --------------------------------------------------------------

type upsertMenuItemRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Price           int64  `json:"price"`
	Category        string `json:"category"`
	ImageURL        string `json:"imageUrl"`
	Available       *bool  `json:"available"`
	PreparationTime int    `json:"preparationTime"`
}

func (h *AdminHandlers) createMenuItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req upsertMenuItemRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	item, err := h.catalog.CreateMenuItem(ctx, services.UpsertMenuItemCommand{
		Name:            req.Name,
		Description:     req.Description,
		Price:           req.Price,
		Category:        req.Category,
		ImageURL:        req.ImageURL,
		Available:       req.Available,
		PreparationTime: req.PreparationTime,
		ActorID:         identity.UserID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"item": buildMenuItemPayload(item)})
}

func (h *AdminHandlers) updateMenuItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req upsertMenuItemRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	item, err := h.catalog.UpdateMenuItem(ctx, services.UpsertMenuItemCommand{
		ItemID:          chi.URLParam(r, "itemID"),
		Name:            req.Name,
		Description:     req.Description,
		Price:           req.Price,
		Category:        req.Category,
		ImageURL:        req.ImageURL,
		Available:       req.Available,
		PreparationTime: req.PreparationTime,
		ActorID:         identity.UserID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"item": buildMenuItemPayload(item)})
}

func (h *AdminHandlers) deleteMenuItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.catalog.DeleteMenuItem(ctx, chi.URLParam(r, "itemID")); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Menu imagery ---------------------------------------------------------------

type createImageUploadRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

type imageUploadResponse struct {
	UploadID  string            `json:"uploadId"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	Object    string            `json:"object"`
	ExpiresAt string            `json:"expiresAt"`
}

func (h *AdminHandlers) createImageUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.media == nil {
		httpx.WriteError(ctx, w, httpx.NewError("media_service_unavailable", "media service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createImageUploadRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	ticket, err := h.media.CreateMenuImageUpload(ctx, services.CreateMenuImageUploadCommand{
		ItemID:      chi.URLParam(r, "itemID"),
		FileName:    req.FileName,
		ContentType: req.ContentType,
		ActorID:     identity.UserID,
	})
	if err != nil {
		writeMediaError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, imageUploadResponse{
		UploadID:  ticket.UploadID,
		URL:       ticket.URL,
		Method:    ticket.Method,
		Headers:   ticket.Headers,
		Object:    ticket.Object,
		ExpiresAt: formatTime(ticket.ExpiresAt),
	})
}

func (h *AdminHandlers) previewImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.media == nil {
		httpx.WriteError(ctx, w, httpx.NewError("media_service_unavailable", "media service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	ticket, err := h.media.PreviewMenuImageUpload(ctx, services.PromoteMenuImageCommand{
		ItemID:   chi.URLParam(r, "itemID"),
		UploadID: r.URL.Query().Get("uploadId"),
		FileName: r.URL.Query().Get("fileName"),
		ActorID:  identity.UserID,
	})
	if err != nil {
		writeMediaError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, imageUploadResponse{
		UploadID:  ticket.UploadID,
		URL:       ticket.URL,
		Method:    ticket.Method,
		Headers:   ticket.Headers,
		Object:    ticket.Object,
		ExpiresAt: formatTime(ticket.ExpiresAt),
	})
}

type promoteImageRequest struct {
	UploadID string `json:"uploadId"`
	FileName string `json:"fileName"`
}

func (h *AdminHandlers) promoteImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.media == nil {
		httpx.WriteError(ctx, w, httpx.NewError("media_service_unavailable", "media service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req promoteImageRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	item, err := h.media.PromoteMenuImage(ctx, services.PromoteMenuImageCommand{
		ItemID:   chi.URLParam(r, "itemID"),
		UploadID: req.UploadID,
		FileName: req.FileName,
		ActorID:  identity.UserID,
	})
	if err != nil {
		writeMediaError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"item": buildMenuItemPayload(item)})
}

func writeMediaError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrMediaInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid image upload request", http.StatusBadRequest))
	case errors.Is(err, services.ErrMenuItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("menu_item_not_found", "menu item not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("media_unavailable", "media storage is unavailable", http.StatusServiceUnavailable))
	}
}

// Categories (super admin) ---------------------------------------------------

type upsertCategoryRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

func (h *AdminHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req upsertCategoryRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	category, err := h.catalog.CreateCategory(ctx, services.UpsertCategoryCommand{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		ActorID:     identity.UserID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"category": buildCategoryPayload(category)})
}

func (h *AdminHandlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req upsertCategoryRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	category, err := h.catalog.UpdateCategory(ctx, services.UpsertCategoryCommand{
		CategoryID:  chi.URLParam(r, "categoryID"),
		Name:        req.Name,
		DisplayName: req.DisplayName,
		ActorID:     identity.UserID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"category": buildCategoryPayload(category)})
}

func (h *AdminHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.catalog.DeleteCategory(ctx, chi.URLParam(r, "categoryID")); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Admin accounts (super admin) -----------------------------------------------

type createAdminRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AdminHandlers) createAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_service_unavailable", "auth service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createAdminRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	admin, err := h.accounts.CreateAdmin(ctx, services.CreateAdminCommand{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		ActorID:  identity.UserID,
	})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"admin": sanitizedUserPayload(admin)})
}

func (h *AdminHandlers) listAdmins(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_service_unavailable", "auth service is unavailable", http.StatusServiceUnavailable))
		return
	}

	admins, err := h.accounts.ListAdmins(ctx)
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}

	payload := make([]userPayload, 0, len(admins))
	for _, admin := range admins {
		payload = append(payload, sanitizedUserPayload(admin))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"admins": payload})
}
