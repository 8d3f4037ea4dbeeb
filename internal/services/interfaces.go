package services

import (
	"context"
	"time"

	domain "github.com/foodiehq/api/internal/domain"
	"github.com/foodiehq/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	User               = domain.User
	Role               = domain.Role
	Category           = domain.Category
	MenuItem           = domain.MenuItem
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	PaymentStatus      = domain.PaymentStatus
	StatusHistoryEntry = domain.StatusHistoryEntry
	SystemHealthReport = domain.SystemHealthReport
)

// AuthService manages account registration, credential checks, and admin provisioning.
type AuthService interface {
	Register(ctx context.Context, cmd RegisterCommand) (AuthSession, error)
	Login(ctx context.Context, cmd LoginCommand) (AuthSession, error)
	GetUser(ctx context.Context, userID string) (User, error)
	CreateAdmin(ctx context.Context, cmd CreateAdminCommand) (User, error)
	ListAdmins(ctx context.Context) ([]User, error)
}

// CatalogService manages menu items and their categories.
type CatalogService interface {
	ListMenu(ctx context.Context, filter MenuFilter) ([]MenuItem, error)
	GetMenuItem(ctx context.Context, itemID string) (MenuItem, error)
	CreateMenuItem(ctx context.Context, cmd UpsertMenuItemCommand) (MenuItem, error)
	UpdateMenuItem(ctx context.Context, cmd UpsertMenuItemCommand) (MenuItem, error)
	DeleteMenuItem(ctx context.Context, itemID string) error
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	UpdateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error
}

// CartService manages per-user cart state. Every mutation is atomic against
// the stored cart.
type CartService interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// OrderService covers order placement, payment callbacks, and lifecycle updates.
type OrderService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
	PlaceDirect(ctx context.Context, cmd DirectOrderCommand) (Order, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error)
	ListMine(ctx context.Context, query ListMyOrdersQuery) (OrderPage, error)
	ListAll(ctx context.Context, filter OrderListFilter) (OrderPage, error)
	GetOrder(ctx context.Context, query GetOrderQuery) (Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	Stats(ctx context.Context) (OrderStats, error)
}

// MediaService issues signed upload URLs for menu imagery and promotes
// finished uploads to their public location.
type MediaService interface {
	CreateMenuImageUpload(ctx context.Context, cmd CreateMenuImageUploadCommand) (MenuImageUploadTicket, error)
	PreviewMenuImageUpload(ctx context.Context, cmd PromoteMenuImageCommand) (MenuImageUploadTicket, error)
	PromoteMenuImage(ctx context.Context, cmd PromoteMenuImageCommand) (MenuItem, error)
}

// MenuImageRef identifies a staged menu image object.
type MenuImageRef struct {
	ItemID   string
	UploadID string
	FileName string
}

// SignedUpload carries the signed URL details a client needs to upload directly.
type SignedUpload struct {
	URL       string
	Method    string
	Headers   map[string]string
	Object    string
	ExpiresAt time.Time
}

// MenuImageStore abstracts the object storage backing menu imagery.
type MenuImageStore interface {
	SignUpload(ctx context.Context, ref MenuImageRef, contentType string) (SignedUpload, error)
	SignDownload(ctx context.Context, ref MenuImageRef) (SignedUpload, error)
	Promote(ctx context.Context, ref MenuImageRef) (string, error)
}

// Repository-level pagination and aggregate types are reused as-is.
type (
	OrderListFilter = repositories.OrderListFilter
	OrderPage       = repositories.OrderPage
	OrderStats      = repositories.OrderStats
)

// Command and DTO definitions ------------------------------------------------

type RegisterCommand struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Address  string
}

type LoginCommand struct {
	Email    string
	Password string
}

// AuthSession pairs an issued token with the authenticated account.
type AuthSession struct {
	Token string
	User  User
}

type CreateAdminCommand struct {
	Name     string
	Email    string
	Password string
	ActorID  string
}

type MenuFilter struct {
	Category      string
	AvailableOnly bool
}

type UpsertMenuItemCommand struct {
	ItemID          string
	Name            string
	Description     string
	Price           int64
	Category        string
	ImageURL        string
	Available       *bool
	PreparationTime int
	ActorID         string
}

type UpsertCategoryCommand struct {
	CategoryID  string
	Name        string
	DisplayName string
	ActorID     string
}

type AddCartItemCommand struct {
	UserID     string
	MenuItemID string
	Quantity   int
}

type UpdateCartItemCommand struct {
	UserID     string
	MenuItemID string
	Quantity   int
}

type RemoveCartItemCommand struct {
	UserID     string
	MenuItemID string
}

type CheckoutCommand struct {
	UserID          string
	DeliveryAddress string
	Phone           string
}

// CheckoutResult carries the provisional order together with the payment
// intent details the client needs to complete the charge.
type CheckoutResult struct {
	Order          Order
	GatewayOrderID string
	Amount         int64
	Currency       string
}

type DirectOrderCommand struct {
	UserID          string
	DeliveryAddress string
	Phone           string
}

type VerifyPaymentCommand struct {
	UserID         string
	GatewayOrderID string
	PaymentID      string
	Signature      string
}

type ListMyOrdersQuery struct {
	UserID    string
	PageSize  int
	PageToken string
}

type GetOrderQuery struct {
	OrderID      string
	ActorID      string
	ActorIsAdmin bool
}

type UpdateOrderStatusCommand struct {
	OrderID string
	Status  OrderStatus
	ActorID string
}

type CreateMenuImageUploadCommand struct {
	ItemID      string
	FileName    string
	ContentType string
	ActorID     string
}

// MenuImageUploadTicket tells the client where and how to upload the image.
type MenuImageUploadTicket struct {
	UploadID  string
	URL       string
	Method    string
	Headers   map[string]string
	Object    string
	ExpiresAt time.Time
}

type PromoteMenuImageCommand struct {
	ItemID   string
	UploadID string
	FileName string
	ActorID  string
}
