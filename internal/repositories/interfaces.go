package repositories

import (
	"context"

	domain "github.com/foodiehq/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserRepository persists user accounts. Email uniqueness is enforced at
// insert time; a duplicate email surfaces as a conflict RepositoryError.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	Update(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error)
}

// CategoryRepository persists menu categories.
type CategoryRepository interface {
	Insert(ctx context.Context, category domain.Category) error
	Update(ctx context.Context, category domain.Category) error
	Delete(ctx context.Context, categoryID string) error
	FindByID(ctx context.Context, categoryID string) (domain.Category, error)
	FindByName(ctx context.Context, name string) (domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
}

// MenuItemListFilter narrows menu item listings.
type MenuItemListFilter struct {
	Category      string
	AvailableOnly bool
}

// MenuItemRepository persists catalog entries.
type MenuItemRepository interface {
	Insert(ctx context.Context, item domain.MenuItem) error
	Update(ctx context.Context, item domain.MenuItem) error
	Delete(ctx context.Context, itemID string) error
	FindByID(ctx context.Context, itemID string) (domain.MenuItem, error)
	List(ctx context.Context, filter MenuItemListFilter) ([]domain.MenuItem, error)
	Count(ctx context.Context) (int64, error)
}

// CartRepository owns cart persistence. Mutations run as single-document
// transactions so concurrent requests cannot interleave partial updates.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	MutateCart(ctx context.Context, userID string, fn func(cart *domain.Cart) error) (domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// OrderListFilter narrows and pages order listings.
type OrderListFilter struct {
	UserID    string
	Status    *domain.OrderStatus
	PageSize  int
	PageToken string
}

// OrderPage is one page of an order listing plus the continuation token.
type OrderPage struct {
	Orders        []domain.Order
	NextPageToken string
}

// OrderStats aggregates order counts and revenue for the admin dashboard.
// Revenue sums the stored totals of orders whose payment completed.
type OrderStats struct {
	TotalOrders     int64
	PendingOrders   int64
	DeliveredOrders int64
	Revenue         int64
}

// OrderRepository persists placed orders.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (OrderPage, error)
	Stats(ctx context.Context) (OrderStats, error)
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
