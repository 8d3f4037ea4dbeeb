package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// Role identifies the access tier granted to a user account.
type Role string

const (
	// RoleUser is the default tier for registered customers.
	RoleUser Role = "user"
	// RoleAdmin grants access to the management surface.
	RoleAdmin Role = "admin"
)

// User represents a registered account.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Phone        string
	Address      string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Category groups menu items for browsing. Name is a lowercase slug unique
// across the catalog; DisplayName is what customers see.
type Category struct {
	ID          string
	Name        string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MenuItem is a purchasable catalog entry. Price is in minor currency units.
type MenuItem struct {
	ID              string
	Name            string
	Description     string
	Price           int64
	Category        string
	ImageURL        string
	Available       bool
	PreparationTime int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Cart holds a customer's pending selection. One cart per user; the document
// id equals the user id.
type Cart struct {
	ID        string
	UserID    string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem stores a single menu item entry within a cart. Name and UnitPrice
// are captured when the line is added so later catalog edits do not reprice
// the cart.
type CartItem struct {
	ID         string
	MenuItemID string
	Name       string
	Quantity   int
	UnitPrice  int64
	AddedAt    time.Time
}

// FindItem returns the cart line referencing the given menu item, if any.
func (c *Cart) FindItem(menuItemID string) (*CartItem, bool) {
	for i := range c.Items {
		if c.Items[i].MenuItemID == menuItemID {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// PaymentStatus tracks the settlement state of an order.
type PaymentStatus string

const (
	// PaymentStatusPending means the gateway charge has not settled yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusCompleted means funds were captured (or paid offline).
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusFailed means the charge was declined or abandoned.
	PaymentStatusFailed PaymentStatus = "failed"
)

// OrderStatus tracks fulfillment progress of an order.
type OrderStatus string

const (
	// OrderStatusPending is the state of a freshly placed order.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed means payment settled and the kitchen accepted it.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPreparing means the kitchen is working on the order.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusOutForDelivery means a courier picked the order up.
	OrderStatusOutForDelivery OrderStatus = "out-for-delivery"
	// OrderStatusDelivered means the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled means the order was called off.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every recognized fulfillment status.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// ValidOrderStatus reports whether s is one of the recognized statuses.
func ValidOrderStatus(s OrderStatus) bool {
	for _, candidate := range OrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// HealthStatus summarises the outcome of a dependency probe.
type HealthStatus string

const (
	// HealthStatusOK indicates the dependency responded inside its deadline.
	HealthStatusOK HealthStatus = "ok"
	// HealthStatusDegraded indicates the dependency responded with an error.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusError indicates the dependency timed out or was cancelled.
	HealthStatusError HealthStatus = "error"
)

// SystemHealthCheck captures an individual dependency probe result.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probe results for readiness checks.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}

// OrderItem is an immutable snapshot of a cart line at placement time.
type OrderItem struct {
	MenuItemID string
	Name       string
	Quantity   int
	UnitPrice  int64
}

// StatusHistoryEntry records one fulfillment status the order passed through.
type StatusHistoryEntry struct {
	Status    OrderStatus
	Timestamp time.Time
}

// Order is a placed purchase. TotalAmount is the cart subtotal in minor
// currency units; the delivery fee charged at the gateway is not stored on
// the order. GatewayOrderID references the external payment intent when the
// order was placed through the gateway.
type Order struct {
	ID                    string
	UserID                string
	Items                 []OrderItem
	TotalAmount           int64
	Currency              string
	DeliveryAddress       string
	Phone                 string
	PaymentID             string
	PaymentStatus         PaymentStatus
	Status                OrderStatus
	StatusHistory         []StatusHistoryEntry
	EstimatedDeliveryTime *time.Time
	GatewayOrderID        string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
