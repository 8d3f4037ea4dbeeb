package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/foodiehq/api/internal/domain"
	pfirestore "github.com/foodiehq/api/internal/platform/firestore"
	"github.com/foodiehq/api/internal/platform/pagination"
	"github.com/foodiehq/api/internal/repositories"
)

const (
	orderCollection = "orders"

	defaultOrderPageSize = 50
	maxOrderPageSize     = 100
)

// OrderRepository persists placed orders within Firestore.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base: pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil),
	}, nil
}

// Insert persists a new order document.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeOrder(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update persists changes to an existing order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	if _, err := r.base.Get(ctx, orderID); err != nil {
		return err
	}
	_, err := r.base.Set(ctx, orderID, encodeOrder(order))
	return err
}

// FindByID loads an order by document id.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// FindByGatewayOrderID locates the order referencing the given external
// payment intent.
func (r *OrderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	if gatewayOrderID == "" {
		return domain.Order{}, pfirestore.WrapError("orders.findByGatewayOrderId", status.Error(codes.NotFound, "gateway order id is required"))
	}
	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("gatewayOrderId", "==", gatewayOrderID).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.findByGatewayOrderId", status.Error(codes.NotFound, "order not found"))
	}
	return decodeOrder(docs[0].ID, docs[0].Data), nil
}

// List returns one page of orders, newest first, honouring the filter.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (repositories.OrderPage, error) {
	if r == nil || r.base == nil {
		return repositories.OrderPage{}, errors.New("order repository not initialised")
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = defaultOrderPageSize
	}
	if pageSize > maxOrderPageSize {
		pageSize = maxOrderPageSize
	}

	cursor, err := pagination.DecodeToken(filter.PageToken)
	if err != nil {
		return repositories.OrderPage{}, err
	}
	startAfter, err := decodeOrderCursor(cursor)
	if err != nil {
		return repositories.OrderPage{}, err
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			query = query.Where("userId", "==", userID)
		}
		if filter.Status != nil {
			query = query.Where("orderStatus", "==", string(*filter.Status))
		}
		query = query.
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if startAfter != nil {
			query = query.StartAfter(startAfter.createdAt, startAfter.orderID)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return repositories.OrderPage{}, err
	}

	page := repositories.OrderPage{Orders: make([]domain.Order, 0, len(docs))}
	for i, doc := range docs {
		if i == pageSize {
			last := page.Orders[len(page.Orders)-1]
			token, err := pagination.EncodeToken(encodeOrderCursor(last))
			if err != nil {
				return repositories.OrderPage{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Orders = append(page.Orders, decodeOrder(doc.ID, doc.Data))
	}
	return page, nil
}

// Stats scans orders and aggregates the dashboard counters.
func (r *OrderRepository) Stats(ctx context.Context) (repositories.OrderStats, error) {
	if r == nil || r.base == nil {
		return repositories.OrderStats{}, errors.New("order repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Select("orderStatus", "paymentStatus", "totalAmount")
	})
	if err != nil {
		return repositories.OrderStats{}, err
	}

	var stats repositories.OrderStats
	for _, doc := range docs {
		stats.TotalOrders++
		switch domain.OrderStatus(doc.Data.OrderStatus) {
		case domain.OrderStatusPending:
			stats.PendingOrders++
		case domain.OrderStatusDelivered:
			stats.DeliveredOrders++
		}
		if domain.PaymentStatus(doc.Data.PaymentStatus) == domain.PaymentStatusCompleted {
			stats.Revenue += doc.Data.TotalAmount
		}
	}
	return stats, nil
}

type orderCursor struct {
	createdAt time.Time
	orderID   string
}

func encodeOrderCursor(order domain.Order) pagination.Cursor {
	return pagination.Cursor{
		StartAfter: []any{order.CreatedAt.UTC().Format(time.RFC3339Nano), order.ID},
	}
}

func decodeOrderCursor(cursor pagination.Cursor) (*orderCursor, error) {
	if len(cursor.StartAfter) == 0 {
		return nil, nil
	}
	if len(cursor.StartAfter) != 2 {
		return nil, fmt.Errorf("%w: unexpected cursor shape", pagination.ErrInvalidPageToken)
	}
	rawTime, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: bad cursor timestamp", pagination.ErrInvalidPageToken)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	orderID, ok := cursor.StartAfter[1].(string)
	if !ok || strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("%w: bad cursor order id", pagination.ErrInvalidPageToken)
	}
	return &orderCursor{createdAt: createdAt, orderID: orderID}, nil
}

func encodeOrder(order domain.Order) orderDocument {
	now := time.Now().UTC()
	createdAt := order.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := order.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}

	doc := orderDocument{
		UserID:          order.UserID,
		Items:           make([]orderItemDocument, 0, len(order.Items)),
		TotalAmount:     order.TotalAmount,
		Currency:        strings.ToLower(strings.TrimSpace(order.Currency)),
		DeliveryAddress: strings.TrimSpace(order.DeliveryAddress),
		Phone:           strings.TrimSpace(order.Phone),
		PaymentID:       strings.TrimSpace(order.PaymentID),
		PaymentStatus:   string(order.PaymentStatus),
		OrderStatus:     string(order.Status),
		StatusHistory:   make([]statusHistoryDocument, 0, len(order.StatusHistory)),
		GatewayOrderID:  strings.TrimSpace(order.GatewayOrderID),
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}
	for _, entry := range order.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, statusHistoryDocument{
			Status:    string(entry.Status),
			Timestamp: entry.Timestamp,
		})
	}
	if order.EstimatedDeliveryTime != nil {
		eta := order.EstimatedDeliveryTime.UTC()
		doc.EstimatedDeliveryTime = &eta
	}
	return doc
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:              id,
		UserID:          doc.UserID,
		Items:           make([]domain.OrderItem, 0, len(doc.Items)),
		TotalAmount:     doc.TotalAmount,
		Currency:        doc.Currency,
		DeliveryAddress: doc.DeliveryAddress,
		Phone:           doc.Phone,
		PaymentID:       doc.PaymentID,
		PaymentStatus:   domain.PaymentStatus(doc.PaymentStatus),
		Status:          domain.OrderStatus(doc.OrderStatus),
		StatusHistory:   make([]domain.StatusHistoryEntry, 0, len(doc.StatusHistory)),
		GatewayOrderID:  doc.GatewayOrderID,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderItem{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}
	for _, entry := range doc.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
			Status:    domain.OrderStatus(entry.Status),
			Timestamp: entry.Timestamp,
		})
	}
	if doc.EstimatedDeliveryTime != nil {
		eta := *doc.EstimatedDeliveryTime
		order.EstimatedDeliveryTime = &eta
	}
	return order
}

type orderDocument struct {
	UserID                string                  `firestore:"userId"`
	Items                 []orderItemDocument     `firestore:"items"`
	TotalAmount           int64                   `firestore:"totalAmount"`
	Currency              string                  `firestore:"currency,omitempty"`
	DeliveryAddress       string                  `firestore:"deliveryAddress"`
	Phone                 string                  `firestore:"phone"`
	PaymentID             string                  `firestore:"paymentId,omitempty"`
	PaymentStatus         string                  `firestore:"paymentStatus"`
	OrderStatus           string                  `firestore:"orderStatus"`
	StatusHistory         []statusHistoryDocument `firestore:"statusHistory"`
	EstimatedDeliveryTime *time.Time              `firestore:"estimatedDeliveryTime,omitempty"`
	GatewayOrderID        string                  `firestore:"gatewayOrderId,omitempty"`
	CreatedAt             time.Time               `firestore:"createdAt"`
	UpdatedAt             time.Time               `firestore:"updatedAt"`
}

type orderItemDocument struct {
	MenuItemID string `firestore:"menuItemId"`
	Name       string `firestore:"name"`
	Quantity   int    `firestore:"quantity"`
	UnitPrice  int64  `firestore:"unitPrice"`
}

type statusHistoryDocument struct {
	Status    string    `firestore:"status"`
	Timestamp time.Time `firestore:"timestamp"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
