package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/foodiehq/api/internal/domain"
	pfirestore "github.com/foodiehq/api/internal/platform/firestore"
	"github.com/foodiehq/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists carts within Firestore using the user id as the
// document identifier. Mutations run inside a transaction so each cart
// operation is an atomic read-modify-write of the single cart document.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		base:     pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil),
		provider: provider,
	}, nil
}

// GetCart loads the cart for the given user id.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	return decodeCart(doc.ID, doc.Data), nil
}

// SaveCart upserts the whole cart document.
func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		uid = strings.TrimSpace(cart.ID)
	}
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	doc := encodeCart(cart)
	result, err := r.base.Set(ctx, uid, doc)
	if err != nil {
		return domain.Cart{}, err
	}
	saved := decodeCart(uid, doc)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// MutateCart applies fn to the stored cart (an empty cart when none exists)
// inside a transaction and writes the result back. The returned cart reflects
// the committed state.
func (r *CartRepository) MutateCart(ctx context.Context, userID string, fn func(cart *domain.Cart) error) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	if fn == nil {
		return domain.Cart{}, errors.New("cart repository: mutation function is required")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	ref, err := r.base.DocumentRef(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	var mutated domain.Cart
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		cart := domain.Cart{ID: uid, UserID: uid}
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var doc cartDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			cart = decodeCart(uid, doc)
		case status.Code(err) == codes.NotFound:
			// Lazily created on first mutation.
		default:
			return err
		}

		if err := fn(&cart); err != nil {
			return err
		}
		cart.ID = uid
		cart.UserID = uid

		mutated = cart
		return tx.Set(ref, encodeCart(cart))
	})
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.mutate", err)
	}
	return mutated, nil
}

// ClearCart removes every line from the user's cart. Clearing a missing cart
// is a no-op.
func (r *CartRepository) ClearCart(ctx context.Context, userID string) error {
	_, err := r.MutateCart(ctx, userID, func(cart *domain.Cart) error {
		cart.Items = nil
		return nil
	})
	return err
}

func encodeCart(cart domain.Cart) cartDocument {
	now := time.Now().UTC()
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	doc := cartDocument{
		Items:     make([]cartItemDocument, 0, len(cart.Items)),
		Total:     domain.CartSubtotal(cart.Items),
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ID:         item.ID,
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			AddedAt:    item.AddedAt,
		})
	}
	return doc
}

func decodeCart(id string, doc cartDocument) domain.Cart {
	cart := domain.Cart{
		ID:        id,
		UserID:    id,
		Items:     make([]domain.CartItem, 0, len(doc.Items)),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	for _, item := range doc.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:         item.ID,
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			AddedAt:    item.AddedAt,
		})
	}
	return cart
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	Total     int64              `firestore:"total"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ID         string    `firestore:"id"`
	MenuItemID string    `firestore:"menuItemId"`
	Name       string    `firestore:"name"`
	Quantity   int       `firestore:"quantity"`
	UnitPrice  int64     `firestore:"unitPrice"`
	AddedAt    time.Time `firestore:"addedAt"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
