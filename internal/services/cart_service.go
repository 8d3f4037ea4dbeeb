package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/foodiehq/api/internal/domain"
	"github.com/foodiehq/api/internal/repositories"
)

const (
	cartItemIDPrefix = "cit_"

	maxCartLineQuantity = 50
)

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartItemNotFound indicates the referenced line is not in the cart.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrMenuItemUnavailable indicates the menu item cannot currently be ordered.
	ErrMenuItemUnavailable = errors.New("cart: menu item unavailable")
	// ErrCartUnavailable indicates the cart backend cannot fulfil the request.
	ErrCartUnavailable = errors.New("cart: unavailable")
)

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Carts       repositories.CartRepository
	MenuItems   repositories.MenuItemRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts     repositories.CartRepository
	menuItems repositories.MenuItemRepository
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.MenuItems == nil {
		return nil, errors.New("cart service: menu item repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		carts:     deps.Carts,
		menuItems: deps.MenuItems,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// GetCart loads the user's cart. Users without a stored cart get an empty one.
func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{ID: uid, UserID: uid}, nil
		}
		return Cart{}, s.translateRepoError(err)
	}
	return cart, nil
}

// AddItem appends a menu item to the cart, merging quantities when the item
// is already present. The line snapshots the item's current name and price.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	menuItemID := strings.TrimSpace(cmd.MenuItemID)
	if uid == "" || menuItemID == "" {
		return Cart{}, ErrCartInvalidInput
	}
	if cmd.Quantity <= 0 || cmd.Quantity > maxCartLineQuantity {
		return Cart{}, ErrCartInvalidInput
	}

	item, err := s.menuItems.FindByID(ctx, menuItemID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, ErrMenuItemUnavailable
		}
		return Cart{}, s.translateRepoError(err)
	}
	if !item.Available {
		return Cart{}, ErrMenuItemUnavailable
	}

	now := s.clock()
	mutated, err := s.carts.MutateCart(ctx, uid, func(cart *domain.Cart) error {
		if line, ok := cart.FindItem(menuItemID); ok {
			quantity := line.Quantity + cmd.Quantity
			if quantity > maxCartLineQuantity {
				return ErrCartInvalidInput
			}
			line.Quantity = quantity
			line.Name = item.Name
			line.UnitPrice = item.Price
			return nil
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ID:         cartItemIDPrefix + s.newID(),
			MenuItemID: item.ID,
			Name:       item.Name,
			Quantity:   cmd.Quantity,
			UnitPrice:  item.Price,
			AddedAt:    now,
		})
		return nil
	})
	if err != nil {
		return Cart{}, s.translateMutationError(err)
	}

	s.logger(ctx, "cart.item_added", map[string]any{"userID": uid, "menuItemID": menuItemID})
	return mutated, nil
}

// UpdateItemQuantity sets the quantity for an existing line. A quantity of
// zero or less removes the line.
func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	menuItemID := strings.TrimSpace(cmd.MenuItemID)
	if uid == "" || menuItemID == "" {
		return Cart{}, ErrCartInvalidInput
	}
	if cmd.Quantity > maxCartLineQuantity {
		return Cart{}, ErrCartInvalidInput
	}

	mutated, err := s.carts.MutateCart(ctx, uid, func(cart *domain.Cart) error {
		if cmd.Quantity <= 0 {
			return removeCartLine(cart, menuItemID)
		}
		line, ok := cart.FindItem(menuItemID)
		if !ok {
			return ErrCartItemNotFound
		}
		line.Quantity = cmd.Quantity
		return nil
	})
	if err != nil {
		return Cart{}, s.translateMutationError(err)
	}

	s.logger(ctx, "cart.item_updated", map[string]any{"userID": uid, "menuItemID": menuItemID})
	return mutated, nil
}

// RemoveItem deletes a line from the cart.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	menuItemID := strings.TrimSpace(cmd.MenuItemID)
	if uid == "" || menuItemID == "" {
		return Cart{}, ErrCartInvalidInput
	}

	mutated, err := s.carts.MutateCart(ctx, uid, func(cart *domain.Cart) error {
		return removeCartLine(cart, menuItemID)
	})
	if err != nil {
		return Cart{}, s.translateMutationError(err)
	}

	s.logger(ctx, "cart.item_removed", map[string]any{"userID": uid, "menuItemID": menuItemID})
	return mutated, nil
}

// ClearCart removes every line from the cart.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return ErrCartInvalidInput
	}
	if err := s.carts.ClearCart(ctx, uid); err != nil {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "cart.cleared", map[string]any{"userID": uid})
	return nil
}

func removeCartLine(cart *domain.Cart, menuItemID string) error {
	for i, line := range cart.Items {
		if line.MenuItemID == menuItemID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			return nil
		}
	}
	return ErrCartItemNotFound
}

// translateMutationError keeps sentinel errors raised inside a mutation
// closure intact while mapping everything else through the repository rules.
func (s *cartService) translateMutationError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCartInvalidInput),
		errors.Is(err, ErrCartItemNotFound),
		errors.Is(err, ErrMenuItemUnavailable):
		return err
	}
	return s.translateRepoError(err)
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrCartItemNotFound
		}
	}
	return ErrCartUnavailable
}
