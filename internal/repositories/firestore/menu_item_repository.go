package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/foodiehq/api/internal/domain"
	pfirestore "github.com/foodiehq/api/internal/platform/firestore"
	"github.com/foodiehq/api/internal/repositories"
)

const menuItemCollection = "menuItems"

// MenuItemRepository persists catalog entries within Firestore.
type MenuItemRepository struct {
	base *pfirestore.BaseRepository[menuItemDocument]
}

// NewMenuItemRepository constructs a Firestore-backed menu item repository.
func NewMenuItemRepository(provider *pfirestore.Provider) (*MenuItemRepository, error) {
	if provider == nil {
		return nil, errors.New("menu item repository requires firestore provider")
	}
	return &MenuItemRepository{
		base: pfirestore.NewBaseRepository[menuItemDocument](provider, menuItemCollection, nil, nil),
	}, nil
}

// Insert persists a new menu item.
func (r *MenuItemRepository) Insert(ctx context.Context, item domain.MenuItem) error {
	if r == nil || r.base == nil {
		return errors.New("menu item repository not initialised")
	}
	itemID := strings.TrimSpace(item.ID)
	if itemID == "" {
		return errors.New("menu item repository: item id is required")
	}
	_, err := r.base.Set(ctx, itemID, encodeMenuItem(item))
	return err
}

// Update persists changes to an existing menu item.
func (r *MenuItemRepository) Update(ctx context.Context, item domain.MenuItem) error {
	if r == nil || r.base == nil {
		return errors.New("menu item repository not initialised")
	}
	itemID := strings.TrimSpace(item.ID)
	if itemID == "" {
		return errors.New("menu item repository: item id is required")
	}
	if _, err := r.base.Get(ctx, itemID); err != nil {
		return err
	}
	_, err := r.base.Set(ctx, itemID, encodeMenuItem(item))
	return err
}

// Delete removes the menu item document.
func (r *MenuItemRepository) Delete(ctx context.Context, itemID string) error {
	if r == nil || r.base == nil {
		return errors.New("menu item repository not initialised")
	}
	itemID = strings.TrimSpace(itemID)
	if _, err := r.base.Get(ctx, itemID); err != nil {
		return err
	}
	ref, err := r.base.DocumentRef(ctx, itemID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("menuItems.delete", err)
	}
	return nil
}

// FindByID loads a menu item by document id.
func (r *MenuItemRepository) FindByID(ctx context.Context, itemID string) (domain.MenuItem, error) {
	if r == nil || r.base == nil {
		return domain.MenuItem{}, errors.New("menu item repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(itemID))
	if err != nil {
		return domain.MenuItem{}, err
	}
	return decodeMenuItem(doc.ID, doc.Data), nil
}

// List returns menu items matching the filter, newest first.
func (r *MenuItemRepository) List(ctx context.Context, filter repositories.MenuItemListFilter) ([]domain.MenuItem, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("menu item repository not initialised")
	}
	category := strings.ToLower(strings.TrimSpace(filter.Category))
	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if filter.AvailableOnly {
			query = query.Where("available", "==", true)
		}
		if category != "" {
			query = query.Where("category", "==", category)
		}
		return query.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	items := make([]domain.MenuItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeMenuItem(doc.ID, doc.Data))
	}
	return items, nil
}

// Count returns the number of catalog entries.
func (r *MenuItemRepository) Count(ctx context.Context) (int64, error) {
	if r == nil || r.base == nil {
		return 0, errors.New("menu item repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Select()
	})
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func encodeMenuItem(item domain.MenuItem) menuItemDocument {
	now := time.Now().UTC()
	createdAt := item.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := item.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}
	return menuItemDocument{
		Name:            strings.TrimSpace(item.Name),
		Description:     strings.TrimSpace(item.Description),
		Price:           item.Price,
		Category:        strings.ToLower(strings.TrimSpace(item.Category)),
		ImageURL:        strings.TrimSpace(item.ImageURL),
		Available:       item.Available,
		PreparationTime: item.PreparationTime,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}
}

func decodeMenuItem(id string, doc menuItemDocument) domain.MenuItem {
	return domain.MenuItem{
		ID:              id,
		Name:            doc.Name,
		Description:     doc.Description,
		Price:           doc.Price,
		Category:        doc.Category,
		ImageURL:        doc.ImageURL,
		Available:       doc.Available,
		PreparationTime: doc.PreparationTime,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

type menuItemDocument struct {
	Name            string    `firestore:"name"`
	Description     string    `firestore:"description,omitempty"`
	Price           int64     `firestore:"price"`
	Category        string    `firestore:"category"`
	ImageURL        string    `firestore:"imageUrl,omitempty"`
	Available       bool      `firestore:"available"`
	PreparationTime int       `firestore:"preparationTime,omitempty"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

var _ repositories.MenuItemRepository = (*MenuItemRepository)(nil)
