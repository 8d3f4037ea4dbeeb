package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	domain "github.com/foodiehq/api/internal/domain"
	"github.com/foodiehq/api/internal/repositories"
)

const (
	menuItemIDPrefix = "itm_"
	categoryIDPrefix = "cat_"

	maxMenuItemNameLength        = 120
	maxMenuItemDescriptionLength = 2000
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid catalog data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrMenuItemNotFound indicates the menu item could not be located.
	ErrMenuItemNotFound = errors.New("catalog: menu item not found")
	// ErrCategoryNotFound indicates the category could not be located.
	ErrCategoryNotFound = errors.New("catalog: category not found")
	// ErrCategoryExists indicates a category with the same name already exists.
	ErrCategoryExists = errors.New("catalog: category already exists")
	// ErrCatalogUnavailable indicates the catalog backend cannot fulfil the request.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	MenuItems   repositories.MenuItemRepository
	Categories  repositories.CategoryRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	menuItems  repositories.MenuItemRepository
	categories repositories.CategoryRepository
	sanitizer  *bluemonday.Policy
	collator   *collate.Collator
	titler     cases.Caser
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.MenuItems == nil {
		return nil, errors.New("catalog service: menu item repository is required")
	}
	if deps.Categories == nil {
		return nil, errors.New("catalog service: category repository is required")
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

	return &catalogService{
		menuItems:  deps.MenuItems,
		categories: deps.Categories,
		sanitizer:  bluemonday.StrictPolicy(),
		collator:   collate.New(language.English, collate.IgnoreCase),
		titler:     cases.Title(language.English),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// ListMenu returns catalog entries matching the filter, newest first.
func (s *catalogService) ListMenu(ctx context.Context, filter MenuFilter) ([]MenuItem, error) {
	items, err := s.menuItems.List(ctx, repositories.MenuItemListFilter{
		Category:      strings.ToLower(strings.TrimSpace(filter.Category)),
		AvailableOnly: filter.AvailableOnly,
	})
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return items, nil
}

// GetMenuItem loads a single catalog entry.
func (s *catalogService) GetMenuItem(ctx context.Context, itemID string) (MenuItem, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return MenuItem{}, ErrCatalogInvalidInput
	}
	item, err := s.menuItems.FindByID(ctx, itemID)
	if err != nil {
		return MenuItem{}, s.translateRepoError(err)
	}
	return item, nil
}

// CreateMenuItem adds a catalog entry. New items default to available unless
// the command says otherwise.
func (s *catalogService) CreateMenuItem(ctx context.Context, cmd UpsertMenuItemCommand) (MenuItem, error) {
	item, err := s.buildMenuItem(cmd)
	if err != nil {
		return MenuItem{}, err
	}

	now := s.clock()
	item.ID = menuItemIDPrefix + s.newID()
	item.Available = true
	if cmd.Available != nil {
		item.Available = *cmd.Available
	}
	item.CreatedAt = now
	item.UpdatedAt = now

	if err := s.menuItems.Insert(ctx, item); err != nil {
		return MenuItem{}, s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.menu_item_created", map[string]any{"itemID": item.ID, "actorID": cmd.ActorID})
	return item, nil
}

// UpdateMenuItem replaces an existing catalog entry.
func (s *catalogService) UpdateMenuItem(ctx context.Context, cmd UpsertMenuItemCommand) (MenuItem, error) {
	itemID := strings.TrimSpace(cmd.ItemID)
	if itemID == "" {
		return MenuItem{}, ErrCatalogInvalidInput
	}

	existing, err := s.menuItems.FindByID(ctx, itemID)
	if err != nil {
		return MenuItem{}, s.translateRepoError(err)
	}

	item, err := s.buildMenuItem(cmd)
	if err != nil {
		return MenuItem{}, err
	}

	item.ID = existing.ID
	item.Available = existing.Available
	if cmd.Available != nil {
		item.Available = *cmd.Available
	}
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = s.clock()

	if err := s.menuItems.Update(ctx, item); err != nil {
		return MenuItem{}, s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.menu_item_updated", map[string]any{"itemID": item.ID, "actorID": cmd.ActorID})
	return item, nil
}

// DeleteMenuItem removes a catalog entry.
func (s *catalogService) DeleteMenuItem(ctx context.Context, itemID string) error {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return ErrCatalogInvalidInput
	}
	if err := s.menuItems.Delete(ctx, itemID); err != nil {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.menu_item_deleted", map[string]any{"itemID": itemID})
	return nil
}

// ListCategories returns every category sorted by display name using
// locale-aware collation.
func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	sort.SliceStable(categories, func(i, j int) bool {
		return s.collator.CompareString(categorySortKey(categories[i]), categorySortKey(categories[j])) < 0
	})
	return categories, nil
}

// CreateCategory adds a category with a unique lowercase slug.
func (s *catalogService) CreateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	category, err := s.buildCategory(cmd)
	if err != nil {
		return Category{}, err
	}

	now := s.clock()
	category.ID = categoryIDPrefix + s.newID()
	category.CreatedAt = now
	category.UpdatedAt = now

	if err := s.categories.Insert(ctx, category); err != nil {
		if isRepoConflict(err) {
			return Category{}, ErrCategoryExists
		}
		return Category{}, s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.category_created", map[string]any{"categoryID": category.ID, "actorID": cmd.ActorID})
	return category, nil
}

// UpdateCategory replaces an existing category, keeping slugs unique.
func (s *catalogService) UpdateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	categoryID := strings.TrimSpace(cmd.CategoryID)
	if categoryID == "" {
		return Category{}, ErrCatalogInvalidInput
	}

	existing, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		if isRepoNotFound(err) {
			return Category{}, ErrCategoryNotFound
		}
		return Category{}, s.translateRepoError(err)
	}

	category, err := s.buildCategory(cmd)
	if err != nil {
		return Category{}, err
	}

	if category.Name != existing.Name {
		if _, err := s.categories.FindByName(ctx, category.Name); err == nil {
			return Category{}, ErrCategoryExists
		} else if !isRepoNotFound(err) {
			return Category{}, s.translateRepoError(err)
		}
	}

	category.ID = existing.ID
	category.CreatedAt = existing.CreatedAt
	category.UpdatedAt = s.clock()

	if err := s.categories.Update(ctx, category); err != nil {
		return Category{}, s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.category_updated", map[string]any{"categoryID": category.ID, "actorID": cmd.ActorID})
	return category, nil
}

// DeleteCategory removes a category.
func (s *catalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return ErrCatalogInvalidInput
	}
	if err := s.categories.Delete(ctx, categoryID); err != nil {
		if isRepoNotFound(err) {
			return ErrCategoryNotFound
		}
		return s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.category_deleted", map[string]any{"categoryID": categoryID})
	return nil
}

func (s *catalogService) buildMenuItem(cmd UpsertMenuItemCommand) (MenuItem, error) {
	name := strings.TrimSpace(s.sanitizer.Sanitize(cmd.Name))
	description := strings.TrimSpace(s.sanitizer.Sanitize(cmd.Description))
	category := strings.ToLower(strings.TrimSpace(cmd.Category))

	if name == "" || len(name) > maxMenuItemNameLength {
		return MenuItem{}, ErrCatalogInvalidInput
	}
	if len(description) > maxMenuItemDescriptionLength {
		return MenuItem{}, ErrCatalogInvalidInput
	}
	if category == "" || cmd.Price <= 0 || cmd.PreparationTime < 0 {
		return MenuItem{}, ErrCatalogInvalidInput
	}

	return MenuItem{
		Name:            name,
		Description:     description,
		Price:           cmd.Price,
		Category:        category,
		ImageURL:        strings.TrimSpace(cmd.ImageURL),
		PreparationTime: cmd.PreparationTime,
	}, nil
}

func (s *catalogService) buildCategory(cmd UpsertCategoryCommand) (Category, error) {
	name := strings.ToLower(strings.TrimSpace(s.sanitizer.Sanitize(cmd.Name)))
	displayName := strings.TrimSpace(s.sanitizer.Sanitize(cmd.DisplayName))

	if name == "" {
		return Category{}, ErrCatalogInvalidInput
	}
	if displayName == "" {
		displayName = s.titler.String(name)
	}
	return Category{Name: name, DisplayName: displayName}, nil
}

func categorySortKey(category domain.Category) string {
	if strings.TrimSpace(category.DisplayName) != "" {
		return category.DisplayName
	}
	return category.Name
}

func (s *catalogService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrMenuItemNotFound
		case repoErr.IsConflict():
			return ErrCategoryExists
		}
	}
	return ErrCatalogUnavailable
}
