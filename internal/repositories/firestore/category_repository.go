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

const categoryCollection = "categories"

// CategoryRepository persists menu categories within Firestore.
type CategoryRepository struct {
	base     *pfirestore.BaseRepository[categoryDocument]
	provider *pfirestore.Provider
}

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository requires firestore provider")
	}
	return &CategoryRepository{
		base:     pfirestore.NewBaseRepository[categoryDocument](provider, categoryCollection, nil, nil),
		provider: provider,
	}, nil
}

// Insert persists a new category, rejecting duplicate slugs.
func (r *CategoryRepository) Insert(ctx context.Context, category domain.Category) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	categoryID := strings.TrimSpace(category.ID)
	name := strings.ToLower(strings.TrimSpace(category.Name))
	if categoryID == "" || name == "" {
		return errors.New("category repository: category id and name are required")
	}

	ref, err := r.base.DocumentRef(ctx, categoryID)
	if err != nil {
		return err
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing := client.Collection(categoryCollection).Where("name", "==", name).Limit(1)
		snaps, err := tx.Documents(existing).GetAll()
		if err != nil {
			return err
		}
		if len(snaps) > 0 {
			return status.Error(codes.AlreadyExists, "category already exists")
		}
		return tx.Create(ref, encodeCategory(category))
	})
	return pfirestore.WrapError("categories.insert", err)
}

// Update persists changes to an existing category.
func (r *CategoryRepository) Update(ctx context.Context, category domain.Category) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	categoryID := strings.TrimSpace(category.ID)
	if categoryID == "" {
		return errors.New("category repository: category id is required")
	}
	// Guard against resurrecting a deleted document.
	if _, err := r.base.Get(ctx, categoryID); err != nil {
		return err
	}
	_, err := r.base.Set(ctx, categoryID, encodeCategory(category))
	return err
}

// Delete removes the category document.
func (r *CategoryRepository) Delete(ctx context.Context, categoryID string) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	ref, err := r.base.DocumentRef(ctx, strings.TrimSpace(categoryID))
	if err != nil {
		return err
	}
	if _, err := r.base.Get(ctx, strings.TrimSpace(categoryID)); err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("categories.delete", err)
	}
	return nil
}

// FindByID loads a category by document id.
func (r *CategoryRepository) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	if r == nil || r.base == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(categoryID))
	if err != nil {
		return domain.Category{}, err
	}
	return decodeCategory(doc.ID, doc.Data), nil
}

// FindByName loads a category by its lowercase slug.
func (r *CategoryRepository) FindByName(ctx context.Context, name string) (domain.Category, error) {
	if r == nil || r.base == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	name = strings.ToLower(strings.TrimSpace(name))
	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("name", "==", name).Limit(1)
	})
	if err != nil {
		return domain.Category{}, err
	}
	if len(docs) == 0 {
		return domain.Category{}, pfirestore.WrapError("categories.findByName", status.Error(codes.NotFound, "category not found"))
	}
	return decodeCategory(docs[0].ID, docs[0].Data), nil
}

// List returns every category. Ordering is applied by the caller.
func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("category repository not initialised")
	}
	docs, err := r.base.Query(ctx, nil)
	if err != nil {
		return nil, err
	}
	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		categories = append(categories, decodeCategory(doc.ID, doc.Data))
	}
	return categories, nil
}

func encodeCategory(category domain.Category) categoryDocument {
	now := time.Now().UTC()
	createdAt := category.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := category.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}
	return categoryDocument{
		Name:        strings.ToLower(strings.TrimSpace(category.Name)),
		DisplayName: strings.TrimSpace(category.DisplayName),
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
}

func decodeCategory(id string, doc categoryDocument) domain.Category {
	return domain.Category{
		ID:          id,
		Name:        doc.Name,
		DisplayName: doc.DisplayName,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

type categoryDocument struct {
	Name        string    `firestore:"name"`
	DisplayName string    `firestore:"displayName"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)
