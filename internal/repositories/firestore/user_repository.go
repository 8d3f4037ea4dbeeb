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

const (
	userCollection       = "users"
	userEmailsCollection = "userEmails"
)

// UserRepository persists user accounts within Firestore. Email uniqueness is
// enforced through a claim document keyed by the normalised email, created in
// the same transaction as the user document.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		base:     pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil),
		provider: provider,
	}, nil
}

// Insert persists a new user and claims their email atomically.
func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	userID := strings.TrimSpace(user.ID)
	email := normaliseEmail(user.Email)
	if userID == "" || email == "" {
		return errors.New("user repository: user id and email are required")
	}

	userRef, err := r.base.DocumentRef(ctx, userID)
	if err != nil {
		return err
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	emailRef := client.Collection(userEmailsCollection).Doc(email)

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(emailRef); err == nil {
			return status.Error(codes.AlreadyExists, "email already registered")
		} else if status.Code(err) != codes.NotFound {
			return err
		}
		if err := tx.Create(emailRef, emailClaimDocument{UserID: userID}); err != nil {
			return err
		}
		return tx.Create(userRef, encodeUser(user))
	})
	return pfirestore.WrapError("users.insert", err)
}

// Update persists changes to an existing user document.
func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	userID := strings.TrimSpace(user.ID)
	if userID == "" {
		return errors.New("user repository: user id is required")
	}
	_, err := r.base.Set(ctx, userID, encodeUser(user))
	return err
}

// FindByID loads a user by document id.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(userID))
	if err != nil {
		return domain.User{}, err
	}
	return decodeUser(doc.ID, doc.Data), nil
}

// FindByEmail loads a user by their normalised email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	email = normaliseEmail(email)
	if email == "" {
		return domain.User{}, pfirestore.WrapError("users.findByEmail", status.Error(codes.NotFound, "email is required"))
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("email", "==", email).Limit(1)
	})
	if err != nil {
		return domain.User{}, err
	}
	if len(docs) == 0 {
		return domain.User{}, pfirestore.WrapError("users.findByEmail", status.Error(codes.NotFound, "user not found"))
	}
	return decodeUser(docs[0].ID, docs[0].Data), nil
}

// ListByRole returns all users with the given role, newest first.
func (r *UserRepository) ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("user repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("role", "==", string(role)).OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, decodeUser(doc.ID, doc.Data))
	}
	return users, nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func encodeUser(user domain.User) userDocument {
	now := time.Now().UTC()
	createdAt := user.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := user.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}
	return userDocument{
		Name:         strings.TrimSpace(user.Name),
		Email:        normaliseEmail(user.Email),
		PasswordHash: user.PasswordHash,
		Phone:        strings.TrimSpace(user.Phone),
		Address:      strings.TrimSpace(user.Address),
		Role:         string(user.Role),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}
}

func decodeUser(id string, doc userDocument) domain.User {
	role := domain.Role(strings.ToLower(strings.TrimSpace(doc.Role)))
	if role == "" {
		role = domain.RoleUser
	}
	return domain.User{
		ID:           id,
		Name:         doc.Name,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		Phone:        doc.Phone,
		Address:      doc.Address,
		Role:         role,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

type userDocument struct {
	Name         string    `firestore:"name"`
	Email        string    `firestore:"email"`
	PasswordHash string    `firestore:"passwordHash"`
	Phone        string    `firestore:"phone,omitempty"`
	Address      string    `firestore:"address,omitempty"`
	Role         string    `firestore:"role"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

type emailClaimDocument struct {
	UserID string `firestore:"userId"`
}

var _ repositories.UserRepository = (*UserRepository)(nil)
