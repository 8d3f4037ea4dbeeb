package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/foodiehq/api/internal/domain"
	"github.com/foodiehq/api/internal/platform/auth"
	"github.com/foodiehq/api/internal/repositories"
)

const (
	userIDPrefix      = "usr_"
	minPasswordLength = 6
)

var (
	// ErrAuthInvalidInput signals the caller provided invalid registration or login data.
	ErrAuthInvalidInput = errors.New("auth: invalid input")
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("auth: email already registered")
	// ErrInvalidCredentials covers both unknown accounts and wrong passwords.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrUserNotFound indicates the account no longer exists.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrAuthUnavailable indicates the auth backend cannot fulfil the request.
	ErrAuthUnavailable = errors.New("auth: unavailable")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// TokenIssuer mints signed session tokens for authenticated accounts.
type TokenIssuer interface {
	Issue(userID, role string) (string, error)
}

// AuthServiceDeps bundles collaborators required to construct the auth service.
type AuthServiceDeps struct {
	Users       repositories.UserRepository
	Tokens      TokenIssuer
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type authService struct {
	users  repositories.UserRepository
	tokens TokenIssuer
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewAuthService wires dependencies into a concrete AuthService implementation.
func NewAuthService(deps AuthServiceDeps) (AuthService, error) {
	if deps.Users == nil {
		return nil, errors.New("auth service: user repository is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("auth service: token issuer is required")
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

	return &authService{
		users:  deps.Users,
		tokens: deps.Tokens,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Register creates a customer account and opens a session for it.
func (s *authService) Register(ctx context.Context, cmd RegisterCommand) (AuthSession, error) {
	user, err := s.createUser(ctx, createUserInput{
		Name:     cmd.Name,
		Email:    cmd.Email,
		Password: cmd.Password,
		Phone:    cmd.Phone,
		Address:  cmd.Address,
		Role:     domain.RoleUser,
	})
	if err != nil {
		return AuthSession{}, err
	}

	token, err := s.tokens.Issue(user.ID, string(user.Role))
	if err != nil {
		s.logger(ctx, "auth.token_issue_failed", map[string]any{"userID": user.ID, "error": err.Error()})
		return AuthSession{}, ErrAuthUnavailable
	}

	s.logger(ctx, "auth.registered", map[string]any{"userID": user.ID})
	return AuthSession{Token: token, User: user}, nil
}

// Login verifies credentials and opens a session. Unknown accounts and wrong
// passwords are indistinguishable to the caller.
func (s *authService) Login(ctx context.Context, cmd LoginCommand) (AuthSession, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" || cmd.Password == "" {
		return AuthSession{}, ErrAuthInvalidInput
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if isRepoNotFound(err) {
			return AuthSession{}, ErrInvalidCredentials
		}
		return AuthSession{}, s.translateRepoError(err)
	}

	if err := auth.CheckPassword(user.PasswordHash, cmd.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return AuthSession{}, ErrInvalidCredentials
		}
		return AuthSession{}, ErrAuthUnavailable
	}

	token, err := s.tokens.Issue(user.ID, string(user.Role))
	if err != nil {
		s.logger(ctx, "auth.token_issue_failed", map[string]any{"userID": user.ID, "error": err.Error()})
		return AuthSession{}, ErrAuthUnavailable
	}

	s.logger(ctx, "auth.logged_in", map[string]any{"userID": user.ID})
	return AuthSession{Token: token, User: user}, nil
}

// GetUser loads an account by id.
func (s *authService) GetUser(ctx context.Context, userID string) (User, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return User{}, ErrAuthInvalidInput
	}
	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return User{}, ErrUserNotFound
		}
		return User{}, s.translateRepoError(err)
	}
	return user, nil
}

// CreateAdmin provisions a staff account with the admin role.
func (s *authService) CreateAdmin(ctx context.Context, cmd CreateAdminCommand) (User, error) {
	user, err := s.createUser(ctx, createUserInput{
		Name:     cmd.Name,
		Email:    cmd.Email,
		Password: cmd.Password,
		Role:     domain.RoleAdmin,
	})
	if err != nil {
		return User{}, err
	}
	s.logger(ctx, "auth.admin_created", map[string]any{"userID": user.ID, "actorID": cmd.ActorID})
	return user, nil
}

// ListAdmins returns every staff account, newest first.
func (s *authService) ListAdmins(ctx context.Context) ([]User, error) {
	admins, err := s.users.ListByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	for i := range admins {
		admins[i].PasswordHash = ""
	}
	return admins, nil
}

type createUserInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Address  string
	Role     domain.Role
}

func (s *authService) createUser(ctx context.Context, input createUserInput) (User, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	phone := strings.TrimSpace(input.Phone)
	address := strings.TrimSpace(input.Address)

	if name == "" || email == "" || !emailPattern.MatchString(email) {
		return User{}, ErrAuthInvalidInput
	}
	if len(input.Password) < minPasswordLength {
		return User{}, ErrAuthInvalidInput
	}
	if input.Role == domain.RoleUser && (phone == "" || address == "") {
		return User{}, ErrAuthInvalidInput
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return User{}, ErrAuthUnavailable
	}

	now := s.clock()
	user := User{
		ID:           userIDPrefix + s.newID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Phone:        phone,
		Address:      address,
		Role:         input.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Insert(ctx, user); err != nil {
		if isRepoConflict(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, s.translateRepoError(err)
	}
	return user, nil
}

func (s *authService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrUserNotFound
		case repoErr.IsConflict():
			return ErrEmailTaken
		}
	}
	return ErrAuthUnavailable
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsConflict()
	}
	return false
}
