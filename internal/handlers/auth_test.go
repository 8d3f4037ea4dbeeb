package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	domain "github.com/foodiehq/api/internal/domain"
	"github.com/foodiehq/api/internal/services"
)

type stubAccountService struct {
	registerFn    func(ctx context.Context, cmd services.RegisterCommand) (services.AuthSession, error)
	loginFn       func(ctx context.Context, cmd services.LoginCommand) (services.AuthSession, error)
	getUserFn     func(ctx context.Context, userID string) (services.User, error)
	createAdminFn func(ctx context.Context, cmd services.CreateAdminCommand) (services.User, error)
	listAdminsFn  func(ctx context.Context) ([]services.User, error)
}

func (s *stubAccountService) Register(ctx context.Context, cmd services.RegisterCommand) (services.AuthSession, error) {
	if s.registerFn == nil {
		return services.AuthSession{}, services.ErrAuthUnavailable
	}
	return s.registerFn(ctx, cmd)
}

func (s *stubAccountService) Login(ctx context.Context, cmd services.LoginCommand) (services.AuthSession, error) {
	if s.loginFn == nil {
		return services.AuthSession{}, services.ErrAuthUnavailable
	}
	return s.loginFn(ctx, cmd)
}

func (s *stubAccountService) GetUser(ctx context.Context, userID string) (services.User, error) {
	if s.getUserFn == nil {
		return services.User{}, services.ErrUserNotFound
	}
	return s.getUserFn(ctx, userID)
}

func (s *stubAccountService) CreateAdmin(ctx context.Context, cmd services.CreateAdminCommand) (services.User, error) {
	if s.createAdminFn == nil {
		return services.User{}, services.ErrAuthUnavailable
	}
	return s.createAdminFn(ctx, cmd)
}

func (s *stubAccountService) ListAdmins(ctx context.Context) ([]services.User, error) {
	if s.listAdminsFn == nil {
		return nil, services.ErrAuthUnavailable
	}
	return s.listAdminsFn(ctx)
}

func newAuthTestRouter(accounts services.AuthService, limit int) http.Handler {
	h := NewAuthHandlers(AuthHandlersConfig{
		Accounts:           accounts,
		RateLimitPerMinute: limit,
	})
	return mountRoutes("/auth", customerIdentity(), h.Routes)
}

func TestAuthRegisterCreatesAccount(t *testing.T) {
	accounts := &stubAccountService{
		registerFn: func(_ context.Context, cmd services.RegisterCommand) (services.AuthSession, error) {
			if cmd.Email != "jane@example.com" {
				t.Fatalf("unexpected email %q", cmd.Email)
			}
			return services.AuthSession{
				Token: "token-1",
				User: domain.User{
					ID:           "usr_1",
					Name:         cmd.Name,
					Email:        cmd.Email,
					PasswordHash: "$2a$10$secret",
					Role:         domain.RoleUser,
					CreatedAt:    time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC),
				},
			}, nil
		},
	}
	router := newAuthTestRouter(accounts, 0)

	rec := doJSON(t, router, http.MethodPost, "/auth/register", map[string]string{
		"name":     "Jane",
		"email":    "jane@example.com",
		"password": "hunter22",
		"phone":    "+911234567890",
		"address":  "42 MG Road",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp sessionResponse
	decodeResponse(t, rec, &resp)
	if resp.Token != "token-1" {
		t.Fatalf("unexpected token %q", resp.Token)
	}
	if resp.User.ID != "usr_1" || resp.User.Role != "user" {
		t.Fatalf("unexpected user payload %+v", resp.User)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Fatal("password hash leaked into response")
	}
}

func TestAuthRegisterRejectsEmptyBody(t *testing.T) {
	router := newAuthTestRouter(&stubAccountService{}, 0)

	rec := doJSON(t, router, http.MethodPost, "/auth/register", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAuthLoginMapsInvalidCredentials(t *testing.T) {
	accounts := &stubAccountService{
		loginFn: func(context.Context, services.LoginCommand) (services.AuthSession, error) {
			return services.AuthSession{}, services.ErrInvalidCredentials
		},
	}
	router := newAuthTestRouter(accounts, 0)

	rec := doJSON(t, router, http.MethodPost, "/auth/login", map[string]string{
		"email":    "jane@example.com",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthLoginRateLimited(t *testing.T) {
	accounts := &stubAccountService{
		loginFn: func(context.Context, services.LoginCommand) (services.AuthSession, error) {
			return services.AuthSession{}, services.ErrInvalidCredentials
		},
	}
	router := newAuthTestRouter(accounts, 2)

	body := map[string]string{"email": "jane@example.com", "password": "wrong"}
	for i := 0; i < 2; i++ {
		if rec := doJSON(t, router, http.MethodPost, "/auth/login", body); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}
	if rec := doJSON(t, router, http.MethodPost, "/auth/login", body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", rec.Code)
	}
}

func TestAuthMeReturnsCurrentUser(t *testing.T) {
	accounts := &stubAccountService{
		getUserFn: func(_ context.Context, userID string) (services.User, error) {
			if userID != "usr_1" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return domain.User{ID: "usr_1", Name: "Jane", Email: "jane@example.com", Role: domain.RoleUser}, nil
		},
	}
	router := newAuthTestRouter(accounts, 0)

	rec := doJSON(t, router, http.MethodGet, "/auth/me", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		User userPayload `json:"user"`
	}
	decodeResponse(t, rec, &resp)
	if resp.User.Email != "jane@example.com" {
		t.Fatalf("unexpected payload %+v", resp.User)
	}
}

func TestAuthMeWithoutIdentity(t *testing.T) {
	h := NewAuthHandlers(AuthHandlersConfig{Accounts: &stubAccountService{}})
	router := mountRoutes("/auth", nil, h.Routes)

	rec := doJSON(t, router, http.MethodGet, "/auth/me", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
