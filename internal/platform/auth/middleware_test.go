package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/foodiehq/api/internal/domain"
)

type stubUserGetter struct {
	getFn func(ctx context.Context, id string) (domain.User, error)
}

func (s *stubUserGetter) GetUser(ctx context.Context, id string) (domain.User, error) {
	return s.getFn(ctx, id)
}

func newTestManager(t *testing.T, now time.Time) *TokenManager {
	t.Helper()
	manager, err := NewTokenManager(TokenManagerConfig{
		Secret: "middleware-secret",
		TTL:    time.Hour,
		Clock:  func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewTokenManager returned error: %v", err)
	}
	return manager
}

func TestRequireAuthInjectsIdentity(t *testing.T) {
	now := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	manager := newTestManager(t, now)
	users := &stubUserGetter{getFn: func(_ context.Context, id string) (domain.User, error) {
		if id != "usr_1" {
			t.Fatalf("unexpected user id %q", id)
		}
		return domain.User{ID: "usr_1", Email: "Jane@Example.com", Role: domain.RoleAdmin}, nil
	}}
	authn := NewAuthenticator(manager, users)

	token, err := manager.Issue("usr_1", "admin")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	var captured *Identity
	handler := authn.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if captured == nil {
		t.Fatal("expected identity in context")
	}
	if captured.UserID != "usr_1" || captured.Email != "jane@example.com" || captured.Role != RoleAdmin {
		t.Fatalf("unexpected identity %+v", captured)
	}
}

func TestRequireAuthMissingHeader(t *testing.T) {
	now := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	authn := NewAuthenticator(newTestManager(t, now), &stubUserGetter{getFn: func(context.Context, string) (domain.User, error) {
		t.Fatal("user getter should not be called")
		return domain.User{}, nil
	}})

	handler := authn.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuthDeletedUser(t *testing.T) {
	now := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	manager := newTestManager(t, now)
	authn := NewAuthenticator(manager, &stubUserGetter{getFn: func(context.Context, string) (domain.User, error) {
		return domain.User{}, errors.New("not found")
	}})

	token, err := manager.Issue("usr_gone", "user")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	handler := authn.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deleted user, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req = req.WithContext(WithIdentity(req.Context(), &Identity{UserID: "usr_1", Role: RoleUser}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user role, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req = req.WithContext(WithIdentity(req.Context(), &Identity{UserID: "usr_2", Role: RoleAdmin}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for admin role, got %d", rec.Code)
	}
}

func TestRequireSuperAdmin(t *testing.T) {
	handler := RequireSuperAdmin("admin@foodie.com")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name     string
		identity *Identity
		want     int
	}{
		{"super admin", &Identity{UserID: "usr_1", Email: "admin@foodie.com", Role: RoleAdmin}, http.StatusNoContent},
		{"plain admin", &Identity{UserID: "usr_2", Email: "other@foodie.com", Role: RoleAdmin}, http.StatusForbidden},
		{"matching email without admin role", &Identity{UserID: "usr_3", Email: "admin@foodie.com", Role: RoleUser}, http.StatusForbidden},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/admin/admins", nil)
		req = req.WithContext(WithIdentity(req.Context(), tc.identity))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, rec.Code)
		}
	}
}
