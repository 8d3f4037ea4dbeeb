package auth

import (
	"context"
	"strings"
)

// Role constants used throughout the API when checking authorisation boundaries.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity captures the authenticated principal details extracted from a
// bearer token and the backing user record.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// HasRole reports whether the identity carries the requested role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return false
	}
	return strings.EqualFold(i.Role, role)
}

// IsAdmin reports whether the identity belongs to the management tier.
func (i *Identity) IsAdmin() bool {
	return i.HasRole(RoleAdmin)
}

// IsSuperAdmin reports whether the identity is the configured super admin:
// an admin whose email matches the super admin address.
func (i *Identity) IsSuperAdmin(superAdminEmail string) bool {
	if i == nil || !i.IsAdmin() {
		return false
	}
	superAdminEmail = strings.ToLower(strings.TrimSpace(superAdminEmail))
	if superAdminEmail == "" {
		return false
	}
	return strings.EqualFold(i.Email, superAdminEmail)
}

type contextKey string

const identityContextKey contextKey = "github.com/foodiehq/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
