package auth

import (
	"context"
	"strings"

	"github.com/shopward/api/internal/domain"
)

// Identity captures the authenticated principal extracted from a Firebase ID
// token. Role is one of the enumerated capability sets; roles are flat, not
// hierarchical, except that admin passes every role gate.
type Identity struct {
	UID   string
	Email string
	Role  domain.Role
}

// Actor converts the identity into the domain actor recorded in audit trails.
func (i *Identity) Actor() domain.Actor {
	if i == nil {
		return domain.Actor{}
	}
	return domain.Actor{ID: i.UID, Email: i.Email, Role: i.Role}
}

// HasRole reports whether the identity satisfies the requested role. Admin
// satisfies every role check.
func (i *Identity) HasRole(role domain.Role) bool {
	if i == nil {
		return false
	}
	if i.Role == domain.RoleAdmin {
		return true
	}
	return i.Role == role
}

// HasAnyRole reports whether the identity satisfies any of the given roles.
func (i *Identity) HasAnyRole(roles ...domain.Role) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

type contextKey string

const identityContextKey contextKey = "github.com/shopward/api/internal/platform/auth/identity"

// WithIdentity stores the identity on the context for downstream handlers.
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

func normaliseRole(raw string) domain.Role {
	role := domain.Role(strings.ToLower(strings.TrimSpace(raw)))
	if domain.ValidRole(role) {
		return role
	}
	return ""
}
