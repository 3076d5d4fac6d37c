package auth

import (
	"context"
	"slices"
)

// RoleAdmin marks identities allowed to run back-office order actions.
const RoleAdmin = "admin"

// ScopeOrdersAdmin is the API key scope granting back-office order actions.
const ScopeOrdersAdmin = "orders:admin"

// Identity is the authenticated caller of a request. Identities come either
// from a hosted-auth session token (UserID set) or from an admin API key
// (KeyID set).
type Identity struct {
	UserID string
	Email  string
	Role   string
	KeyID  string
	Scopes []string
}

// IsAdmin reports whether the identity may perform admin order actions.
func (i *Identity) IsAdmin() bool {
	if i == nil {
		return false
	}
	return i.Role == RoleAdmin || slices.Contains(i.Scopes, ScopeOrdersAdmin)
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx, or nil for anonymous
// requests.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// UserID returns the hosted-auth user id from ctx, or "" when the request
// is anonymous or authenticated by API key.
func UserID(ctx context.Context) string {
	if id := FromContext(ctx); id != nil {
		return id.UserID
	}
	return ""
}
