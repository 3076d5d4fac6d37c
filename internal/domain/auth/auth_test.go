package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentity_IsAdmin(t *testing.T) {
	var nilID *Identity
	assert.False(t, nilID.IsAdmin())
	assert.False(t, (&Identity{UserID: "u1"}).IsAdmin())
	assert.True(t, (&Identity{UserID: "u1", Role: RoleAdmin}).IsAdmin())
	assert.True(t, (&Identity{KeyID: "ops", Scopes: []string{"orders:read", ScopeOrdersAdmin}}).IsAdmin())
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, FromContext(ctx))
	assert.Empty(t, UserID(ctx))

	ctx = WithIdentity(ctx, &Identity{UserID: "user-42"})
	assert.Equal(t, "user-42", UserID(ctx))
}
