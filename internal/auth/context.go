package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rvaldes/tributario/internal/domain"
)

type contextKey string

const identityKey contextKey = "identity"

// ContextWithIdentity returns a new context carrying the requesting identity.
func ContextWithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext retrieves the requesting identity, if any.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	if ctx == nil {
		return domain.Identity{}, false
	}
	value := ctx.Value(identityKey)
	if value == nil {
		return domain.Identity{}, false
	}
	identity, ok := value.(domain.Identity)
	if !ok || identity.ID == "" {
		return domain.Identity{}, false
	}
	return identity, true
}

// IdentityFromRequest reads the identity headers set by the upstream
// session layer. Authentication itself is a collaborator concern; the
// role string is treated as given input.
func IdentityFromRequest(r *http.Request) (domain.Identity, error) {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	role := strings.TrimSpace(r.Header.Get("X-User-Role"))
	if userID == "" {
		return domain.Identity{}, fmt.Errorf("missing X-User-Id header")
	}
	if role == "" {
		role = string(domain.RoleCliente)
	}
	return domain.Identity{ID: userID, Role: domain.Role(role)}, nil
}
