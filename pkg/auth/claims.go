// Package auth turns already-issued credentials into a models.Principal.
// It verifies JWT bearer tokens against the identity provider's JWKS and
// accepts owner browser sessions; token issuance happens elsewhere and the
// engine trusts the resulting principal completely.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/personakit/persona-engine/pkg/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// PrincipalKey is the context key for storing the resolved principal.
	PrincipalKey contextKey = "principal"
)

// adminRole is the role claim value that grants admin elevation.
const adminRole = "admin"

// Claims is the JWT claims structure issued by the identity provider.
// Subject carries the username.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// Principal converts validated claims into the engine's principal model.
func (c *Claims) Principal() models.Principal {
	p := models.Principal{Username: c.Subject}
	for _, role := range c.Roles {
		if role == adminRole {
			p.Admin = true
		}
	}
	return p
}

// GetPrincipal retrieves the resolved principal from the request context.
// Returns an anonymous principal and false if none is present.
func GetPrincipal(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(models.Principal)
	if !ok {
		return models.AnonymousPrincipal(), false
	}
	return p, true
}

// SetPrincipal stores the resolved principal in the context.
func SetPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}
