package auth

import (
	"context"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims holds the validated identity extracted from a token.
type Claims struct {
	// Subject is the token subject, typically a user or client ID.
	Subject string

	// Issuer is the authority that issued the token.
	Issuer string

	// Audience lists the intended recipients.
	Audience []string

	// ExpiresAt is the token expiration time.
	ExpiresAt time.Time

	// IssuedAt is when the token was issued.
	IssuedAt time.Time

	// Private holds the non-standard claims.
	Private map[string]interface{}
}

// claimsFromToken converts a parsed token into Claims.
func claimsFromToken(token jwt.Token) *Claims {
	return &Claims{
		Subject:   token.Subject(),
		Issuer:    token.Issuer(),
		Audience:  token.Audience(),
		ExpiresAt: token.Expiration(),
		IssuedAt:  token.IssuedAt(),
		Private:   token.PrivateClaims(),
	}
}

// Get returns a private claim by name.
func (c *Claims) Get(name string) (interface{}, bool) {
	value, ok := c.Private[name]
	return value, ok
}

// HasAudience reports whether any of the given audiences appears in
// the token's audience list.
func (c *Claims) HasAudience(audiences ...string) bool {
	for _, want := range audiences {
		for _, have := range c.Audience {
			if want == have {
				return true
			}
		}
	}
	return false
}

type claimsContextKey struct{}

// ContextWithClaims attaches validated claims to the context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the validated claims attached to the
// context, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*Claims)
	return claims, ok
}
