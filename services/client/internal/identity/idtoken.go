package identity

import (
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"bookfinder/pkg/domain"
)

// idTokenClaims are the claims the client reads from provider ID tokens.
// Signatures are not checked here.
type idTokenClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

func parseIDToken(raw string) (idTokenClaims, error) {
	var claims idTokenClaims
	if strings.TrimSpace(raw) == "" {
		return claims, fmt.Errorf("id token is empty")
	}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return claims, fmt.Errorf("decode id token: %w", err)
	}
	return claims, nil
}

func (c idTokenClaims) user() domain.User {
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	return domain.User{ID: id, Email: c.Email, DisplayName: c.Name}
}

func (c idTokenClaims) expiresAt() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
