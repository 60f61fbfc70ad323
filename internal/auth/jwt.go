package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nitinbetharia/schoolerp/internal/domain"
)

const issuer = "schoolerp"

// Claims is the payload of a session token. The token only points at the
// server-side session; it is worthless once the session is gone.
type Claims struct {
	jwt.RegisteredClaims
	SessionID  string       `json:"sid"`
	TenantCode string       `json:"tc,omitempty"`
	UserID     string       `json:"uid"`
	Role       string       `json:"role"`
	Scope      domain.Scope `json:"scope"`
}

// IssueToken signs a token for the session described by c, valid until
// expiresAt.
func IssueToken(secret string, c Claims, expiresAt time.Time) (string, error) {
	now := time.Now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		ID:        c.SessionID,
		Subject:   c.UserID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth.IssueToken: %w", err)
	}

	return signed, nil
}

// ParseToken verifies tokenString and returns its claims. Errors wrap the
// jwt sentinel that caused them.
func ParseToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("auth.ParseToken: %w", err)
	}

	if claims.SessionID == "" || claims.UserID == "" {
		return nil, fmt.Errorf("auth.ParseToken: %w", jwt.ErrTokenInvalidClaims)
	}

	return claims, nil
}
