package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/security-onion-solutions/shallot/internal/domain"
)

// ErrInvalidToken covers every parse/verification failure so callers can
// answer 401 without leaking the cause.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the verified content of an access token.
type Claims struct {
	Username    string
	IsSuperuser bool
	ExpiresAt   time.Time
}

// TokenManager issues and verifies the web API's HS256 access tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager creates a manager with the given signing secret and
// token lifetime.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// TTL returns the configured token lifetime.
func (t *TokenManager) TTL() time.Duration { return t.ttl }

// Generate issues a signed JWT for the given web user.
func (t *TokenManager) Generate(user domain.WebUser) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":          user.Username,
		"is_superuser": user.IsSuperuser,
		"iat":          now.Unix(),
		"exp":          now.Add(t.ttl).Unix(),
		"jti":          uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token string and returns its claims. Expired, malformed
// or wrongly-signed tokens all return ErrInvalidToken.
func (t *TokenManager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, _ := mapClaims["sub"].(string)
	if sub == "" {
		return nil, ErrInvalidToken
	}
	isSuper, _ := mapClaims["is_superuser"].(bool)

	claims := &Claims{Username: sub, IsSuperuser: isSuper}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}
