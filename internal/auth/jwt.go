// Package auth issues and checks the bearer tokens chat adapters present to
// the command gateway.
package auth

import (
	"fmt"
	"time"

	"corridor-server/internal/shared/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Role string

const (
	RoleService Role = "service"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleService || r == RoleAdmin
}

type Claims struct {
	Role    Role   `json:"role"`
	Adapter string `json:"adapter"`
	jwt.RegisteredClaims
}

func secret(cfg config.AuthConfig) ([]byte, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but not set")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters long for security")
	}
	return []byte(cfg.JWTSecret), nil
}

// GenerateJWT mints a token for the named adapter. A zero ttl falls back to
// the configured expiration.
func GenerateJWT(cfg config.AuthConfig, adapter string, role Role, ttl time.Duration) (string, error) {
	key, err := secret(cfg)
	if err != nil {
		return "", fmt.Errorf("cannot generate JWT: %w", err)
	}
	if !role.Valid() {
		return "", fmt.Errorf("cannot generate JWT: unknown role %q", role)
	}
	if ttl <= 0 {
		ttl = cfg.TokenExpiration
	}

	now := time.Now()
	claims := Claims{
		Role:    role,
		Adapter: adapter,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    cfg.Issuer,
			Subject:   fmt.Sprintf("adapter_%s", adapter),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

func ValidateJWT(cfg config.AuthConfig, tokenString string) (*Claims, error) {
	key, err := secret(cfg)
	if err != nil {
		return nil, fmt.Errorf("cannot validate JWT: %w", err)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	}, jwt.WithIssuer(cfg.Issuer), jwt.WithExpirationRequired())

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.Role.Valid() {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}
