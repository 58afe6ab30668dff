package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"corridor-server/internal/auth"
	"corridor-server/internal/shared/config"
	"corridor-server/internal/shared/errors"
	"corridor-server/internal/shared/response"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

// Authenticator checks gateway bearer tokens.
type Authenticator struct {
	cfg config.AuthConfig
}

func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	return &Authenticator{cfg: cfg}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// Require admits requests carrying a valid service or admin token.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := slog.With(
			"middleware", "jwt",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		logger.Debug("Processing JWT authentication")

		token := bearerToken(r)
		if token == "" {
			response.Error(w, r, logger, errors.Unauthorized("authentication required"))
			return
		}

		claims, err := auth.ValidateJWT(a.cfg, token)
		if err != nil {
			logger.Debug("Token rejected", "error", err)
			response.Error(w, r, logger, errors.Unauthorized("invalid token"))
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		logger.Debug("JWT authentication successful",
			"adapter", claims.Adapter,
			"role", claims.Role)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetClaimsFromContext(r *http.Request) *auth.Claims {
	if claims, ok := r.Context().Value(ClaimsContextKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}
