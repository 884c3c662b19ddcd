// Package auth protects the delivery API with HS256 JWT bearer tokens and
// role based permissions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"social-relay/internal/handler/http/requestid"
	"social-relay/internal/handler/http/respond"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const ctxUser ctxKey = "user"

var (
	// ErrMissingToken is returned when the Authorization header has no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned when a token fails signature or claim checks.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the JWT claims accepted by the API.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// User is the authenticated caller stored in the request context.
type User struct {
	Subject string
	Role    string
}

// UserFromContext returns the caller set by Authz.
func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxUser).(User)
	return u, ok
}

// Authz returns middleware that requires a valid token on every endpoint
// except PublicEndpoints, for all methods. The token's role must permit
// the request's method and path.
func Authz(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublicEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			user, err := ValidateToken(r.Header.Get("Authorization"), secret)
			if err != nil {
				result := resultInvalidToken
				if errors.Is(err, ErrMissingToken) {
					result = resultMissingToken
				}
				recordAuth(result, time.Since(start))
				w.Header().Set("WWW-Authenticate", `Bearer realm="social-relay"`)
				respond.Error(w, http.StatusUnauthorized, fmt.Errorf("unauthorized: %w", err))
				return
			}

			if !checkRolePermission(user.Role, r.Method, r.URL.Path) {
				recordAuth(resultForbidden, time.Since(start))
				slog.Warn("forbidden request",
					slog.String("request_id", requestid.FromContext(r.Context())),
					slog.String("sub", user.Subject),
					slog.String("role", user.Role),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
				respond.Error(w, http.StatusForbidden, errors.New("forbidden"))
				return
			}
			recordAuth(resultAllowed, time.Since(start))

			ctx := context.WithValue(r.Context(), ctxUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ValidateToken checks an Authorization header value and returns the caller.
// The token must be HS256 signed with secret and carry exp, sub and role.
func ValidateToken(header string, secret []byte) (User, error) {
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return User{}, ErrMissingToken
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.Role == "" {
		return User{}, fmt.Errorf("%w: sub and role claims are required", ErrInvalidToken)
	}
	return User{Subject: claims.Subject, Role: claims.Role}, nil
}
