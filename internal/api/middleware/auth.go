package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/auth"
)

// subjectKey is the context key for the authenticated token subject.
type subjectKey struct{}

// TokenAuthorizer verifies a bearer token for a role. Implemented by
// auth.JWTService.
type TokenAuthorizer interface {
	Authorize(token, role string) (*auth.Claims, error)
}

// RequireRole creates middleware that admits only bearer tokens carrying role.
func RequireRole(authorizer TokenAuthorizer, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthProblem(w, r, http.StatusUnauthorized, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if len(authHeader) < len(bearerPrefix) ||
				!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
				writeAuthProblem(w, r, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(authHeader[len(bearerPrefix):])
			if tokenString == "" {
				writeAuthProblem(w, r, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := authorizer.Authorize(tokenString, role)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrForbidden):
					writeAuthProblem(w, r, http.StatusForbidden, role+" role required")
				case errors.Is(err, auth.ErrTokenExpired):
					writeAuthProblem(w, r, http.StatusUnauthorized, "access token has expired")
				case errors.Is(err, auth.ErrInvalidToken):
					writeAuthProblem(w, r, http.StatusUnauthorized, "invalid access token")
				default:
					writeAuthProblem(w, r, http.StatusUnauthorized, "authentication failed")
				}
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeAuthProblem is local to avoid an import cycle with the response package.
func writeAuthProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	traceID := GetRequestID(r.Context())
	var problem *models.Problem
	if status == http.StatusForbidden {
		problem = models.KindForbidden.New(traceID, detail)
	} else {
		problem = models.KindUnauthorized.New(traceID, detail)
		w.Header().Set("WWW-Authenticate", `Bearer realm="saferoute"`)
	}
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetSubject returns the authenticated token subject, or "" when the
// request was not authenticated.
func GetSubject(ctx context.Context) string {
	if s, ok := ctx.Value(subjectKey{}).(string); ok {
		return s
	}
	return ""
}
