package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const analystIDKey contextKey = "analyst_id"

// Middleware returns an HTTP middleware that validates JWT access tokens.
// Extracts the token from the Authorization header (Bearer scheme)
// and stores the analyst ID in the request context.
func Middleware(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, msg := bearerToken(r)
			if msg != "" {
				http.Error(w, `{"error":"`+msg+`"}`, http.StatusUnauthorized)
				return
			}

			claims, err := jwtMgr.ValidateToken(tokenStr)
			if err != nil {
				http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), analystIDKey, claims.AnalystID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing authorization header"
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", "invalid authorization format"
	}
	return parts[1], ""
}

// AnalystIDFromContext extracts the authenticated analyst ID from the request context.
func AnalystIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(analystIDKey).(string)
	return id
}
