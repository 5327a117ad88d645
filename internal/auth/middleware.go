package auth

import (
	"context"
	"errors"
	"net/http"

	"ms-checkin/internal/logger"
)

type contextKey string

const identityKey contextKey = "scanner_identity"

// AccessTokenParam carries the token for clients that cannot set headers (browser EventSource).
const AccessTokenParam = "access_token"

// Middleware rejects requests without a valid bearer token. A nil verifier lets every request through
// unauthenticated.
func Middleware(v Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(v, log, ExtractTokenFromRequest)
}

// StreamMiddleware is Middleware that also accepts the token from the access_token query parameter.
// Mount it only on read-only streaming routes; query strings end up in access logs.
func StreamMiddleware(v Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(v, log, extractTokenFromHeaderOrQuery)
}

func extractTokenFromHeaderOrQuery(r *http.Request) (string, error) {
	if r.Header.Get("Authorization") != "" {
		return ExtractTokenFromRequest(r)
	}
	if token := r.URL.Query().Get(AccessTokenParam); token != "" {
		return token, nil
	}
	return "", errors.New("authorization header or access_token parameter is missing")
}

func authenticate(v Verifier, log *logger.Logger, extract func(*http.Request) (string, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := extract(r)
			if err != nil {
				log.LogSecurity("AUTH_REJECTED", r.URL.Path+": "+err.Error())
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			claims, err := v.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("AUTH_REJECTED", r.URL.Path+": "+err.Error())
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, claims.Identity())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ScannerIdentity returns the display identity of the authenticated caller, or "".
func ScannerIdentity(ctx context.Context) string {
	if id, ok := ctx.Value(identityKey).(string); ok {
		return id
	}
	return ""
}
