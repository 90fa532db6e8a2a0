package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/catalogd/registry/internal/api/auth"
)

// Auth authenticates requests using API tokens. Browsers cannot set headers
// on a WebSocket handshake, so the access_token query parameter is accepted
// as a fallback.
func Auth(tokenStore auth.TokenStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.URL.Query().Get("access_token")
			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				token = extractBearerToken(authHeader)
				if token == "" {
					writeAuthError(w, http.StatusUnauthorized, "invalid authorization header format")
					return
				}
			}
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			apiToken, err := tokenStore.ValidateToken(token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := auth.WithAuthContext(r.Context(), apiToken.Context())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Require checks the authenticated caller holds perm on kind. Requests that
// passed no Auth middleware carry no auth context and are rejected.
func Require(authorizer auth.Authorizer, kind string, perm auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, _ := auth.FromContext(r.Context())
			if err := authorizer.Authorize(authCtx, kind, perm); err != nil {
				var forbidden auth.ForbiddenError
				if errors.As(err, &forbidden) {
					writeAuthError(w, http.StatusForbidden, err.Error())
					return
				}
				writeAuthError(w, http.StatusUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireMethod applies Require with the read permission on safe methods
// and the write permission on everything else.
func RequireMethod(authorizer auth.Authorizer, kind string, read, write auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		readH := Require(authorizer, kind, read)(next)
		writeH := Require(authorizer, kind, write)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				readH.ServeHTTP(w, r)
			default:
				writeH.ServeHTTP(w, r)
			}
		})
	}
}

// extractBearerToken extracts the Bearer token from the authorization header
func extractBearerToken(authHeader string) string {
	const bearerPrefix = "Bearer "
	if len(authHeader) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(bearerPrefix):])
}

func writeAuthError(w http.ResponseWriter, code int, msg string) {
	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="registry"`)
	}
	http.Error(w, msg, code)
}
