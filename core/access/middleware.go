package access

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/carevine/carevine/core/logger"
)

// TokenFromRequest extracts the bearer token from the Authorization
// header. It accepts the token with or without the "Bearer " prefix.
func TokenFromRequest(r *http.Request) string {
	bearer := r.Header.Get("Authorization")
	if len(bearer) == 0 || bearer == "null" {
		return ""
	}
	if len(bearer) >= 8 && strings.EqualFold(bearer[:7], "bearer ") {
		return bearer[7:]
	}
	return bearer
}

// NewMiddleware returns a middleware handler which resolves the acting
// principal from the bearer token and stores it in the request context,
// together with the presented token.
//
// The middleware never rejects a request on its own: public routes must
// remain reachable without a token, and routes that require a principal
// reject in the route binder's wrapper. An invalid token simply yields a
// request without principal.
func NewMiddleware(resolver *Resolver) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if PrincipalFromContext(r.Context()) != nil {
				h.ServeHTTP(w, r)
				return
			}
			token := TokenFromRequest(r)
			if len(token) == 0 {
				h.ServeHTTP(w, r)
				return
			}
			ctx := ContextWithToken(r.Context(), token)
			principal, err := resolver.ResolveFromToken(ctx, token)
			if err == nil {
				ctx, _ = logger.ContextWithLoggerIdentity(ctx, principal.Email)
				ctx = ContextWithPrincipal(ctx, principal)
			} else {
				logger.FromContext(ctx).Debugln("bearer token did not resolve:", err)
			}
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
