package access

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/carevine/carevine/core"
	"github.com/carevine/carevine/core/logger"
)

// serviceTokenNamespace derives stable principal ids for service tokens
var serviceTokenNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// NewServiceTokenMiddleware returns a middleware handler which accepts
// HS256 signed JWTs for operators and automation. Opaque user tokens do
// not look like JWTs and pass through untouched.
//
// A valid service token injects a synthetic principal derived from the
// token subject. An invalid JWT is rejected loudly with 401; a silently
// ignored bad service token would only surface as a confusing 401 further
// down the chain.
func NewServiceTokenMiddleware(secret []byte, issuer string) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if PrincipalFromContext(r.Context()) != nil {
				h.ServeHTTP(w, r)
				return
			}
			tokenString := TokenFromRequest(r)
			if strings.Count(tokenString, ".") != 2 {
				h.ServeHTTP(w, r) // not a JWT, leave it to the bearer middleware
				return
			}
			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid || claims.Issuer != issuer {
				logger.FromContext(r.Context()).Warningln("rejected service token:", err)
				core.WriteEnvelope(w, http.StatusUnauthorized, core.Failure("invalid token"))
				return
			}
			principal := &Principal{
				UserID: uuid.NewSHA1(serviceTokenNamespace, []byte(claims.Subject)),
				Name:   claims.Subject,
				Email:  claims.Subject,
			}
			ctx, _ := logger.ContextWithLoggerIdentity(r.Context(), claims.Subject)
			ctx = ContextWithPrincipal(ctx, principal)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MintServiceToken creates a HS256 signed service token for the subject,
// valid for the given duration. Used by operational tooling and tests.
func MintServiceToken(secret []byte, issuer, subject string, validity time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
