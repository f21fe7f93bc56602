/**
 * @description
 * Session authentication middleware. Requests to protected routes carry the
 * application-issued session token in the x-auth header; the middleware
 * resolves it to a principal (signature verification plus a lookup against
 * the principal's current stored token) and injects the principal into the
 * request context.
 *
 * @dependencies
 * - context, net/http: Standard Go libraries.
 * - internal/app, internal/domain: Session resolution and the principal model.
 */

package api

import (
	"context"
	"log"
	"net/http"

	"github.com/truestack/aggregator-service/internal/app"
	"github.com/truestack/aggregator-service/internal/domain"
)

// SessionTokenHeader carries the session token on requests and the possibly
// rotated token on successful responses.
const SessionTokenHeader = "x-auth"

type contextKey string

const principalContextKey contextKey = "principal"

// SessionAuthMiddleware resolves the x-auth header to a principal. A missing
// or unresolvable token fails the request with 401; an old token that was
// rotated out by a refresh no longer resolves.
func SessionAuthMiddleware(service *app.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionToken := r.Header.Get(SessionTokenHeader)
			if sessionToken == "" {
				log.Printf("level=warn component=auth msg=\"session token not sent in header\" path=%s", r.URL.Path)
				writeJSON(w, http.StatusUnauthorized, newErrorPayload(http.StatusUnauthorized, CodeAuthenticationFailure))
				return
			}

			principal, err := service.Authenticate(r.Context(), sessionToken)
			if err != nil {
				log.Printf("level=warn component=auth msg=\"session token did not resolve\" path=%s err=%v", r.URL.Path, err)
				writeJSON(w, http.StatusUnauthorized, newErrorPayload(http.StatusUnauthorized, CodeAuthenticationFailure))
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext retrieves the authenticated principal placed in the
// context by SessionAuthMiddleware.
func PrincipalFromContext(ctx context.Context) (*domain.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(*domain.Principal)
	return principal, ok
}
