package middleware

import (
	"net/http"

	"queuegate/internal/authz"
	"queuegate/internal/domain"
	"queuegate/internal/httpapi"
)

// RequireScopes returns middleware enforcing that the resolved session
// carries every required scope. Must run after Auth in the chain.
func RequireScopes(required ...domain.Scope) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := httpapi.SessionFromContext(r.Context())
			if !ok {
				httpapi.WriteDomainError(w, domain.ErrNotEnoughPermissions)
				return
			}
			if err := authz.Authorize(session.Scopes, required...); err != nil {
				httpapi.WriteDomainError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
