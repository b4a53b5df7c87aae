package middleware

import (
	"net/http"
	"strings"

	"queuegate/internal/authz"
	"queuegate/internal/httpapi"
	"queuegate/internal/platform/telemetry"
)

// PublicPathFunc reports whether a path is exempt from credential
// resolution (health checks, metrics, login endpoints).
type PublicPathFunc func(path string) bool

// PublicPaths builds a PublicPathFunc from exact paths plus the login
// route pattern /auth/provider/{provider}/token.
func PublicPaths(exact ...string) PublicPathFunc {
	set := make(map[string]struct{}, len(exact))
	for _, p := range exact {
		set[p] = struct{}{}
	}
	return func(path string) bool {
		if _, ok := set[path]; ok {
			return true
		}
		return strings.HasPrefix(path, "/auth/provider/") && strings.HasSuffix(path, "/token")
	}
}

// Auth returns middleware that extracts the inbound credential, resolves
// it to a session, and stores the session in the request context. The
// transport accepts "Authorization: Bearer <token>" and
// "Authorization: ApiKey <secret>"; no header means no credential, which
// only resolves when anonymous access is enabled.
// The metrics parameter is optional; pass nil to skip metric recording.
func Auth(resolver *authz.Resolver, public PublicPathFunc, m *telemetry.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public != nil && public(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			cred, ok := extractCredential(r)
			if !ok {
				httpapi.WriteError(w, http.StatusUnauthorized, "invalid_credential", "malformed authorization header")
				return
			}

			session, err := resolver.Resolve(r.Context(), cred)
			if err != nil {
				if m != nil {
					m.RecordResolution(r.Context(), credentialLabel(cred.Kind), "failure")
				}
				httpapi.WriteDomainError(w, err)
				return
			}

			if m != nil {
				m.RecordResolution(r.Context(), credentialLabel(cred.Kind), "success")
			}
			ctx := httpapi.ContextWithSession(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractCredential parses the Authorization header into a raw
// credential. The second return value is false only for a malformed
// header; an absent header is the none credential.
func extractCredential(r *http.Request) (authz.Credential, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return authz.Credential{Kind: authz.CredentialNone}, true
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return authz.Credential{}, false
	}
	value := strings.TrimSpace(parts[1])

	switch {
	case strings.EqualFold(parts[0], "Bearer"):
		return authz.Credential{Kind: authz.CredentialToken, Value: value}, true
	case strings.EqualFold(parts[0], "ApiKey"):
		return authz.Credential{Kind: authz.CredentialAPIKey, Value: value}, true
	default:
		return authz.Credential{}, false
	}
}

func credentialLabel(kind authz.CredentialKind) string {
	switch kind {
	case authz.CredentialAPIKey:
		return "apikey"
	case authz.CredentialToken:
		return "token"
	default:
		return "none"
	}
}
