// Package app assembles the gateway from configuration: the
// authorization engine, the HTTP surface and the middleware chain.
package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"queuegate/internal/authz"
	"queuegate/internal/domain"
	"queuegate/internal/httpapi"
	"queuegate/internal/httpapi/middleware"
	"queuegate/internal/httpapi/proxy"
	"queuegate/internal/platform/config"
	"queuegate/internal/platform/telemetry"
	"queuegate/internal/ratelimit"
)

const maxBodyBytes = 1 << 20 // 1MB

// App holds the assembled gateway. The component fields are exposed for
// tests that need to drive the engine directly.
type App struct {
	Handler     http.Handler
	Registry    *authz.Registry
	Principals  *authz.PrincipalStore
	Tokens      *authz.TokenIssuer
	Keys        *authz.KeyStore
	Resolver    *authz.Resolver
	RateLimiter *ratelimit.Limiter
}

// New builds the gateway. Configuration errors (unknown scopes in role
// overrides, roles referencing undefined names, bad provider
// descriptors) are returned so the caller can refuse to start rather
// than serve a partially-applied policy.
func New(cfg config.Config, pol config.Policy, m *telemetry.Metrics, logger *slog.Logger) (*App, error) {
	registry := authz.NewRegistry()
	if err := registry.Configure(roleOverrides(pol.APIAccess.Roles)); err != nil {
		return nil, fmt.Errorf("configuring role registry: %w", err)
	}

	policy, err := accessPolicy(pol.APIAccess, registry)
	if err != nil {
		return nil, err
	}

	providers := make(map[string]authz.Authenticator, len(pol.Authentication.Providers))
	for _, p := range pol.Authentication.Providers {
		auth, err := buildAuthenticator(p)
		if err != nil {
			return nil, err
		}
		if _, dup := providers[p.Provider]; dup {
			return nil, fmt.Errorf("duplicate provider %q", p.Provider)
		}
		providers[p.Provider] = auth
	}

	principals := authz.NewPrincipalStore()
	tokens, err := authz.NewTokenIssuer([]byte(cfg.TokenSecret), cfg.TokenTTL, providers, policy, principals)
	if err != nil {
		return nil, err
	}
	keys := authz.NewKeyStore(time.Now)

	singleUserKey := pol.Authentication.SingleUserAPIKey
	if cfg.SingleUserAPIKey != "" {
		singleUserKey = cfg.SingleUserAPIKey
	}
	resolver := authz.NewResolver(registry, principals, tokens, keys,
		singleUserKey, pol.Authentication.AllowAnonymousAccess)

	managerProxy, err := proxy.NewManager(cfg.ManagerURL, m)
	if err != nil {
		return nil, err
	}
	h := httpapi.NewHandlers(tokens, keys, resolver, principals, m)

	rt := mux.NewRouter()
	rt.NotFoundHandler = httpapi.NotFoundHandler()
	rt.Handle("/auth/provider/{provider}/token", http.HandlerFunc(h.Login)).Methods(http.MethodPost)
	rt.Handle("/auth/scopes", http.HandlerFunc(h.Scopes)).Methods(http.MethodGet)
	rt.Handle("/auth/apikey", requireScopes(h.CreateAPIKey, authz.ScopeUserAPIKeys)).Methods(http.MethodPost)
	rt.Handle("/auth/apikey", requireScopes(h.RevokeAPIKey, authz.ScopeUserAPIKeys)).Methods(http.MethodDelete)
	rt.Handle("/auth/apikeys", requireScopes(h.ListAPIKeys, authz.ScopeUserAPIKeys)).Methods(http.MethodGet)
	rt.Handle("/auth/principals", requireScopes(h.ListPrincipals, authz.ScopeAdminReadPrincipals)).Methods(http.MethodGet)
	rt.Handle("/metrics", middleware.RequireScopes(authz.ScopeAdminMetrics)(telemetry.MetricsHandler())).Methods(http.MethodGet)
	rt.PathPrefix("/").Handler(managerProxy)

	limiter := ratelimit.NewLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst, time.Now)
	public := middleware.PublicPaths("/healthz", "/readyz")

	handler := middleware.Chain(
		rt,
		middleware.Metrics(m),
		middleware.RequestID,
		middleware.Logging(logger),
		middleware.Recovery,
		middleware.MaxBodySize(maxBodyBytes),
		middleware.RateLimit(limiter, m),
		middleware.Auth(resolver, public, m),
	)

	return &App{
		Handler:     handler,
		Registry:    registry,
		Principals:  principals,
		Tokens:      tokens,
		Keys:        keys,
		Resolver:    resolver,
		RateLimiter: limiter,
	}, nil
}

func requireScopes(h http.HandlerFunc, scopes ...domain.Scope) http.Handler {
	return middleware.RequireScopes(scopes...)(h)
}

func roleOverrides(in map[string]config.RoleOverride) map[string]authz.Override {
	out := make(map[string]authz.Override, len(in))
	for role, ov := range in {
		out[role] = authz.Override{
			Add:    toScopes(ov.ScopesAdd),
			Remove: toScopes(ov.ScopesRemove),
			Set:    toScopes(ov.ScopesSet),
		}
	}
	return out
}

func toScopes(in []string) []domain.Scope {
	if in == nil {
		return nil
	}
	out := make([]domain.Scope, len(in))
	for i, s := range in {
		out[i] = domain.Scope(s)
	}
	return out
}

// accessPolicy validates that every role the policy assigns actually
// exists in the configured registry.
func accessPolicy(in config.APIAccess, registry *authz.Registry) (authz.AccessPolicy, error) {
	users := make(map[string][]string, len(in.Users))
	for username, ua := range in.Users {
		for _, role := range ua.Roles {
			if !registry.HasRole(role) {
				return authz.AccessPolicy{}, fmt.Errorf("user %q references undefined role %q", username, role)
			}
		}
		users[username] = append([]string(nil), ua.Roles...)
	}
	for _, role := range in.DefaultRoles {
		if !registry.HasRole(role) {
			return authz.AccessPolicy{}, fmt.Errorf("default_roles references undefined role %q", role)
		}
	}
	return authz.AccessPolicy{Users: users, DefaultRoles: in.DefaultRoles}, nil
}

func buildAuthenticator(p config.Provider) (authz.Authenticator, error) {
	switch p.Authenticator {
	case "dictionary":
		if len(p.UsersToPasswords) == 0 {
			return nil, fmt.Errorf("provider %q: dictionary authenticator needs users_to_passwords", p.Provider)
		}
		return authz.NewDictionaryAuthenticator(p.UsersToPasswords), nil
	case "remote":
		if p.URL == "" {
			return nil, fmt.Errorf("provider %q: remote authenticator needs url", p.Provider)
		}
		timeout := 5 * time.Second
		if p.TimeoutSeconds > 0 {
			timeout = time.Duration(p.TimeoutSeconds) * time.Second
		}
		return authz.NewRemoteAuthenticator(p.URL, timeout), nil
	default:
		return nil, fmt.Errorf("provider %q: unknown authenticator %q", p.Provider, p.Authenticator)
	}
}
