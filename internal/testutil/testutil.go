// Package testutil provides helpers for assembling the authorization
// engine and a mock run-queue manager in tests.
package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"queuegate/internal/authz"
)

// Engine bundles a fully wired authorization engine for tests.
type Engine struct {
	Registry   *authz.Registry
	Principals *authz.PrincipalStore
	Tokens     *authz.TokenIssuer
	Keys       *authz.KeyStore
	Resolver   *authz.Resolver
}

// EngineConfig controls NewEngine. The zero value yields an engine with
// no providers, no single-user key and anonymous access disabled.
type EngineConfig struct {
	Providers     map[string]authz.Authenticator
	Policy        authz.AccessPolicy
	Overrides     map[string]authz.Override
	SingleUserKey string
	Anonymous     bool
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// NewEngine wires registry, principal store, token issuer, key store and
// resolver with test defaults.
func NewEngine(t *testing.T, cfg EngineConfig) *Engine {
	t.Helper()

	registry := authz.NewRegistry()
	if cfg.Overrides != nil {
		if err := registry.Configure(cfg.Overrides); err != nil {
			t.Fatalf("configuring registry: %v", err)
		}
	}

	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	principals := authz.NewPrincipalStore()
	tokens, err := authz.NewTokenIssuer(nil, ttl, cfg.Providers, cfg.Policy, principals)
	if err != nil {
		t.Fatalf("creating token issuer: %v", err)
	}
	keys := authz.NewKeyStore(cfg.Clock)
	resolver := authz.NewResolver(registry, principals, tokens, keys, cfg.SingleUserKey, cfg.Anonymous)

	return &Engine{
		Registry:   registry,
		Principals: principals,
		Tokens:     tokens,
		Keys:       keys,
		Resolver:   resolver,
	}
}

// Login runs a provider login and fails the test on error.
func (e *Engine) Login(t *testing.T, provider, username, password string) string {
	t.Helper()
	token, _, err := e.Tokens.Login(context.Background(), provider, username, password)
	if err != nil {
		t.Fatalf("login %s/%s: %v", provider, username, err)
	}
	return token
}

// ResolveToken resolves a bearer token and fails the test on error.
func (e *Engine) ResolveToken(t *testing.T, token string) authz.Session {
	t.Helper()
	session, err := e.Resolver.Resolve(context.Background(), authz.Credential{
		Kind:  authz.CredentialToken,
		Value: token,
	})
	if err != nil {
		t.Fatalf("resolving token: %v", err)
	}
	return session
}

// ResolveKey resolves an API key secret and fails the test on error.
func (e *Engine) ResolveKey(t *testing.T, secret string) authz.Session {
	t.Helper()
	session, err := e.Resolver.Resolve(context.Background(), authz.Credential{
		Kind:  authz.CredentialAPIKey,
		Value: secret,
	})
	if err != nil {
		t.Fatalf("resolving API key: %v", err)
	}
	return session
}

// DictionaryProvider returns a single-provider map backed by the given
// username→password table.
func DictionaryProvider(name string, usersToPasswords map[string]string) map[string]authz.Authenticator {
	return map[string]authz.Authenticator{
		name: authz.NewDictionaryAuthenticator(usersToPasswords),
	}
}

// MockManagerHandler returns an http.Handler that echoes request details
// and the principal headers injected by the gateway.
func MockManagerHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"method":           r.Method,
			"path":             r.URL.Path,
			"principal_name":   r.Header.Get("X-Principal-Name"),
			"principal_type":   r.Header.Get("X-Principal-Type"),
			"principal_roles":  r.Header.Get("X-Principal-Roles"),
			"principal_scopes": r.Header.Get("X-Principal-Scopes"),
			"authorization":    r.Header.Get("Authorization"),
			"request_id":       r.Header.Get("X-Request-ID"),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
}
