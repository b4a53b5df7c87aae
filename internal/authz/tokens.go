package authz

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"queuegate/internal/domain"
)

const tokenClockSkew = 30 * time.Second

// AccessPolicy is the per-user role assignment table from configuration.
// Users absent from the table receive DefaultRoles (which may be empty).
type AccessPolicy struct {
	Users        map[string][]string
	DefaultRoles []string
}

// RolesFor returns the roles assigned to username, in assignment order.
func (p AccessPolicy) RolesFor(username string) []string {
	if roles, ok := p.Users[username]; ok {
		return append([]string(nil), roles...)
	}
	return append([]string(nil), p.DefaultRoles...)
}

// TokenIssuer exchanges verified provider credentials for short-lived
// HS256 bearer tokens bound to a principal. Tokens carry only the
// subject identity; scopes are recomputed live at every validation, so
// role changes propagate without reissuing tokens.
type TokenIssuer struct {
	secret     []byte
	ttl        time.Duration
	providers  map[string]Authenticator
	policy     AccessPolicy
	principals *PrincipalStore
	now        func() time.Time
}

// NewTokenIssuer creates an issuer. If secret is empty a random
// per-process secret is generated, invalidating all tokens on restart.
func NewTokenIssuer(secret []byte, ttl time.Duration, providers map[string]Authenticator, policy AccessPolicy, principals *PrincipalStore) (*TokenIssuer, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generating token secret: %w", err)
		}
	}
	return &TokenIssuer{
		secret:     secret,
		ttl:        ttl,
		providers:  providers,
		policy:     policy,
		principals: principals,
		now:        time.Now,
	}, nil
}

// HasProviders reports whether any identity provider is configured.
// Presence of a provider disables the single-user API key path entirely.
func (ti *TokenIssuer) HasProviders() bool {
	return len(ti.providers) > 0
}

// TTL returns the configured token lifetime.
func (ti *TokenIssuer) TTL() time.Duration {
	return ti.ttl
}

// Login verifies credentials against the named provider and issues a
// token bound to the (lazily created) authenticated principal.
func (ti *TokenIssuer) Login(ctx context.Context, provider, username, password string) (string, domain.Principal, error) {
	auth, ok := ti.providers[provider]
	if !ok {
		return "", domain.Principal{}, domain.ErrProviderNotFound
	}

	verified, err := auth.Verify(ctx, username, password)
	if err != nil {
		return "", domain.Principal{}, err
	}

	roles := ti.policy.RolesFor(verified)
	if len(roles) == 0 {
		// Verification succeeded but configuration grants zero roles:
		// distinct from a verification failure.
		return "", domain.Principal{}, domain.ErrUserNotAuthorized
	}

	principal := ti.principals.LookupOrCreate(verified, provider, roles)

	now := ti.now()
	claims := jwt.MapClaims{
		"sub":      principal.Name,
		"provider": provider,
		"iat":      now.Unix(),
		"exp":      now.Add(ti.ttl).Unix(),
		"iss":      "queuegate",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", domain.Principal{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, principal, nil
}

// Verify parses and validates a bearer token, returning the bound
// username. Any parse, signature or expiry failure is classified as
// ErrCouldNotValidateCredential.
func (ti *TokenIssuer) Verify(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithLeeway(tokenClockSkew),
		jwt.WithTimeFunc(func() time.Time { return ti.now() }),
	)
	if err != nil || !token.Valid {
		return "", domain.ErrCouldNotValidateCredential
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", domain.ErrCouldNotValidateCredential
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", domain.ErrCouldNotValidateCredential
	}
	return sub, nil
}
