package authz

import (
	"context"
	"crypto/subtle"

	"queuegate/internal/domain"
)

// CredentialKind identifies how a credential was presented.
type CredentialKind int

const (
	// CredentialNone: the request carried no credential.
	CredentialNone CredentialKind = iota
	// CredentialAPIKey: an API key value (possibly the single-user key).
	CredentialAPIKey
	// CredentialToken: a bearer token string.
	CredentialToken
)

// Credential is a raw credential extracted from a request by the
// transport layer.
type Credential struct {
	Kind  CredentialKind
	Value string
}

// Session is the outcome of a successful resolution: the principal, its
// effective scope set as of this call, and the API key that produced the
// session (nil when the credential was not a stored key).
type Session struct {
	Principal domain.Principal
	Scopes    domain.ScopeSet
	Key       *domain.APIKey
}

// Resolver turns raw credentials into sessions. Scopes are recomputed
// from the role registry on every call; nothing is cached across
// requests.
type Resolver struct {
	registry   *Registry
	principals *PrincipalStore
	tokens     *TokenIssuer
	keys       *KeyStore

	singleUserKey   string
	anonymousAccess bool
}

// NewResolver wires the resolver. singleUserKey may be empty (single-user
// access disabled); it is also unusable whenever any identity provider is
// configured on the token issuer.
func NewResolver(registry *Registry, principals *PrincipalStore, tokens *TokenIssuer, keys *KeyStore, singleUserKey string, anonymousAccess bool) *Resolver {
	return &Resolver{
		registry:        registry,
		principals:      principals,
		tokens:          tokens,
		keys:            keys,
		singleUserKey:   singleUserKey,
		anonymousAccess: anonymousAccess,
	}
}

// Resolve maps a credential to a session or a classified failure.
func (r *Resolver) Resolve(ctx context.Context, cred Credential) (Session, error) {
	switch cred.Kind {
	case CredentialNone:
		return r.resolveAnonymous()
	case CredentialToken:
		return r.resolveToken(cred.Value)
	case CredentialAPIKey:
		return r.resolveAPIKey(cred.Value)
	default:
		return Session{}, domain.ErrInvalidCredential
	}
}

func (r *Resolver) resolveAnonymous() (Session, error) {
	if !r.anonymousAccess {
		return Session{}, domain.ErrNotEnoughPermissions
	}
	scopes, err := r.registry.Resolve(Anonymous.Roles)
	if err != nil {
		return Session{}, err
	}
	return Session{Principal: Anonymous, Scopes: scopes}, nil
}

func (r *Resolver) resolveToken(value string) (Session, error) {
	username, err := r.tokens.Verify(value)
	if err != nil {
		return Session{}, err
	}

	// Re-resolve roles live so role changes apply to still-valid tokens
	// without reissue. A user created lazily here (token outliving the
	// principal record) gets its roles from the access policy.
	principal, ok := r.principals.Lookup(username)
	if !ok {
		principal = r.principals.LookupOrCreate(username, "", r.tokens.policy.RolesFor(username))
	}
	scopes, err := r.registry.Resolve(principal.Roles)
	if err != nil {
		return Session{}, err
	}
	return Session{Principal: principal, Scopes: scopes}, nil
}

func (r *Resolver) resolveAPIKey(value string) (Session, error) {
	// The single-user key is only usable when no identity providers are
	// configured; the two access modes are mutually exclusive.
	if r.singleUserKey != "" && !r.tokens.HasProviders() &&
		subtle.ConstantTimeCompare([]byte(value), []byte(r.singleUserKey)) == 1 {
		scopes, err := r.registry.Resolve(SingleUser.Roles)
		if err != nil {
			return Session{}, err
		}
		return Session{Principal: SingleUser, Scopes: scopes}, nil
	}

	key, ok := r.keys.Lookup(value)
	if !ok {
		return Session{}, domain.ErrInvalidCredential
	}

	owner, ownerScopes, err := r.ownerState(key.Owner)
	if err != nil {
		return Session{}, err
	}

	// Inherit keys track the owner's current scopes; explicit keys are a
	// fixed ceiling. Roles reported are always the owner's, independent
	// of the key's scope restriction.
	scopes := ownerScopes
	if !key.Inherit {
		scopes = domain.NewScopeSet(key.Scopes...)
	}
	return Session{Principal: owner, Scopes: scopes, Key: key}, nil
}

// ownerState returns the owning principal with its current roles and
// live effective scopes.
func (r *Resolver) ownerState(owner domain.Principal) (domain.Principal, domain.ScopeSet, error) {
	if owner.Type == domain.PrincipalAuthenticated {
		if current, ok := r.principals.Lookup(owner.Name); ok {
			owner = current
		}
	}
	scopes, err := r.registry.Resolve(owner.Roles)
	if err != nil {
		return domain.Principal{}, nil, err
	}
	return owner, scopes, nil
}

// OwnerScopes exposes the owner's live effective scope set, used for the
// subset check when minting from a presented key.
func (r *Resolver) OwnerScopes(owner domain.Principal) (domain.ScopeSet, error) {
	_, scopes, err := r.ownerState(owner)
	return scopes, err
}
