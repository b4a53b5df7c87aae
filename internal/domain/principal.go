package domain

import "time"

// PrincipalType distinguishes the three kinds of resolved identity.
type PrincipalType int

const (
	PrincipalUnknown PrincipalType = iota
	// PrincipalAnonymous is the implicit public identity used when no
	// credential is presented and anonymous access is enabled.
	PrincipalAnonymous
	// PrincipalSingleUser is the implicit identity behind the one
	// operator-configured shared API key.
	PrincipalSingleUser
	// PrincipalAuthenticated is a user verified by an identity provider.
	PrincipalAuthenticated
)

func (pt PrincipalType) String() string {
	switch pt {
	case PrincipalAnonymous:
		return "anonymous"
	case PrincipalSingleUser:
		return "single_user"
	case PrincipalAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Principal represents a resolved identity behind a request.
// Roles are listed in assignment order; the effective scope set is the
// union of the scopes of all assigned roles, computed at resolution time
// by the role registry (never stored here).
type Principal struct {
	Name     string // username for authenticated principals, "" otherwise
	Type     PrincipalType
	Provider string // identity provider that verified the principal
	Roles    []string
}

// APIKey is a long-lived derived credential owned by exactly one principal.
// If Inherit is true the key resolves, at each use, to the owner's current
// effective scope set; otherwise it resolves to exactly Scopes forever.
type APIKey struct {
	Secret    string
	Owner     Principal // identity snapshot; roles are re-resolved live
	Inherit   bool
	Scopes    []Scope // explicit scope list; nil when Inherit
	Note      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the key is past its expiry at the given time.
func (k *APIKey) Expired(now time.Time) bool {
	return !k.ExpiresAt.IsZero() && now.After(k.ExpiresAt)
}

// ScopeSpec returns the wire representation of the key's scope
// specification: the literal ["inherit"] marker, or the explicit list.
func (k *APIKey) ScopeSpec() []string {
	if k.Inherit {
		return []string{"inherit"}
	}
	out := make([]string, len(k.Scopes))
	for i, sc := range k.Scopes {
		out[i] = string(sc)
	}
	return out
}

// TokenPair is the JSON response body for a successful login.
type TokenPair struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}
