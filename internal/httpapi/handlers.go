package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"queuegate/internal/authz"
	"queuegate/internal/domain"
	"queuegate/internal/platform/telemetry"
)

// Handlers implements the authentication and key-management endpoints.
type Handlers struct {
	tokens     *authz.TokenIssuer
	keys       *authz.KeyStore
	resolver   *authz.Resolver
	principals *authz.PrincipalStore
	metrics    *telemetry.Metrics // optional; nil skips recording
}

// NewHandlers wires the endpoint handlers.
func NewHandlers(tokens *authz.TokenIssuer, keys *authz.KeyStore, resolver *authz.Resolver, principals *authz.PrincipalStore, m *telemetry.Metrics) *Handlers {
	return &Handlers{
		tokens:     tokens,
		keys:       keys,
		resolver:   resolver,
		principals: principals,
		metrics:    m,
	}
}

// Login handles POST /auth/provider/{provider}/token.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	token, _, err := h.tokens.Login(r.Context(), provider, req.Username, req.Password)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordLogin(r.Context(), "failure")
		}
		WriteDomainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordLogin(r.Context(), "success")
	}
	writeJSON(w, domain.TokenPair{
		AccessToken: token,
		ExpiresIn:   int(h.tokens.TTL().Seconds()),
		TokenType:   "Bearer",
	})
}

// Scopes handles GET /auth/scopes: roles in assignment order, scopes as
// a sorted set, both freshly resolved for this request.
func (h *Handlers) Scopes(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrNotEnoughPermissions)
		return
	}

	roles := session.Principal.Roles
	if roles == nil {
		roles = []string{}
	}
	writeJSON(w, map[string]any{
		"roles":  roles,
		"scopes": session.Scopes.Strings(),
	})
}

type apiKeyRequest struct {
	// Scopes is nil when omitted from the body, which requests scope
	// inheritance; an explicit list (even empty) is a fixed restriction.
	Scopes    []string `json:"scopes"`
	ExpiresIn int      `json:"expires_in"`
	Note      string   `json:"note"`
}

type apiKeyResponse struct {
	Secret    string    `json:"secret"`
	Note      *string   `json:"note"`
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateAPIKey handles POST /auth/apikey (requires user:apikeys).
func (h *Handlers) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrNotEnoughPermissions)
		return
	}

	var req apiKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.ExpiresIn <= 0 {
		WriteError(w, http.StatusBadRequest, "bad_request", "expires_in must be a positive number of seconds")
		return
	}

	var scopes []domain.Scope
	switch {
	case req.Scopes != nil:
		scopes = make([]domain.Scope, len(req.Scopes))
		for i, s := range req.Scopes {
			scopes[i] = domain.Scope(s)
		}
	case session.Key != nil && !session.Key.Inherit:
		// Minting without explicit scopes from an explicit-scope key
		// freezes a copy of that key's resolved scopes rather than
		// inheriting the owner's live set.
		scopes = append([]domain.Scope(nil), session.Key.Scopes...)
	default:
		scopes = nil // inherit
	}

	// The subset invariant is checked against the owner's live effective
	// scopes, so a narrowly-scoped key can mint a key that re-widens up
	// to (but never beyond) the owner's true scopes.
	ownerScopes, err := h.resolver.OwnerScopes(session.Principal)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	key, err := h.keys.Mint(session.Principal, ownerScopes, scopes, time.Duration(req.ExpiresIn)*time.Second, req.Note)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordAPIKeyMint(r.Context(), "failure")
		}
		WriteDomainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordAPIKeyMint(r.Context(), "success")
	}
	slog.Info("API key minted",
		"owner", key.Owner.Name,
		"owner_type", key.Owner.Type.String(),
		"inherit", key.Inherit,
		"expires_at", key.ExpiresAt,
	)
	writeJSON(w, apiKeyResponse{
		Secret:    key.Secret,
		Note:      optionalString(key.Note),
		Scopes:    key.ScopeSpec(),
		ExpiresAt: key.ExpiresAt,
	})
}

// ListAPIKeys handles GET /auth/apikeys (requires user:apikeys). Secrets
// are masked; the full value is only ever returned at mint time.
func (h *Handlers) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrNotEnoughPermissions)
		return
	}

	type keyInfo struct {
		Secret    string    `json:"secret"`
		Note      *string   `json:"note"`
		Scopes    []string  `json:"scopes"`
		CreatedAt time.Time `json:"created_at"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	keys := h.keys.ListByOwner(session.Principal)
	out := make([]keyInfo, len(keys))
	for i, key := range keys {
		out[i] = keyInfo{
			Secret:    maskSecret(key.Secret),
			Note:      optionalString(key.Note),
			Scopes:    key.ScopeSpec(),
			CreatedAt: key.CreatedAt,
			ExpiresAt: key.ExpiresAt,
		}
	}
	writeJSON(w, map[string]any{"api_keys": out})
}

// RevokeAPIKey handles DELETE /auth/apikey (requires user:apikeys). A
// principal may revoke its own keys; admin:apikeys allows revoking any
// key.
func (h *Handlers) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrNotEnoughPermissions)
		return
	}

	secret := r.URL.Query().Get("secret")
	if secret == "" {
		var req struct {
			Secret string `json:"secret"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			secret = req.Secret
		}
	}
	if secret == "" {
		WriteError(w, http.StatusBadRequest, "bad_request", "missing API key secret")
		return
	}

	key, found := h.keys.Lookup(secret)
	if !found {
		WriteError(w, http.StatusNotFound, "not_found", "API key not found")
		return
	}

	ownKey := key.Owner.Name == session.Principal.Name && key.Owner.Type == session.Principal.Type
	if !ownKey {
		if err := authz.Authorize(session.Scopes, authz.ScopeAdminAPIKeys); err != nil {
			WriteDomainError(w, err)
			return
		}
	}

	h.keys.Revoke(secret)
	if h.metrics != nil {
		h.metrics.RecordAPIKeyRevoke(r.Context())
	}
	slog.Info("API key revoked", "owner", key.Owner.Name, "by", session.Principal.Name)
	writeJSON(w, map[string]bool{"success": true})
}

// ListPrincipals handles GET /auth/principals (requires
// admin:read:principals).
func (h *Handlers) ListPrincipals(w http.ResponseWriter, r *http.Request) {
	type principalInfo struct {
		Name     string   `json:"name"`
		Provider string   `json:"provider"`
		Roles    []string `json:"roles"`
	}
	all := h.principals.All()
	out := make([]principalInfo, len(all))
	for i, p := range all {
		out[i] = principalInfo{Name: p.Name, Provider: p.Provider, Roles: p.Roles}
	}
	writeJSON(w, map[string]any{"principals": out})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return secret
	}
	return secret[:8] + "..."
}
