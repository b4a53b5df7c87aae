// Package authz implements the authorization engine of the gateway:
// the scope catalog, role registry, principal store, token issuer,
// API key store, credential resolver and authorization guard.
package authz

import "queuegate/internal/domain"

// The scope catalog: every capability token the gateway understands.
const (
	ScopeReadStatus    domain.Scope = "read:status"
	ScopeReadQueue     domain.Scope = "read:queue"
	ScopeReadHistory   domain.Scope = "read:history"
	ScopeReadResources domain.Scope = "read:resources"
	ScopeReadConfig    domain.Scope = "read:config"
	ScopeReadMonitor   domain.Scope = "read:monitor"
	ScopeReadConsole   domain.Scope = "read:console"
	ScopeReadLock      domain.Scope = "read:lock"

	ScopeWriteQueueEdit    domain.Scope = "write:queue:edit"
	ScopeWriteQueueControl domain.Scope = "write:queue:control"
	ScopeWritePlanControl  domain.Scope = "write:plan:control"
	ScopeWriteHistoryEdit  domain.Scope = "write:history:edit"
	ScopeWriteScripts      domain.Scope = "write:scripts"
	ScopeWriteConfig       domain.Scope = "write:config"
	ScopeWriteLock         domain.Scope = "write:lock"
	ScopeWritePermissions  domain.Scope = "write:permissions"

	ScopeUserAPIKeys domain.Scope = "user:apikeys"

	ScopeAdminAPIKeys        domain.Scope = "admin:apikeys"
	ScopeAdminReadPrincipals domain.Scope = "admin:read:principals"
	ScopeAdminMetrics        domain.Scope = "admin:metrics"
)

// catalog is the whitelist of valid scopes, used to fail configuration
// fast on unknown scope names.
var catalog = map[domain.Scope]struct{}{
	ScopeReadStatus:    {},
	ScopeReadQueue:     {},
	ScopeReadHistory:   {},
	ScopeReadResources: {},
	ScopeReadConfig:    {},
	ScopeReadMonitor:   {},
	ScopeReadConsole:   {},
	ScopeReadLock:      {},

	ScopeWriteQueueEdit:    {},
	ScopeWriteQueueControl: {},
	ScopeWritePlanControl:  {},
	ScopeWriteHistoryEdit:  {},
	ScopeWriteScripts:      {},
	ScopeWriteConfig:       {},
	ScopeWriteLock:         {},
	ScopeWritePermissions:  {},

	ScopeUserAPIKeys: {},

	ScopeAdminAPIKeys:        {},
	ScopeAdminReadPrincipals: {},
	ScopeAdminMetrics:        {},
}

// KnownScope reports whether the scope exists in the catalog.
func KnownScope(sc domain.Scope) bool {
	_, ok := catalog[sc]
	return ok
}

// CatalogScopes returns every scope in the catalog, sorted.
func CatalogScopes() []domain.Scope {
	s := make(domain.ScopeSet, len(catalog))
	for sc := range catalog {
		s[sc] = struct{}{}
	}
	return s.Sorted()
}
