package authz

import (
	"fmt"
	"sort"

	"queuegate/internal/domain"
)

// Role names with compiled-in default scope sets.
const (
	RoleAdmin    = "admin"
	RoleExpert   = "expert"
	RoleAdvanced = "advanced"
	RoleUser     = "user"
	RoleObserver = "observer"

	// RoleSingleUser is assigned to the implicit principal behind the
	// operator-configured single-user API key.
	RoleSingleUser = "unauthenticated_single_user"
	// RolePublic is assigned to the implicit anonymous principal.
	RolePublic = "unauthenticated_public"
)

var readScopes = []domain.Scope{
	ScopeReadStatus, ScopeReadQueue, ScopeReadHistory, ScopeReadResources,
	ScopeReadConfig, ScopeReadMonitor, ScopeReadConsole, ScopeReadLock,
}

var writeScopes = []domain.Scope{
	ScopeWriteQueueEdit, ScopeWriteQueueControl, ScopeWritePlanControl,
	ScopeWriteHistoryEdit, ScopeWriteScripts, ScopeWriteConfig,
	ScopeWriteLock, ScopeWritePermissions,
}

func defaultRoles() map[string]domain.ScopeSet {
	all := domain.NewScopeSet(CatalogScopes()...)

	expert := domain.NewScopeSet(readScopes...).
		Union(domain.NewScopeSet(writeScopes...))
	expert[ScopeUserAPIKeys] = struct{}{}

	advanced := domain.NewScopeSet(readScopes...)
	for _, sc := range []domain.Scope{
		ScopeWriteQueueEdit, ScopeWriteQueueControl, ScopeWritePlanControl,
		ScopeWriteScripts, ScopeWriteLock, ScopeUserAPIKeys,
	} {
		advanced[sc] = struct{}{}
	}

	user := domain.NewScopeSet(
		ScopeReadStatus, ScopeReadQueue, ScopeReadHistory,
		ScopeReadResources, ScopeReadMonitor, ScopeReadConsole, ScopeReadLock,
		ScopeWriteQueueEdit, ScopeWriteQueueControl, ScopeWritePlanControl,
		ScopeWriteLock, ScopeUserAPIKeys,
	)

	observer := domain.NewScopeSet(readScopes...)

	return map[string]domain.ScopeSet{
		RoleAdmin:      all,
		RoleExpert:     expert,
		RoleAdvanced:   advanced,
		RoleUser:       user,
		RoleObserver:   observer,
		RoleSingleUser: expert.Clone(),
		RolePublic:     domain.NewScopeSet(ScopeReadStatus, ScopeReadQueue, ScopeReadHistory),
	}
}

// Override adjusts one role's default scope set at startup. The result is
// default ∪ Add − Remove; if Set is non-nil that result is discarded and
// Set is used verbatim.
type Override struct {
	Add    []domain.Scope
	Remove []domain.Scope
	Set    []domain.Scope
}

// Registry maps role names to scope sets. It is built from compiled-in
// defaults, optionally reshaped exactly once by Configure, and read-only
// afterwards, so concurrent reads need no locking.
type Registry struct {
	roles      map[string]domain.ScopeSet
	configured bool
}

// NewRegistry returns a registry holding the default roles.
func NewRegistry() *Registry {
	return &Registry{roles: defaultRoles()}
}

// Configure applies per-role overrides. It must be called at most once,
// before the registry serves any traffic. Unknown scope names fail the
// whole configuration; nothing is partially applied in that case because
// validation runs before any mutation. Overrides naming a role absent
// from the defaults define a new role.
func (r *Registry) Configure(overrides map[string]Override) error {
	if r.configured {
		return fmt.Errorf("role registry already configured")
	}
	for role, ov := range overrides {
		for _, list := range [][]domain.Scope{ov.Add, ov.Remove, ov.Set} {
			for _, sc := range list {
				if !KnownScope(sc) {
					return fmt.Errorf("role %q: unknown scope %q", role, sc)
				}
			}
		}
	}
	for role, ov := range overrides {
		if ov.Set != nil {
			r.roles[role] = domain.NewScopeSet(ov.Set...)
			continue
		}
		base, ok := r.roles[role]
		if !ok {
			base = domain.NewScopeSet()
		}
		r.roles[role] = base.
			Union(domain.NewScopeSet(ov.Add...)).
			Difference(domain.NewScopeSet(ov.Remove...))
	}
	r.configured = true
	return nil
}

// Resolve computes the effective scope set for the given role list: the
// union of the scopes of every role. Unknown role names are an error.
func (r *Registry) Resolve(roles []string) (domain.ScopeSet, error) {
	out := domain.NewScopeSet()
	for _, role := range roles {
		scopes, ok := r.roles[role]
		if !ok {
			return nil, fmt.Errorf("unknown role %q", role)
		}
		out = out.Union(scopes)
	}
	return out, nil
}

// HasRole reports whether the role is defined.
func (r *Registry) HasRole(role string) bool {
	_, ok := r.roles[role]
	return ok
}

// RoleNames returns the defined role names, sorted.
func (r *Registry) RoleNames() []string {
	names := make([]string, 0, len(r.roles))
	for name := range r.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
