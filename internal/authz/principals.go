package authz

import (
	"sort"
	"sync"

	"queuegate/internal/domain"
)

// Anonymous is the implicit principal used when no credential is presented
// and anonymous access is enabled.
var Anonymous = domain.Principal{
	Type:  domain.PrincipalAnonymous,
	Roles: []string{RolePublic},
}

// SingleUser is the implicit principal behind the configured single-user
// API key.
var SingleUser = domain.Principal{
	Type:  domain.PrincipalSingleUser,
	Roles: []string{RoleSingleUser},
}

// PrincipalStore holds authenticated principals for the process lifetime.
// Records are created lazily on first successful login and keyed by
// username. Safe for concurrent use.
type PrincipalStore struct {
	mu    sync.RWMutex
	users map[string]domain.Principal
}

// NewPrincipalStore returns an empty store.
func NewPrincipalStore() *PrincipalStore {
	return &PrincipalStore{users: make(map[string]domain.Principal)}
}

// LookupOrCreate returns the principal for username, creating it with the
// given provider and roles on first login. An existing record wins the
// first-insert race; its roles are refreshed from the caller so later
// policy-driven role changes propagate.
func (s *PrincipalStore) LookupOrCreate(username, provider string, roles []string) domain.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.users[username]
	if !ok {
		p = domain.Principal{
			Name:     username,
			Type:     domain.PrincipalAuthenticated,
			Provider: provider,
		}
	}
	p.Roles = append([]string(nil), roles...)
	s.users[username] = p
	return p
}

// Lookup returns the principal for username, if known.
func (s *PrincipalStore) Lookup(username string) (domain.Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.users[username]
	return p, ok
}

// SetRoles replaces the role assignment of a known principal.
func (s *PrincipalStore) SetRoles(username string, roles []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.users[username]
	if !ok {
		return false
	}
	p.Roles = append([]string(nil), roles...)
	s.users[username] = p
	return true
}

// All returns every known authenticated principal, ordered by username.
func (s *PrincipalStore) All() []domain.Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Principal, 0, len(s.users))
	for _, p := range s.users {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
