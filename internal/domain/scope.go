package domain

import "sort"

// Scope represents an authorization capability token (e.g. "read:queue",
// "admin:apikeys"). Scopes are namespaced by convention: read:, write:,
// user:, admin:.
type Scope string

// ScopeSet is an unordered, deduplicated set of scopes.
type ScopeSet map[Scope]struct{}

// NewScopeSet builds a set from the given scopes.
func NewScopeSet(scopes ...Scope) ScopeSet {
	s := make(ScopeSet, len(scopes))
	for _, sc := range scopes {
		s[sc] = struct{}{}
	}
	return s
}

// Contains reports whether the set includes the scope.
func (s ScopeSet) Contains(sc Scope) bool {
	_, ok := s[sc]
	return ok
}

// ContainsAll reports whether every given scope is in the set.
func (s ScopeSet) ContainsAll(scopes ...Scope) bool {
	for _, sc := range scopes {
		if !s.Contains(sc) {
			return false
		}
	}
	return true
}

// IsSubsetOf reports whether every scope in s is also in other.
func (s ScopeSet) IsSubsetOf(other ScopeSet) bool {
	for sc := range s {
		if !other.Contains(sc) {
			return false
		}
	}
	return true
}

// Union returns a new set containing the scopes of both sets.
func (s ScopeSet) Union(other ScopeSet) ScopeSet {
	out := make(ScopeSet, len(s)+len(other))
	for sc := range s {
		out[sc] = struct{}{}
	}
	for sc := range other {
		out[sc] = struct{}{}
	}
	return out
}

// Difference returns a new set with the scopes of other removed.
func (s ScopeSet) Difference(other ScopeSet) ScopeSet {
	out := make(ScopeSet, len(s))
	for sc := range s {
		if !other.Contains(sc) {
			out[sc] = struct{}{}
		}
	}
	return out
}

// Clone returns an independent copy of the set.
func (s ScopeSet) Clone() ScopeSet {
	out := make(ScopeSet, len(s))
	for sc := range s {
		out[sc] = struct{}{}
	}
	return out
}

// Sorted returns the scopes as a sorted slice, for stable JSON output.
func (s ScopeSet) Sorted() []Scope {
	out := make([]Scope, 0, len(s))
	for sc := range s {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the scopes as a sorted string slice.
func (s ScopeSet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, sc := range sorted {
		out[i] = string(sc)
	}
	return out
}
