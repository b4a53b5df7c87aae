package authz

import "queuegate/internal/domain"

// Authorize allows the request iff every required scope is in the
// resolved set. There is no partial credit: one missing scope denies the
// whole request with ErrMissingPermission.
func Authorize(resolved domain.ScopeSet, required ...domain.Scope) error {
	if !resolved.ContainsAll(required...) {
		return domain.ErrMissingPermission
	}
	return nil
}
