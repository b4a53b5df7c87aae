package domain

import "errors"

// Sentinel errors classifying every engine failure. Each failure is mapped
// to exactly one kind at the point of detection; the transport layer
// translates kinds to HTTP statuses. None of these are retryable as-is.
var (
	// ErrNotEnoughPermissions: no usable credential and anonymous access
	// is disabled.
	ErrNotEnoughPermissions = errors.New("not enough permissions")
	// ErrInvalidCredential: an API key (or the single-user key) was
	// presented but is wrong, unknown, revoked or expired.
	ErrInvalidCredential = errors.New("invalid API key")
	// ErrCouldNotValidateCredential: a bearer token is malformed,
	// unsigned or expired.
	ErrCouldNotValidateCredential = errors.New("could not validate credentials")
	// ErrIncorrectCredentials: provider login failed. Unknown user and
	// wrong password are deliberately merged to avoid username
	// enumeration.
	ErrIncorrectCredentials = errors.New("incorrect username or password")
	// ErrUserNotAuthorized: provider login verified the user but the
	// resolved principal has zero roles.
	ErrUserNotAuthorized = errors.New("user is not authorized to access the server")
	// ErrScopeExceedsAllowed: a key-mint request asked for scopes outside
	// the owner's live effective scope set.
	ErrScopeExceedsAllowed = errors.New("requested scopes must be a subset of the principal's allowed scopes")
	// ErrProviderNotFound: login against an unconfigured provider. The
	// transport renders this identically to an unknown route.
	ErrProviderNotFound = errors.New("not found")
	// ErrMissingPermission: the resolved principal lacks a scope required
	// by the endpoint.
	ErrMissingPermission = errors.New("missing permission")
)

// ErrorResponse is the standard JSON error envelope returned to clients.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}
