package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"queuegate/internal/domain"
)

// WriteError emits the standard JSON error envelope.
func WriteError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(domain.ErrorResponse{
		Error:   code,
		Message: msg,
	}); err != nil {
		slog.Error("encoding error response", "error", err)
	}
}

// WriteDomainError classifies an engine error into an HTTP status and
// error code. Every engine failure is one of the domain sentinels; an
// unclassified error is a bug and surfaces as 500.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotEnoughPermissions):
		WriteError(w, http.StatusForbidden, "not_enough_permissions", err.Error())
	case errors.Is(err, domain.ErrMissingPermission):
		WriteError(w, http.StatusForbidden, "not_enough_permissions", domain.ErrNotEnoughPermissions.Error())
	case errors.Is(err, domain.ErrInvalidCredential):
		WriteError(w, http.StatusUnauthorized, "invalid_credential", err.Error())
	case errors.Is(err, domain.ErrCouldNotValidateCredential):
		WriteError(w, http.StatusUnauthorized, "could_not_validate_credentials", err.Error())
	case errors.Is(err, domain.ErrIncorrectCredentials):
		WriteError(w, http.StatusUnauthorized, "incorrect_credentials", err.Error())
	case errors.Is(err, domain.ErrUserNotAuthorized):
		WriteError(w, http.StatusForbidden, "user_not_authorized", err.Error())
	case errors.Is(err, domain.ErrScopeExceedsAllowed):
		WriteError(w, http.StatusForbidden, "scope_exceeds_allowed", err.Error())
	case errors.Is(err, domain.ErrProviderNotFound):
		// Rendered byte-identically to the router's generic 404 so a
		// caller cannot tell an unconfigured provider from a missing
		// route.
		WriteNotFound(w)
	default:
		slog.Error("unclassified engine error", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
	}
}

// WriteNotFound emits the single 404 shape used for unknown routes and
// unknown providers alike.
func WriteNotFound(w http.ResponseWriter) {
	WriteError(w, http.StatusNotFound, "not_found", "not found")
}

// NotFoundHandler returns the router-level 404 handler.
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteNotFound(w)
	})
}
