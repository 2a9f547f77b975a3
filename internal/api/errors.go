package api

import (
	"errors"
	"net/http"

	"github.com/storyfab/storyfab-api/internal/api/shared"
	"github.com/storyfab/storyfab-api/internal/domain"
	"github.com/storyfab/storyfab-api/internal/service"
	"github.com/storyfab/storyfab-api/internal/service/auth"
	"github.com/storyfab/storyfab-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	// Authorization errors
	case errors.Is(err, service.ErrNotOwned):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, store.ErrEmailExists):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Business rule violations (quota, illegal transition, active job)
	case errors.Is(err, domain.ErrBusinessRule):
		return http.StatusUnprocessableEntity

	// Collaborator failures
	case errors.Is(err, domain.ErrExternalService):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. Validation and business rule errors carry their
// own client-safe text; everything else maps to a generic message.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Error()
	}
	var ruleErr *domain.BusinessRuleError
	if errors.As(err, &ruleErr) {
		return ruleErr.Error()
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"
	case errors.Is(err, service.ErrNotOwned):
		return "You do not own this resource"
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return "Resource not found"
	case errors.Is(err, store.ErrEmailExists):
		return "Email already exists"
	case errors.Is(err, domain.ErrValidation), errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"
	case errors.Is(err, domain.ErrExternalService):
		return "Upstream service failure"
	case errors.Is(err, domain.ErrTimeout):
		return "Operation timed out"
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes an error response for err, using overrideMessage when
// non-empty and a taxonomy-derived safe message otherwise.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, overrideMessage string) {
	status := MapErrorToStatusCode(err)
	message := overrideMessage
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
