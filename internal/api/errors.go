package api

import (
	"errors"
	"net/http"

	"github.com/examgen/examgen-api/internal/domain"
	"github.com/examgen/examgen-api/internal/extract"
	"github.com/examgen/examgen-api/internal/service"
	"github.com/examgen/examgen-api/internal/store"
	"github.com/examgen/examgen-api/internal/task"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes.
// Anything unrecognized is an internal server error, never a leak.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// The model's output failed extraction or typed decode. For the
	// synchronous endpoints this surfaces to the caller directly.
	case errors.Is(err, extract.ErrParse):
		return http.StatusBadRequest

	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrVersionMismatch):
		return http.StatusConflict

	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, task.ErrQueueClosed):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized message for the error type.
// Internal details stay in the logs.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"

	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid exam ID"

	case errors.Is(err, domain.ErrValidation):
		return "Invalid request: " + validationDetail(err)

	case errors.Is(err, domain.ErrEmptyContent):
		return "Exam has no content to regenerate"

	case errors.Is(err, extract.ErrParse):
		return "The generated output could not be parsed into an exam"

	case errors.Is(err, store.ErrExamNotFound):
		return "Exam not found"

	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"

	case errors.Is(err, store.ErrVersionMismatch):
		return "Exam was modified concurrently, try again"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid exam data"

	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, task.ErrQueueClosed):
		return "Service is busy, try again later"

	default:
		return "An unexpected error occurred"
	}
}

// validationDetail extracts the innermost validation sentinel message,
// which is safe to show.
func validationDetail(err error) string {
	switch {
	case errors.Is(err, domain.ErrJobMissingFields):
		return domain.ErrJobMissingFields.Error()
	case errors.Is(err, service.ErrMissingDescription):
		return service.ErrMissingDescription.Error()
	case errors.Is(err, service.ErrNoSectionIndexes):
		return service.ErrNoSectionIndexes.Error()
	case errors.Is(err, service.ErrSectionOutOfRange):
		return service.ErrSectionOutOfRange.Error()
	default:
		return "request failed validation"
	}
}
