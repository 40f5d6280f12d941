package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/tiptoro/tiptoro-api/internal/domain"
	"github.com/tiptoro/tiptoro-api/internal/service/auth"
	"github.com/tiptoro/tiptoro-api/internal/store"
	"github.com/tiptoro/tiptoro-api/internal/task"
)

// Handler-level errors.
var (
	// ErrTaskNotAwaitingVerification rejects verification of a task that is
	// not suspended for review.
	ErrTaskNotAwaitingVerification = errors.New("task is not awaiting verification")

	// ErrTaskNotRetryable rejects a retry of a task that has not failed.
	ErrTaskNotRetryable = errors.New("only failed tasks can be retried")

	// ErrInvalidImage rejects uploads that are not a supported image.
	ErrInvalidImage = errors.New("invalid image")
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// exposing them to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrPasswordMismatch):
		return http.StatusUnauthorized

	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, ErrTaskNotAwaitingVerification),
		errors.Is(err, ErrTaskNotRetryable):
		return http.StatusConflict

	case errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidSubject),
		errors.Is(err, domain.ErrInvalidGrade),
		errors.Is(err, domain.ErrInvalidErrorReason),
		errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, ErrInvalidImage):
		return http.StatusBadRequest

	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, task.ErrQueueClosed):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-safe message for err.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid token"
	case errors.Is(err, auth.ErrPasswordMismatch), errors.Is(err, store.ErrUserNotFound):
		return "Invalid credentials"
	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrNotFound):
		return "Not found"
	case errors.Is(err, store.ErrEmailExists):
		return "Email already exists"
	case errors.Is(err, ErrTaskNotAwaitingVerification):
		return "Task is not awaiting verification"
	case errors.Is(err, ErrTaskNotRetryable):
		return "Only failed tasks can be retried"
	case errors.Is(err, ErrInvalidImage):
		return "Invalid image"
	case errors.Is(err, domain.ErrInvalidSubject):
		return "Invalid subject"
	case errors.Is(err, domain.ErrInvalidGrade):
		return "Invalid grade"
	case errors.Is(err, domain.ErrInvalidErrorReason):
		return "Invalid error reason"
	case errors.Is(err, domain.ErrEmptyContent):
		return "Question text cannot be empty"
	case errors.Is(err, store.ErrInvalidEntity), errors.Is(err, domain.ErrValidation):
		return "Invalid entity data"
	case errors.Is(err, task.ErrQueueFull), errors.Is(err, task.ErrQueueClosed):
		return "Task queue is busy, try again later"
	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator errors into a short message
// naming the first failing field.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}
	fe := verrs[0]
	return fmt.Sprintf("Invalid %s: %s", fe.Field(), validationTagMessage(fe.Tag()))
}

func validationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "email":
		return "invalid email format"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "base64":
		return "invalid base64"
	default:
		return "validation failed"
	}
}

// respondWithServiceError maps err and writes it.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	respondError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
