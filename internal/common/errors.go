package common

import (
	"errors"
	"net/http"

	"github.com/noah-isme/datanexus/internal/market"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// ToAppError maps marketplace errors onto their HTTP representation. Unknown
// errors become a 500.
func ToAppError(err error) *AppError {
	var appErr *AppError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, market.ErrInvalidInput):
		return NewAppError("VALIDATION_ERROR", err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, market.ErrNotFound):
		return NewAppError("NOT_FOUND", "resource not found", http.StatusNotFound, err)
	case errors.Is(err, market.ErrDuplicateCategory):
		return NewAppError("DUPLICATE_CATEGORY", "category already in cart", http.StatusConflict, err)
	case errors.Is(err, market.ErrAlreadySold):
		return NewAppError("ALREADY_SOLD", "submission already sold", http.StatusConflict, err)
	case errors.Is(err, market.ErrAlreadyClaimed):
		return NewAppError("IN_SETTLEMENT", "submission is part of an in-flight settlement", http.StatusConflict, err)
	case errors.Is(err, market.ErrCartConflict):
		return NewAppError("CART_CONFLICT", "cart modified concurrently, retry", http.StatusConflict, err)
	case errors.Is(err, market.ErrPersistence):
		return NewAppError("STORE_UNAVAILABLE", "storage temporarily unavailable", http.StatusServiceUnavailable, err)
	default:
		return NewAppError("INTERNAL", "internal server error", http.StatusInternalServerError, err)
	}
}

// WriteError renders err using the canonical error envelope.
func WriteError(w http.ResponseWriter, err error) {
	appErr := ToAppError(err)
	if appErr == nil {
		return
	}
	JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
}
