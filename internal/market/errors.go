package market

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the agency, submission or cart line is absent or
	// not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned when a payload fails validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateCategory is returned when a cart already holds a line for the category.
	ErrDuplicateCategory = errors.New("category already in cart")
	// ErrAlreadyClaimed reports a lost compare-and-swap on a submission.
	ErrAlreadyClaimed = errors.New("submission already claimed")
	// ErrAlreadySold is returned when mutating a submission that has been sold.
	ErrAlreadySold = errors.New("submission already sold")
	// ErrCartConflict reports a concurrent cart write with a stale version.
	ErrCartConflict = errors.New("cart modified concurrently")
	// ErrPersistence marks store I/O failures. Callers treat it as transient.
	ErrPersistence = errors.New("persistence failure")
)

// StoreError wraps an underlying store fault with the failing operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// Persistence wraps err as a StoreError unless it is nil or already one of the
// domain sentinels.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrNotFound, ErrAlreadyClaimed, ErrAlreadySold, ErrCartConflict, ErrPersistence} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return &StoreError{Op: op, Err: err}
}
