package profile

import (
	"errors"
	"fmt"
)

// Service errors
var (
	ErrNotFound   = errors.New("profile not found")
	ErrEmailInUse = errors.New("email already in use")
	ErrValidation = errors.New("invalid profile data")
)

// ValidationError reports missing or malformed input. It matches ErrValidation.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StorageError wraps a backend failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// WrapStorage tags err as a storage failure unless it is already one of the
// service errors backends are allowed to return.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrEmailInUse) || errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// categorizeError converts errors to audit-safe categories.
func categorizeError(err error) string {
	var se *StorageError
	switch {
	case errors.Is(err, ErrEmailInUse):
		return "email_in_use"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.As(err, &se):
		return "storage_error"
	default:
		return "internal_error"
	}
}

var errDuplicateID = errors.New("duplicate profile id")
