// Package service contains the application services: exam intake and
// the synchronous regeneration engine.
package service

import (
	"errors"
	"fmt"
)

// ErrNilDependency is returned by service constructors when a required
// dependency is missing.
var ErrNilDependency = errors.New("required dependency is nil")

// ServiceError wraps errors from the service layer with operation
// context. The underlying error is preserved for errors.Is, so
// sentinel checks (validation, not-found, parse) still work at the API
// layer.
type ServiceError struct {
	Operation string
	Message   string
	Err       error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError wraps err with operation context. A nil err returns
// nil.
func NewServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Operation: operation, Message: message, Err: err}
}
