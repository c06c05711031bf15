// Package errs defines the error taxonomy shared by the quartz domain types
// and the redisjobstore persistence layer.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Use errors.Is against these, never direct equality,
// since every call site wraps them with context via fmt.Errorf("%w").
var (
	ErrObjectAlreadyExists = errors.New("object already exists")
	ErrDecode              = errors.New("decode error")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrTransport           = errors.New("transport error")
)

// PersistenceError wraps a lower-level cause (decode, constraint, transport)
// with the component that raised it, so the facade can attach a uniform
// message without losing errors.Is/As on the original sentinel.
type PersistenceError struct {
	Component string
	Cause     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Component, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// Persistence wraps cause as a PersistenceError attributed to component.
func Persistence(component string, cause error) error {
	return &PersistenceError{Component: component, Cause: cause}
}

// AlreadyExists builds an ErrObjectAlreadyExists for the given object kind
// and key, e.g. AlreadyExists("job", "G.myjob").
func AlreadyExists(kind, key string) error {
	return fmt.Errorf("%s %q: %w", kind, key, ErrObjectAlreadyExists)
}

// Decode builds an ErrDecode for the given object kind and key.
func Decode(kind, key string, cause error) error {
	return fmt.Errorf("decode %s %q: %w: %v", kind, key, ErrDecode, cause)
}

// ConstraintViolation builds an ErrConstraintViolation with a message.
func ConstraintViolation(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrConstraintViolation)
}
