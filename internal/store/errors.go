package store

import (
	"errors"
	"fmt"
)

// ErrBatchTooLarge is wrapped in a WriteError when a bulk batch exceeds the
// backend's bounded batch size.
var ErrBatchTooLarge = errors.New("batch excede el tamaño maximo")

// AuthError: bad credentials.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string { return e.Msg }

// NotFoundError: a place, perfil or item that does not exist.
type NotFoundError struct {
	Kind string // "place" | "perfil" | "item"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s no encontrado", e.Kind, e.ID)
}

// ReadError wraps subscription and fetch failures.
type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *ReadError) Unwrap() error { return e.Err }

// WriteError wraps save/delete/bulk failures. Bulk failures mean no entry of
// the batch was applied.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
