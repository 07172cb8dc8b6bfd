// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow handlers to distinguish
// between failure scenarios: ErrForbidden indicates that the current user
// is not authorized to operate on a resource owned by someone else, while
// ErrConflict signals that an operation cannot proceed due to existing
// dependent records (e.g. shrinking a listing below its committed space).
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers translate this into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be performed because of
// conflicting state.  Handlers translate this into HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned when a local registration reuses an email
// address.  Handlers translate this into HTTP 409.
var ErrEmailExists = errors.New("email already registered")
