// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be performed because
// the row is no longer in the expected state (a conditional
// update matched zero rows) or because dependent records exist
// (e.g. deleting a machine that has bookings). Handlers should
// translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrDuplicate is returned when a unique key would be violated.
var ErrDuplicate = errors.New("duplicate")
