// Package repository implements MySQL persistence for users, events
// and attendees. This file defines sentinel error values that are
// reused across repositories. They allow higher layers such as
// handlers to distinguish between failure scenarios with errors.Is
// and map them to HTTP status codes.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on an event they do not organize. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrEmailExists is returned when registering a user with an email
// address that is already taken. Handlers should translate this
// into an HTTP 409 response.
var ErrEmailExists = errors.New("email already exists")
