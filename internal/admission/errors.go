// Package admission owns the registration workflow for events:
// admitting attendees against capacity, queueing them on the waitlist,
// promoting them when a slot frees, and applying lifecycle transitions
// under the same per-event lock so a close can never race an
// admission.  It is the only writer of event occupancy and status.
package admission

import "errors"

// ErrEventNotFound is returned when the referenced event does not
// exist.  Handlers translate this into an HTTP 404 response.
var ErrEventNotFound = errors.New("event not found")

// ErrEventNotOpen is returned when a registration is attempted on an
// event that is not open for registration (anything but UPCOMING).
// Handlers translate this into an HTTP 422 response.
var ErrEventNotOpen = errors.New("event not open for registration")

// ErrAlreadyRegistered is returned when the user already holds a
// non-cancelled registration for the event.  Handlers translate this
// into an HTTP 409 response.
var ErrAlreadyRegistered = errors.New("already registered for this event")

// ErrNotRegistered is returned when an unregister request finds no
// non-cancelled registration for the (event, user) pair, including
// repeated unregister calls.  Handlers translate this into an HTTP
// 404 response.
var ErrNotRegistered = errors.New("not registered for this event")

// ErrCapacityBelowOccupancy is returned when an organizer tries to
// shrink capacity below the current number of registered attendees.
// Existing registrations are never force-cancelled by a capacity edit.
var ErrCapacityBelowOccupancy = errors.New("capacity below current occupancy")

// ErrConflict signals lock or version contention in the store.  It is
// the only error the service retries internally; when retries are
// exhausted it surfaces to the caller, who may safely retry the whole
// request.
var ErrConflict = errors.New("concurrency conflict")
