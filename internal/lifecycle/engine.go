// Package lifecycle owns the event status state machine.  It decides
// which status transitions are legal and who may request them, but it
// never writes anything itself: applying a transition is the job of
// the admission service, which holds the event's row lock so a close
// cannot race a registration.
package lifecycle

import (
	"errors"

	"github.com/iliyamo/event-registration/internal/model"
)

// ErrUnauthorized is returned when the acting user has no transition
// authority over the event (not an organizer and not an admin).
// Handlers translate it into an HTTP 401 response.
var ErrUnauthorized = errors.New("unauthorized")

// ErrInvalidTransition is returned when the requested target status is
// not reachable from the event's current status.  Handlers translate
// it into an HTTP 409 response.
var ErrInvalidTransition = errors.New("invalid transition")

// transitions is the authoritative table of legal moves.  COMPLETED and
// CANCELLED have no entry: they are terminal.  Clients may render their
// own copy of this table for UX, but the server never trusts it.
var transitions = map[model.EventStatus][]model.EventStatus{
	model.StatusDraft:    {model.StatusUpcoming, model.StatusCancelled},
	model.StatusUpcoming: {model.StatusOngoing, model.StatusCancelled},
	model.StatusOngoing:  {model.StatusCompleted, model.StatusCancelled},
}

// CanTransition reports whether the table allows moving from one
// status to another.
func CanTransition(from, to model.EventStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the statuses reachable from the given status.
// Terminal statuses yield an empty slice.  The returned slice must not
// be mutated by callers.
func AllowedTargets(from model.EventStatus) []model.EventStatus {
	return transitions[from]
}

// ValidateTransition checks that the actor may move the event to the
// target status.  Authorization is checked before the transition rule
// so an outsider probing a terminal event learns nothing about its
// state.  isAdmin grants transition authority over any event.
func ValidateTransition(ev *model.Event, actorID uint64, isAdmin bool, target model.EventStatus) error {
	if !isAdmin && !ev.IsOrganizer(actorID) {
		return ErrUnauthorized
	}
	if !target.Valid() || !CanTransition(ev.Status, target) {
		return ErrInvalidTransition
	}
	return nil
}

// IsOpenForRegistration reports whether an event in the given status
// accepts new registrations.  Only UPCOMING events do: drafts are not
// yet public, and ONGOING, COMPLETED and CANCELLED are all closed.
func IsOpenForRegistration(status model.EventStatus) bool {
	return status == model.StatusUpcoming
}
