package admission

import (
	"context"
	"time"

	"github.com/iliyamo/event-registration/internal/model"
)

// Store opens transactions scoped to the admission workflow.  The
// production implementation lives in the repository package on top of
// MySQL; an in-memory implementation in this package backs the test
// suite and mirrors the same locking semantics.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one serializable unit of admission work.  EventForUpdate must
// acquire an exclusive per-event lock that is held until Commit or
// Rollback; every other method assumes that lock is held for the
// event it touches.  Implementations must never block on anything
// but that lock: no network calls belong inside a Tx.
type Tx interface {
	// EventForUpdate loads the event and takes its exclusive lock.
	// Returns ErrEventNotFound when no such event exists and
	// ErrConflict when the lock cannot be acquired in time.
	EventForUpdate(ctx context.Context, eventID uint64) (*model.Event, error)

	// ActiveAttendee returns the single non-cancelled registration for
	// the (event, user) pair, or nil when there is none.
	ActiveAttendee(ctx context.Context, eventID, userID uint64) (*model.Attendee, error)

	// InsertAttendee persists a new registration record and populates
	// its ID.
	InsertAttendee(ctx context.Context, a *model.Attendee) error

	// MarkCancelled sets an attendee record to CANCELLED at the given
	// time.  The record is retained for history.
	MarkCancelled(ctx context.Context, attendeeID uint64, at time.Time) error

	// MarkRegistered promotes a waitlisted attendee to REGISTERED.
	MarkRegistered(ctx context.Context, attendeeID uint64) error

	// EarliestWaitlisted returns the waitlisted attendee with the
	// smallest registered_at for the event, ties broken by id, or nil
	// when the waitlist is empty.
	EarliestWaitlisted(ctx context.Context, eventID uint64) (*model.Attendee, error)

	// UpdateEventOccupancy writes the occupancy counter.
	UpdateEventOccupancy(ctx context.Context, eventID uint64, occupancy uint32) error

	// UpdateEventStatus writes the lifecycle status.
	UpdateEventStatus(ctx context.Context, eventID uint64, status model.EventStatus) error

	// UpdateEventCapacity writes the capacity limit.
	UpdateEventCapacity(ctx context.Context, eventID uint64, capacity uint32) error

	Commit() error
	Rollback() error
}
