package admission

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/event-registration/internal/lifecycle"
	"github.com/iliyamo/event-registration/internal/model"
)

// maxAttempts bounds internal retries on ErrConflict.  Every other
// error is terminal for the request and surfaces verbatim.
const maxAttempts = 3

// retryBaseDelay is the backoff unit between conflict retries.  The
// n-th retry waits n times this long.
const retryBaseDelay = 25 * time.Millisecond

// Service implements the registration workflow.  All operations run as
// a single transaction under the event's exclusive lock, so occupancy,
// attendee rows and status can never be observed in a partially
// updated state.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs a Service on top of the given store.
func NewService(store Store) *Service {
	if store == nil {
		panic("nil store passed to NewService")
	}
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Register admits or waitlists a user for an event.  The decision is
// made against the occupancy counter read under the event lock: when a
// slot is free the attendee is created REGISTERED and occupancy is
// incremented in the same transaction, otherwise the attendee is
// created WAITLISTED with registered_at recording its queue position.
// Returns ErrEventNotOpen unless the event is UPCOMING at the moment
// of the call, and ErrAlreadyRegistered when a non-cancelled record
// already exists for the pair.
func (s *Service) Register(ctx context.Context, eventID, userID uint64) (*model.Attendee, error) {
	var created *model.Attendee
	err := s.withRetry(ctx, func(tx Tx) error {
		ev, err := tx.EventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if !lifecycle.IsOpenForRegistration(ev.Status) {
			return ErrEventNotOpen
		}
		existing, err := tx.ActiveAttendee(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyRegistered
		}
		a := &model.Attendee{
			EventID:      eventID,
			UserID:       userID,
			Status:       model.AttendeeWaitlisted,
			RegisteredAt: s.now(),
		}
		if ev.Occupancy < ev.Capacity {
			a.Status = model.AttendeeRegistered
		}
		if err := tx.InsertAttendee(ctx, a); err != nil {
			return err
		}
		if a.Status == model.AttendeeRegistered {
			if err := tx.UpdateEventOccupancy(ctx, eventID, ev.Occupancy+1); err != nil {
				return err
			}
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Unregister cancels the caller's active registration.  Cancelling a
// REGISTERED attendee frees a slot, which is immediately reassigned to
// the earliest-queued waitlisted attendee in the same transaction; a
// reader never observes the slot free while someone is still queued.
// Cancelling a WAITLISTED attendee only removes it from the queue.
// Returns the promoted attendee, if any.  A repeated call finds no
// active record and fails with ErrNotRegistered, so retries cannot
// mutate state twice.
func (s *Service) Unregister(ctx context.Context, eventID, userID uint64) (*model.Attendee, error) {
	var promoted *model.Attendee
	err := s.withRetry(ctx, func(tx Tx) error {
		promoted = nil
		ev, err := tx.EventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		a, err := tx.ActiveAttendee(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if a == nil {
			return ErrNotRegistered
		}
		if err := tx.MarkCancelled(ctx, a.ID, s.now()); err != nil {
			return err
		}
		if a.Status != model.AttendeeRegistered {
			// Leaving the waitlist never frees a held slot.
			return nil
		}
		next, err := tx.EarliestWaitlisted(ctx, eventID)
		if err != nil {
			return err
		}
		if next != nil {
			if err := tx.MarkRegistered(ctx, next.ID); err != nil {
				return err
			}
			next.Status = model.AttendeeRegistered
			promoted = next
			// Occupancy is unchanged: the freed slot is reassigned.
			return nil
		}
		return tx.UpdateEventOccupancy(ctx, eventID, ev.Occupancy-1)
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

// ChangeCapacity sets a new capacity for the event.  Shrinking below
// the current occupancy fails with ErrCapacityBelowOccupancy; growing
// promotes waitlisted attendees in registered_at order until the new
// capacity is reached or the waitlist is empty.  Only organizers and
// admins may change capacity.  Returns the updated event and the
// attendees promoted by the change.
func (s *Service) ChangeCapacity(ctx context.Context, eventID, actorID uint64, isAdmin bool, capacity uint32) (*model.Event, []*model.Attendee, error) {
	var (
		updated  *model.Event
		promoted []*model.Attendee
	)
	err := s.withRetry(ctx, func(tx Tx) error {
		promoted = nil
		ev, err := tx.EventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if !isAdmin && !ev.IsOrganizer(actorID) {
			return lifecycle.ErrUnauthorized
		}
		if capacity < ev.Occupancy {
			return ErrCapacityBelowOccupancy
		}
		if err := tx.UpdateEventCapacity(ctx, eventID, capacity); err != nil {
			return err
		}
		occupancy := ev.Occupancy
		for occupancy < capacity {
			next, err := tx.EarliestWaitlisted(ctx, eventID)
			if err != nil {
				return err
			}
			if next == nil {
				break
			}
			if err := tx.MarkRegistered(ctx, next.ID); err != nil {
				return err
			}
			next.Status = model.AttendeeRegistered
			promoted = append(promoted, next)
			occupancy++
		}
		if occupancy != ev.Occupancy {
			if err := tx.UpdateEventOccupancy(ctx, eventID, occupancy); err != nil {
				return err
			}
		}
		ev.Capacity = capacity
		ev.Occupancy = occupancy
		updated = ev
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, promoted, nil
}

// Transition moves the event to the target lifecycle status.  It runs
// under the same event lock as Register so an event cannot close
// concurrently with an admission being decided against its old status.
// Validation is delegated to the lifecycle package.
func (s *Service) Transition(ctx context.Context, eventID, actorID uint64, isAdmin bool, target model.EventStatus) (*model.Event, error) {
	var updated *model.Event
	err := s.withRetry(ctx, func(tx Tx) error {
		ev, err := tx.EventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if err := lifecycle.ValidateTransition(ev, actorID, isAdmin, target); err != nil {
			return err
		}
		if err := tx.UpdateEventStatus(ctx, eventID, target); err != nil {
			return err
		}
		ev.Status = target
		updated = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// withRetry runs fn inside a transaction, retrying the whole unit on
// ErrConflict with linear backoff.  A context cancelled before commit
// aborts the attempt; once Commit returns the state change stands and
// cancellation no longer has any effect.
func (s *Service) withRetry(ctx context.Context, fn func(tx Tx) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = s.runOnce(ctx, fn)
		if !errors.Is(err, ErrConflict) || attempt >= maxAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBaseDelay):
		}
	}
}

// runOnce executes fn in a fresh transaction and commits on success.
func (s *Service) runOnce(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
