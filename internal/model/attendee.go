package model

import "time"

// AttendeeStatus enumerates the states of a registration record.
// REGISTERED attendees hold a slot and count toward the event's
// occupancy.  WAITLISTED attendees are queued in registered_at order
// and only ever reach REGISTERED through promotion.  CANCELLED is
// terminal for the record; a user who registers again afterwards gets
// a fresh record and the cancelled one is kept for history.
type AttendeeStatus string

const (
	AttendeeRegistered AttendeeStatus = "REGISTERED"
	AttendeeWaitlisted AttendeeStatus = "WAITLISTED"
	AttendeeCancelled  AttendeeStatus = "CANCELLED"
)

// Attendee records one registration relationship between a user and an
// event, as stored in the `attendees` table.  At most one non-cancelled
// row exists per (event, user) pair.
//
// Fields:
//  ID           – primary key identifier; tie-break key for waitlist order.
//  EventID      – event being registered for.
//  UserID       – registering user.
//  Status       – see AttendeeStatus.
//  RegisteredAt – set at creation, never mutated; waitlist FIFO key.
//  CancelledAt  – set when the record is cancelled (nullable).
type Attendee struct {
	ID           uint64         // attendees.id
	EventID      uint64         // attendees.event_id
	UserID       uint64         // attendees.user_id
	Status       AttendeeStatus // attendees.status
	RegisteredAt time.Time      // attendees.registered_at
	CancelledAt  *time.Time     // attendees.cancelled_at (nullable)
}

// Active reports whether the record still binds the user to the event,
// i.e. its status is not CANCELLED.
func (a *Attendee) Active() bool { return a.Status != AttendeeCancelled }
