// Package queue defines message payloads exchanged over the message broker.
package queue

// Event kinds published to the registration.events queue.
const (
	KindRegistrationConfirmed  = "registration.confirmed"
	KindRegistrationWaitlisted = "registration.waitlisted"
	KindRegistrationCancelled  = "registration.cancelled"
	KindAttendeePromoted       = "attendee.promoted"
)

// RegistrationEvent describes a change in an attendee's standing on an
// event. Downstream consumers can log, notify, or feed analytics without
// touching the primary database.
type RegistrationEvent struct {
	Kind       string `json:"kind"`
	AttendeeID uint64 `json:"attendee_id"`
	EventID    uint64 `json:"event_id"`
	UserID     uint64 `json:"user_id"`
	Status     string `json:"status"`
	OccurredAt string `json:"occurred_at"`
}
