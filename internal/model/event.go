package model

import "time"

// EventStatus is the coarse-grained lifecycle phase of an event. The
// authoritative transition rules between statuses live in the
// lifecycle package; this type only enumerates the legal values as
// stored in the `events.status` column.
type EventStatus string

const (
	StatusDraft     EventStatus = "DRAFT"     // created but not yet published
	StatusUpcoming  EventStatus = "UPCOMING"  // published and open for registration
	StatusOngoing   EventStatus = "ONGOING"   // in progress, closed for registration
	StatusCompleted EventStatus = "COMPLETED" // finished, terminal
	StatusCancelled EventStatus = "CANCELLED" // aborted, terminal
)

// Valid reports whether s is one of the known event statuses. Input
// from clients must pass through this check before being compared
// against the transition table.
func (s EventStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusUpcoming, StatusOngoing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Event represents a bookable event as stored in the `events` table.
// Occupancy counts attendees currently in the REGISTERED state.  It is
// derived data but persisted so admission decisions are a single row
// read; it is only ever mutated together with the attendee rows it
// summarizes, under the event's row lock.
//
// Fields:
//  ID          – primary key identifier.
//  OrganizerID – user who created the event; always an organizer.
//  Name        – display name.
//  Description – free-form description.
//  Status      – lifecycle phase, see EventStatus.
//  Capacity    – maximum number of REGISTERED attendees, > 0.
//  Occupancy   – current number of REGISTERED attendees.
//  StartsAt    – scheduled start, UTC.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last modification timestamp.
type Event struct {
	ID          uint64      // events.id
	OrganizerID uint64      // events.organizer_id
	Name        string      // events.name
	Description string      // events.description
	Status      EventStatus // events.status
	Capacity    uint32      // events.capacity
	Occupancy   uint32      // events.occupancy
	StartsAt    *time.Time  // events.starts_at (nullable)
	CreatedAt   time.Time   // events.created_at
	UpdatedAt   time.Time   // events.updated_at

	// OrganizerIDs holds every user with transition/edit authority over
	// the event: the creator plus any co-organizers from the
	// event_organizers table.  Populated by the repository when the
	// event is loaded for an authorization-sensitive operation.
	OrganizerIDs []uint64
}

// Remaining returns the number of free slots.
func (e *Event) Remaining() uint32 {
	if e.Occupancy >= e.Capacity {
		return 0
	}
	return e.Capacity - e.Occupancy
}

// IsFull reports whether no slots remain.
func (e *Event) IsFull() bool { return e.Occupancy >= e.Capacity }

// IsOrganizer reports whether userID has organizer authority over the
// event.  The creator is always an organizer even when OrganizerIDs
// was not populated.
func (e *Event) IsOrganizer(userID uint64) bool {
	if userID == e.OrganizerID {
		return true
	}
	for _, id := range e.OrganizerIDs {
		if id == userID {
			return true
		}
	}
	return false
}
