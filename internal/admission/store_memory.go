package admission

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/event-registration/internal/model"
)

// MemoryStore is an in-memory Store with the same semantics as the
// MySQL implementation: EventForUpdate takes a per-event mutex that is
// held until the transaction ends, so admission work on one event is
// serialized while unrelated events proceed independently.  Writes are
// applied immediately (reads inside the transaction see them) and
// undone on rollback.  It backs the admission test suite and can serve
// as a storage backend for local experimentation.
type MemoryStore struct {
	mu        sync.Mutex
	events    map[uint64]*model.Event
	attendees map[uint64]*model.Attendee
	locks     map[uint64]*sync.Mutex
	nextEvent uint64
	nextAtt   uint64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:    make(map[uint64]*model.Event),
		attendees: make(map[uint64]*model.Attendee),
		locks:     make(map[uint64]*sync.Mutex),
	}
}

// SeedEvent stores an event, assigning an ID when none is set, and
// returns the assigned ID.
func (s *MemoryStore) SeedEvent(ev *model.Event) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == 0 {
		s.nextEvent++
		ev.ID = s.nextEvent
	} else if ev.ID > s.nextEvent {
		s.nextEvent = ev.ID
	}
	cp := *ev
	s.events[ev.ID] = &cp
	return ev.ID
}

// GetEvent returns a copy of the stored event, or nil when absent.
func (s *MemoryStore) GetEvent(id uint64) *model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return nil
	}
	cp := *ev
	return &cp
}

// Attendees returns copies of every attendee record for the event,
// cancelled ones included, in insertion order.
func (s *MemoryStore) Attendees(eventID uint64) []*model.Attendee {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Attendee, 0)
	for id := uint64(1); id <= s.nextAtt; id++ {
		a, ok := s.attendees[id]
		if !ok || a.EventID != eventID {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out
}

// lockFor returns the mutex guarding the given event, creating it on
// first use.
func (s *MemoryStore) lockFor(eventID uint64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[eventID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[eventID] = l
	}
	return l
}

// Begin starts a new transaction.
func (s *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryTx{s: s, held: make(map[uint64]*sync.Mutex)}, nil
}

// memoryTx is a single transaction over a MemoryStore.  It records an
// undo step for every write so Rollback can restore the prior state,
// and releases the event locks it acquired when it ends.
type memoryTx struct {
	s    *MemoryStore
	held map[uint64]*sync.Mutex
	undo []func()
	done bool
}

func (t *memoryTx) EventForUpdate(ctx context.Context, eventID uint64) (*model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := t.held[eventID]; !ok {
		l := t.s.lockFor(eventID)
		l.Lock()
		t.held[eventID] = l
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	ev, ok := t.s.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

func (t *memoryTx) ActiveAttendee(ctx context.Context, eventID, userID uint64) (*model.Attendee, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, a := range t.s.attendees {
		if a.EventID == eventID && a.UserID == userID && a.Status != model.AttendeeCancelled {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memoryTx) InsertAttendee(ctx context.Context, a *model.Attendee) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.nextAtt++
	a.ID = t.s.nextAtt
	cp := *a
	t.s.attendees[a.ID] = &cp
	id := a.ID
	t.undo = append(t.undo, func() { delete(t.s.attendees, id) })
	return nil
}

func (t *memoryTx) MarkCancelled(ctx context.Context, attendeeID uint64, at time.Time) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	a, ok := t.s.attendees[attendeeID]
	if !ok {
		return ErrNotRegistered
	}
	prevStatus, prevAt := a.Status, a.CancelledAt
	a.Status = model.AttendeeCancelled
	cancelled := at
	a.CancelledAt = &cancelled
	t.undo = append(t.undo, func() { a.Status = prevStatus; a.CancelledAt = prevAt })
	return nil
}

func (t *memoryTx) MarkRegistered(ctx context.Context, attendeeID uint64) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	a, ok := t.s.attendees[attendeeID]
	if !ok {
		return ErrNotRegistered
	}
	prev := a.Status
	a.Status = model.AttendeeRegistered
	t.undo = append(t.undo, func() { a.Status = prev })
	return nil
}

func (t *memoryTx) EarliestWaitlisted(ctx context.Context, eventID uint64) (*model.Attendee, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var best *model.Attendee
	for _, a := range t.s.attendees {
		if a.EventID != eventID || a.Status != model.AttendeeWaitlisted {
			continue
		}
		if best == nil ||
			a.RegisteredAt.Before(best.RegisteredAt) ||
			(a.RegisteredAt.Equal(best.RegisteredAt) && a.ID < best.ID) {
			best = a
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (t *memoryTx) UpdateEventOccupancy(ctx context.Context, eventID uint64, occupancy uint32) error {
	return t.updateEvent(eventID, func(ev *model.Event) func() {
		prev := ev.Occupancy
		ev.Occupancy = occupancy
		return func() { ev.Occupancy = prev }
	})
}

func (t *memoryTx) UpdateEventStatus(ctx context.Context, eventID uint64, status model.EventStatus) error {
	return t.updateEvent(eventID, func(ev *model.Event) func() {
		prev := ev.Status
		ev.Status = status
		return func() { ev.Status = prev }
	})
}

func (t *memoryTx) UpdateEventCapacity(ctx context.Context, eventID uint64, capacity uint32) error {
	return t.updateEvent(eventID, func(ev *model.Event) func() {
		prev := ev.Capacity
		ev.Capacity = capacity
		return func() { ev.Capacity = prev }
	})
}

func (t *memoryTx) updateEvent(eventID uint64, mutate func(ev *model.Event) func()) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	ev, ok := t.s.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	t.undo = append(t.undo, mutate(ev))
	return nil
}

func (t *memoryTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	t.undo = nil
	t.release()
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.s.mu.Unlock()
	t.release()
	return nil
}

func (t *memoryTx) release() {
	for _, l := range t.held {
		l.Unlock()
	}
	t.held = nil
}
