package admission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-registration/internal/lifecycle"
	"github.com/iliyamo/event-registration/internal/model"
)

// newTestService returns a service over a fresh memory store with a
// deterministic clock that advances one second per call, so waitlist
// ordering in tests is unambiguous.
func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc := NewService(store)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	var calls int
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}
	return svc, store
}

func seedUpcoming(store *MemoryStore, capacity uint32) uint64 {
	return store.SeedEvent(&model.Event{
		OrganizerID: 100,
		Name:        "meetup",
		Status:      model.StatusUpcoming,
		Capacity:    capacity,
	})
}

func TestRegisterAdmitsUntilCapacityThenWaitlists(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	eventID := seedUpcoming(store, 2)

	a1, err := svc.Register(ctx, eventID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.AttendeeRegistered, a1.Status)

	a2, err := svc.Register(ctx, eventID, 2)
	require.NoError(t, err)
	assert.Equal(t, model.AttendeeRegistered, a2.Status)

	a3, err := svc.Register(ctx, eventID, 3)
	require.NoError(t, err)
	assert.Equal(t, model.AttendeeWaitlisted, a3.Status)

	ev := store.GetEvent(eventID)
	assert.Equal(t, uint32(2), ev.Occupancy)
}

func TestRegisterRejectsClosedStatuses(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	for _, status := range []model.EventStatus{
		model.StatusDraft,
		model.StatusOngoing,
		model.StatusCompleted,
		model.StatusCancelled,
	} {
		id := store.SeedEvent(&model.Event{OrganizerID: 100, Status: status, Capacity: 10})
		_, err := svc.Register(ctx, id, 1)
		require.ErrorIs(t, err, ErrEventNotOpen, "status %s", status)
	}
}

func TestRegisterUnknownEvent(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Register(context.Background(), 404, 1)
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	eventID := seedUpcoming(store, 1)

	_, err := svc.Register(ctx, eventID, 1)
	require.NoError(t, err)
	_, err = svc.Register(ctx, eventID, 1)
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	// A waitlisted user counts as registered for duplicate purposes.
	_, err = svc.Register(ctx, eventID, 2)
	require.NoError(t, err)
	_, err = svc.Register(ctx, eventID, 2)
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestReRegisterAfterCancelCreatesNewRecord(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	eventID := seedUpcoming(store, 5)

	first, err := svc.Register(ctx, eventID, 1)
	require.NoError(t, err)
	_, err = svc.Unregister(ctx, eventID, 1)
	require.NoError(t, err)
	second, err := svc.Register(ctx, eventID, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// The cancelled record is retained for history.
	records := store.Attendees(eventID)
	require.Len(t, records, 2)
	assert.Equal(t, model.AttendeeCancelled, records[0].Status)
	assert.NotNil(t, records[0].CancelledAt)
	assert.Equal(t, model.AttendeeRegistered, records[1].Status)
}

func TestConcurrentRegisterForLastSlot(t *testing.T) {
	// Capacity 1, two concurrent registrations: exactly one REGISTERED
	// and one WAITLISTED, never two of either.
	for i := 0; i < 50; i++ {
		svc, store := newTestService(t)
		ctx := context.Background()
		eventID := seedUpcoming(store, 1)

		var wg sync.WaitGroup
		results := make([]*model.Attendee, 2)
		for u := uint64(1); u <= 2; u++ {
			wg.Add(1)
			go func(u uint64) {
				defer wg.Done()
				a, err := svc.Register(ctx, eventID, u)
				if assert.NoError(t, err) {
					results[u-1] = a
				}
			}(u)
		}
		wg.Wait()

		registered, waitlisted := 0, 0
		for _, a := range results {
			if a == nil {
				continue
			}
			switch a.Status {
			case model.AttendeeRegistered:
				registered++
			case model.AttendeeWaitlisted:
				waitlisted++
			}
		}
		assert.Equal(t, 1, registered)
		assert.Equal(t, 1, waitlisted)
		assert.Equal(t, uint32(1), store.GetEvent(eventID).Occupancy)
	}
}

func TestUnregisterPromotesEarliestWaitlisted(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	eventID := seedUpcoming(store, 2)

	// Fill the event, then queue C before D.
	_, err := svc.Register(ctx, eventID, 1)
	require.NoError(t, err)
	_, err = svc.Register(ctx, eventID, 2)
	require.NoError(t, err)
	c, err := svc.Register(ctx, eventID, 3)
	require.NoError(t, err)
	d, err := svc.Register(ctx, eventID, 4)
	require.NoError(t, err)
	require.Equal(t, model.AttendeeWaitlisted, c.Status)
	require.Equal(t, model.AttendeeWaitlisted, d.Status)

	promoted, err := svc.Unregister(ctx, eventID, 1)
	require.NoError(t, err)
	require.NotNil(t, promoted)
	assert.Equal(t, c.ID, promoted.ID)
	assert.Equal(t, model.AttendeeRegistered, promoted.Status)

	// Occupancy returns to its prior value; D is still queued.
	ev := store.GetEvent(eventID)
	assert.Equal(t, uint32(2), ev.Occupancy)
	for _, a := range store.Attendees(eventID) {
		if a.ID == d.ID {
			assert.Equal(t, model.AttendeeWaitlisted, a.Status)
		}
	}
}

func TestUnregisterWithEmptyWaitlistFreesSlot(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	eventID := seedUpcoming(store, 2)

	_, err := svc.Register(ctx, eventID, 1)
	require.NoError(t, err)
	promoted, err := svc.Unregister(ctx, eventID, 1)
	require.NoError(t, err)
	assert.Nil(t, promoted)
	assert.Equal(t, uint32(0), store.GetEvent(eventID).Occupancy)
}

func TestUnregisterFromWaitlistPromotesNobody(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	eventID := seedUpcoming(store, 1)

	_, err := svc.Register(ctx, eventID, 1)
	require.NoError(t, err)
	_, err = svc.Register(ctx, eventID, 2)
	require.NoError(t, err)
	later, err := svc.Register(ctx, eventID, 3)
	require.NoError(t, err)
	require.Equal(t, model.AttendeeWaitlisted, later.Status)

	// User 2 leaves the waitlist: no slot frees, nobody moves.
	promoted, err := svc.Unregister(ctx, eventID, 2)
	require.NoError(t, err)
	assert.Nil(t, promoted)
	ev := store.GetEvent(eventID)
	assert.Equal(t, uint32(1), ev.Occupancy)
	for _, a := range store.Attendees(eventID) {
		if a.ID == later.ID {
			assert.Equal(t, model.AttendeeWaitlisted, a.Status)
		}
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	eventID := seedUpcoming(store, 1)

	_, err := svc.Register(ctx, eventID, 1)
	require.NoError(t, err)
	_, err = svc.Unregister(ctx, eventID, 1)
	require.NoError(t, err)
	_, err = svc.Unregister(ctx, eventID, 1)
	require.ErrorIs(t, err, ErrNotRegistered)

	// Only one state change happened.
	assert.Equal(t, uint32(0), store.GetEvent(eventID).Occupancy)
	require.Len(t, store.Attendees(eventID), 1)
}

func TestUnregisterWithoutRegistration(t *testing.T) {
	svc, store := newTestService(t)
	eventID := seedUpcoming(store, 1)
	_, err := svc.Unregister(context.Background(), eventID, 7)
	require.ErrorIs(t, err, ErrNotRegistered)
}

func TestChangeCapacityPromotesInOrder(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	eventID := seedUpcoming(store, 1)

	_, err := svc.Register(ctx, eventID, 1) // fills the single slot
	require.NoError(t, err)
	c, err := svc.Register(ctx, eventID, 3)
	require.NoError(t, err)
	d, err := svc.Register(ctx, eventID, 4)
	require.NoError(t, err)
	e, err := svc.Register(ctx, eventID, 5)
	require.NoError(t, err)

	ev, promoted, err := svc.ChangeCapacity(ctx, eventID, 100, false, 3)
	require.NoError(t, err)
	require.Len(t, promoted, 2)
	assert.Equal(t, c.ID, promoted[0].ID)
	assert.Equal(t, d.ID, promoted[1].ID)
	assert.Equal(t, uint32(3), ev.Capacity)
	assert.Equal(t, uint32(3), ev.Occupancy)

	// E stays queued.
	for _, a := range store.Attendees(eventID) {
		if a.ID == e.ID {
			assert.Equal(t, model.AttendeeWaitlisted, a.Status)
		}
	}
}

func TestChangeCapacityBelowOccupancy(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	eventID := seedUpcoming(store, 2)

	_, err := svc.Register(ctx, eventID, 1)
	require.NoError(t, err)
	_, err = svc.Register(ctx, eventID, 2)
	require.NoError(t, err)

	_, _, err = svc.ChangeCapacity(ctx, eventID, 100, false, 1)
	require.ErrorIs(t, err, ErrCapacityBelowOccupancy)

	// Nothing changed.
	ev := store.GetEvent(eventID)
	assert.Equal(t, uint32(2), ev.Capacity)
	assert.Equal(t, uint32(2), ev.Occupancy)
}

func TestChangeCapacityAuthorization(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	eventID := seedUpcoming(store, 2)

	_, _, err := svc.ChangeCapacity(ctx, eventID, 42, false, 5)
	require.ErrorIs(t, err, lifecycle.ErrUnauthorized)

	// Admin capability bypasses the organizer check.
	_, _, err = svc.ChangeCapacity(ctx, eventID, 42, true, 5)
	require.NoError(t, err)
}

func TestTransitionClosesRegistration(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	eventID := seedUpcoming(store, 2)

	ev, err := svc.Transition(ctx, eventID, 100, false, model.StatusOngoing)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOngoing, ev.Status)

	_, err = svc.Register(ctx, eventID, 1)
	require.ErrorIs(t, err, ErrEventNotOpen)
}

func TestTransitionErrors(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	eventID := seedUpcoming(store, 2)

	_, err := svc.Transition(ctx, eventID, 42, false, model.StatusOngoing)
	require.ErrorIs(t, err, lifecycle.ErrUnauthorized)

	_, err = svc.Transition(ctx, eventID, 100, false, model.StatusCompleted)
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	_, err = svc.Transition(ctx, 404, 100, false, model.StatusOngoing)
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestInvariantsUnderConcurrentChurn(t *testing.T) {
	// Mixed registers and unregisters from many goroutines must never
	// break the occupancy bounds or create a second active record for
	// a pair.
	svc, store := newTestService(t)
	ctx := context.Background()
	eventID := seedUpcoming(store, 5)

	const users = 20
	var wg sync.WaitGroup
	for u := uint64(1); u <= users; u++ {
		wg.Add(1)
		go func(u uint64) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if _, err := svc.Register(ctx, eventID, u); err != nil {
					assert.ErrorIs(t, err, ErrAlreadyRegistered)
				}
				if u%2 == 0 {
					if _, err := svc.Unregister(ctx, eventID, u); err != nil {
						assert.ErrorIs(t, err, ErrNotRegistered)
					}
				}
			}
		}(u)
	}
	wg.Wait()

	ev := store.GetEvent(eventID)
	assert.LessOrEqual(t, ev.Occupancy, ev.Capacity)

	registered := uint32(0)
	active := make(map[uint64]int)
	for _, a := range store.Attendees(eventID) {
		if a.Status == model.AttendeeRegistered {
			registered++
		}
		if a.Active() {
			active[a.UserID]++
		}
	}
	assert.Equal(t, ev.Occupancy, registered, "occupancy must equal registered records")
	for userID, n := range active {
		assert.Equal(t, 1, n, "user %d has %d active records", userID, n)
	}
}

func TestCommittedWorkSurvivesCancelledContext(t *testing.T) {
	svc, store := newTestService(t)
	eventID := seedUpcoming(store, 1)

	ctx, cancel := context.WithCancel(context.Background())
	a, err := svc.Register(ctx, eventID, 1)
	require.NoError(t, err)
	cancel()

	// The commit stands; cancellation only prevents starting work.
	ev := store.GetEvent(eventID)
	assert.Equal(t, uint32(1), ev.Occupancy)
	require.Len(t, store.Attendees(eventID), 1)
	assert.Equal(t, a.ID, store.Attendees(eventID)[0].ID)

	// New work on the cancelled context is refused.
	_, err = svc.Register(ctx, eventID, 2)
	require.Error(t, err)
}
