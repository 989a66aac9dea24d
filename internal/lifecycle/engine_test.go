package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-registration/internal/model"
)

var allStatuses = []model.EventStatus{
	model.StatusDraft,
	model.StatusUpcoming,
	model.StatusOngoing,
	model.StatusCompleted,
	model.StatusCancelled,
}

func TestCanTransition(t *testing.T) {
	allowed := map[model.EventStatus]map[model.EventStatus]bool{
		model.StatusDraft:    {model.StatusUpcoming: true, model.StatusCancelled: true},
		model.StatusUpcoming: {model.StatusOngoing: true, model.StatusCancelled: true},
		model.StatusOngoing:  {model.StatusCompleted: true, model.StatusCancelled: true},
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := allowed[from][to]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatusesHaveNoTargets(t *testing.T) {
	assert.Empty(t, AllowedTargets(model.StatusCompleted))
	assert.Empty(t, AllowedTargets(model.StatusCancelled))
}

func TestValidateTransition(t *testing.T) {
	ev := &model.Event{
		ID:           1,
		OrganizerID:  10,
		OrganizerIDs: []uint64{10, 11},
		Status:       model.StatusUpcoming,
	}

	t.Run("organizer may apply a legal transition", func(t *testing.T) {
		require.NoError(t, ValidateTransition(ev, 10, false, model.StatusOngoing))
	})

	t.Run("co-organizer may apply a legal transition", func(t *testing.T) {
		require.NoError(t, ValidateTransition(ev, 11, false, model.StatusCancelled))
	})

	t.Run("admin may transition any event", func(t *testing.T) {
		require.NoError(t, ValidateTransition(ev, 999, true, model.StatusOngoing))
	})

	t.Run("stranger is rejected before the rule check", func(t *testing.T) {
		err := ValidateTransition(ev, 42, false, model.StatusOngoing)
		require.ErrorIs(t, err, ErrUnauthorized)
		// Even an illegal target reports unauthorized, not invalid.
		err = ValidateTransition(ev, 42, false, model.StatusDraft)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("illegal target for organizer", func(t *testing.T) {
		err := ValidateTransition(ev, 10, false, model.StatusDraft)
		require.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("unknown target status", func(t *testing.T) {
		err := ValidateTransition(ev, 10, false, model.EventStatus("ARCHIVED"))
		require.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("completed is terminal", func(t *testing.T) {
		done := &model.Event{ID: 2, OrganizerID: 10, Status: model.StatusCompleted}
		err := ValidateTransition(done, 10, false, model.StatusUpcoming)
		require.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestIsOpenForRegistration(t *testing.T) {
	for _, s := range allStatuses {
		assert.Equal(t, s == model.StatusUpcoming, IsOpenForRegistration(s), "status %s", s)
	}
}
