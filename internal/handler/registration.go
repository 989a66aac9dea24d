package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-registration/internal/admission"
	"github.com/iliyamo/event-registration/internal/model"
	"github.com/iliyamo/event-registration/internal/queue"
	"github.com/iliyamo/event-registration/internal/repository"
	queuepublisher "github.com/iliyamo/event-registration/internal/service"
)

// RegistrationHandler exposes the attendee-facing registration
// endpoints. The admission service makes every decision under the
// event's lock; this handler only maps transport concerns and emits
// queue notifications after the commit.
type RegistrationHandler struct {
	Admission *admission.Service
	Attendees *repository.AttendeeRepo
}

// NewRegistrationHandler constructs a RegistrationHandler with the
// provided dependencies. All dependencies must be non-nil.
func NewRegistrationHandler(adm *admission.Service, attendees *repository.AttendeeRepo) *RegistrationHandler {
	if adm == nil || attendees == nil {
		panic("nil dependency passed to NewRegistrationHandler")
	}
	return &RegistrationHandler{Admission: adm, Attendees: attendees}
}

// registrationResp is the JSON shape of a registration record.
type registrationResp struct {
	ID           uint64 `json:"id"`
	EventID      uint64 `json:"event_id"`
	UserID       uint64 `json:"user_id"`
	Status       string `json:"status"`
	RegisteredAt string `json:"registered_at"`
}

func toRegistrationResp(a *model.Attendee) registrationResp {
	return registrationResp{
		ID:           a.ID,
		EventID:      a.EventID,
		UserID:       a.UserID,
		Status:       string(a.Status),
		RegisteredAt: a.RegisteredAt.UTC().Format(time.RFC3339),
	}
}

// Register handles POST /v1/events/:id/register. The caller is either
// admitted against free capacity or queued on the waitlist; the
// response status field tells them which.
func (h *RegistrationHandler) Register(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	a, err := h.Admission.Register(c.Request().Context(), eventID, userID)
	if err != nil {
		switch {
		case errors.Is(err, admission.ErrEventNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		case errors.Is(err, admission.ErrEventNotOpen):
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "event_not_open"})
		case errors.Is(err, admission.ErrAlreadyRegistered):
			return c.JSON(http.StatusConflict, echo.Map{"error": "already_registered"})
		case errors.Is(err, admission.ErrConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": "conflict", "retryable": true})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}
	kind := queue.KindRegistrationConfirmed
	if a.Status == model.AttendeeWaitlisted {
		kind = queue.KindRegistrationWaitlisted
	}
	publishRegistration(c, kind, a)
	return c.JSON(http.StatusCreated, toRegistrationResp(a))
}

// Unregister handles DELETE /v1/events/:id/register. Cancelling a
// held slot may promote the earliest waitlisted attendee, which is
// announced on the queue so downstream systems can notify them.
func (h *RegistrationHandler) Unregister(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	promoted, err := h.Admission.Unregister(c.Request().Context(), eventID, userID)
	if err != nil {
		switch {
		case errors.Is(err, admission.ErrEventNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		case errors.Is(err, admission.ErrNotRegistered):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not_registered"})
		case errors.Is(err, admission.ErrConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": "conflict", "retryable": true})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "unregister failed"})
	}
	publishRegistration(c, queue.KindRegistrationCancelled, &model.Attendee{
		EventID: eventID,
		UserID:  userID,
		Status:  model.AttendeeCancelled,
	})
	if promoted != nil {
		publishRegistration(c, queue.KindAttendeePromoted, promoted)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListMine handles GET /v1/registrations and returns the caller's
// active registrations with event summaries.
func (h *RegistrationHandler) ListMine(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	details, err := h.Attendees.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list registrations"})
	}
	return c.JSON(http.StatusOK, details)
}

// publishRegistration emits a registration event to the broker.
// Publishing happens after the database commit and failures are
// ignored: the queue is a notification channel, not a source of
// truth.
func publishRegistration(c echo.Context, kind string, a *model.Attendee) {
	_ = queuepublisher.PublishRegistrationEvent(c.Request().Context(), queue.RegistrationEvent{
		Kind:       kind,
		AttendeeID: a.ID,
		EventID:    a.EventID,
		UserID:     a.UserID,
		Status:     string(a.Status),
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// publishPromotions emits one promotion event per attendee promoted
// by a capacity change.
func publishPromotions(c echo.Context, promoted []*model.Attendee) {
	for _, a := range promoted {
		publishRegistration(c, queue.KindAttendeePromoted, a)
	}
}
