package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-registration/internal/admission"
	"github.com/iliyamo/event-registration/internal/lifecycle"
	"github.com/iliyamo/event-registration/internal/model"
	"github.com/iliyamo/event-registration/internal/repository"
)

// EventHandler bundles the dependencies for event management
// endpoints. Browsing and detail edits go straight to the
// repositories; anything touching capacity, occupancy or status goes
// through the admission service so it happens under the event lock.
type EventHandler struct {
	Events    *repository.EventRepo
	Attendees *repository.AttendeeRepo
	Admission *admission.Service
}

// NewEventHandler constructs an EventHandler with the provided
// dependencies. All dependencies must be non-nil.
func NewEventHandler(events *repository.EventRepo, attendees *repository.AttendeeRepo, adm *admission.Service) *EventHandler {
	if events == nil || attendees == nil || adm == nil {
		panic("nil dependency passed to NewEventHandler")
	}
	return &EventHandler{Events: events, Attendees: attendees, Admission: adm}
}

// eventResp is the JSON shape of an event returned by this handler.
type eventResp struct {
	ID          uint64   `json:"id"`
	OrganizerID uint64   `json:"organizer_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Capacity    uint32   `json:"capacity"`
	Occupancy   uint32   `json:"occupancy"`
	Remaining   uint32   `json:"remaining"`
	StartsAt    *string  `json:"starts_at,omitempty"`
	CreatedAt   string   `json:"created_at"`
	NextStages  []string `json:"allowed_transitions"`
}

func toEventResp(ev *model.Event) eventResp {
	resp := eventResp{
		ID:          ev.ID,
		OrganizerID: ev.OrganizerID,
		Name:        ev.Name,
		Description: ev.Description,
		Status:      string(ev.Status),
		Capacity:    ev.Capacity,
		Occupancy:   ev.Occupancy,
		Remaining:   ev.Remaining(),
		CreatedAt:   ev.CreatedAt.UTC().Format(time.RFC3339),
		NextStages:  []string{},
	}
	if ev.StartsAt != nil {
		iso := ev.StartsAt.UTC().Format(time.RFC3339)
		resp.StartsAt = &iso
	}
	for _, s := range lifecycle.AllowedTargets(ev.Status) {
		resp.NextStages = append(resp.NextStages, string(s))
	}
	return resp
}

// parseEventID reads the :id path parameter.
func parseEventID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid event id")
	}
	return id, nil
}

// ListEvents handles GET /v1/events. It returns all published events;
// drafts stay private to their organizers.
func (h *EventHandler) ListEvents(c echo.Context) error {
	events, err := h.Events.ListPublic(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list events"})
	}
	out := make([]eventResp, 0, len(events))
	for i := range events {
		out = append(out, toEventResp(&events[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// GetEvent handles GET /v1/events/:id. Draft events are reported as
// not found on this public route.
func (h *EventHandler) GetEvent(c echo.Context) error {
	id, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ev, err := h.Events.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load event"})
	}
	if ev.Status == model.StatusDraft {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
	}
	return c.JSON(http.StatusOK, toEventResp(ev))
}

// ListMyEvents handles GET /v1/me/events and returns every event the
// caller organizes, drafts included.
func (h *EventHandler) ListMyEvents(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	events, err := h.Events.ListByOrganizer(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list events"})
	}
	out := make([]eventResp, 0, len(events))
	for i := range events {
		out = append(out, toEventResp(&events[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// CreateEvent handles POST /v1/events. Events start in DRAFT unless
// the organizer publishes directly to UPCOMING; no other initial
// status is accepted.
func (h *EventHandler) CreateEvent(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Capacity    uint32  `json:"capacity"`
		Status      string  `json:"status"`
		StartsAt    *string `json:"starts_at"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	if body.Capacity == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "capacity must be a positive integer"})
	}
	status := model.StatusDraft
	if s := strings.ToUpper(strings.TrimSpace(body.Status)); s != "" {
		status = model.EventStatus(s)
		if status != model.StatusDraft && status != model.StatusUpcoming {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be DRAFT or UPCOMING"})
		}
	}
	var startsAt *time.Time
	if body.StartsAt != nil && strings.TrimSpace(*body.StartsAt) != "" {
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(*body.StartsAt))
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid starts_at format"})
		}
		utc := t.UTC()
		startsAt = &utc
	}
	ev := &model.Event{
		OrganizerID: userID,
		Name:        name,
		Description: strings.TrimSpace(body.Description),
		Status:      status,
		Capacity:    body.Capacity,
		StartsAt:    startsAt,
	}
	if err := h.Events.Create(c.Request().Context(), ev); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create event"})
	}
	return c.JSON(http.StatusCreated, toEventResp(ev))
}

// UpdateEvent handles PATCH /v1/events/:id. Name, description and
// start time are edited directly; a capacity change is delegated to
// the admission service because it may promote waitlisted attendees
// and must never undercut current occupancy.
func (h *EventHandler) UpdateEvent(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	var body struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Capacity    *uint32 `json:"capacity"`
		StartsAt    *string `json:"starts_at"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx := c.Request().Context()
	admin := isAdmin(c)

	ev, err := h.Events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load event"})
	}
	if !admin && !ev.IsOrganizer(userID) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	// Apply detail edits first.
	name := ev.Name
	if body.Name != nil {
		name = strings.TrimSpace(*body.Name)
		if name == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "name cannot be empty"})
		}
	}
	description := ev.Description
	if body.Description != nil {
		description = strings.TrimSpace(*body.Description)
	}
	startsAt := ev.StartsAt
	if body.StartsAt != nil {
		if strings.TrimSpace(*body.StartsAt) == "" {
			startsAt = nil
		} else {
			t, err := time.Parse(time.RFC3339, strings.TrimSpace(*body.StartsAt))
			if err != nil {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid starts_at format"})
			}
			utc := t.UTC()
			startsAt = &utc
		}
	}
	ev, err = h.Events.UpdateDetails(ctx, id, userID, admin, name, description, startsAt)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not update event"})
	}

	if body.Capacity != nil {
		if *body.Capacity == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "capacity must be a positive integer"})
		}
		updated, promoted, err := h.Admission.ChangeCapacity(ctx, id, userID, admin, *body.Capacity)
		if err != nil {
			switch {
			case errors.Is(err, admission.ErrCapacityBelowOccupancy):
				return c.JSON(http.StatusConflict, echo.Map{"error": "capacity_below_occupancy"})
			case errors.Is(err, lifecycle.ErrUnauthorized):
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			case errors.Is(err, admission.ErrConflict):
				return c.JSON(http.StatusConflict, echo.Map{"error": "conflict", "retryable": true})
			}
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not change capacity"})
		}
		updated.Name, updated.Description, updated.StartsAt = ev.Name, ev.Description, ev.StartsAt
		ev = updated
		publishPromotions(c, promoted)
	}
	return c.JSON(http.StatusOK, toEventResp(ev))
}

// Transition handles POST /v1/events/:id/transition. The status write
// happens under the same per-event lock as admissions, so closing an
// event can never race a registration being admitted.
func (h *EventHandler) Transition(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	var body struct {
		TargetStatus string `json:"target_status"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	target := model.EventStatus(strings.ToUpper(strings.TrimSpace(body.TargetStatus)))
	if target == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "target_status is required"})
	}
	ev, err := h.Admission.Transition(c.Request().Context(), id, userID, isAdmin(c), target)
	if err != nil {
		switch {
		case errors.Is(err, admission.ErrEventNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		case errors.Is(err, lifecycle.ErrUnauthorized):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		case errors.Is(err, lifecycle.ErrInvalidTransition):
			return c.JSON(http.StatusConflict, echo.Map{"error": "invalid_transition"})
		case errors.Is(err, admission.ErrConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": "conflict", "retryable": true})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not apply transition"})
	}
	return c.JSON(http.StatusOK, toEventResp(ev))
}

// attendeeResp is the JSON shape of a registration record in the
// organizer's attendee listing.
type attendeeResp struct {
	ID           uint64 `json:"id"`
	UserID       uint64 `json:"user_id"`
	Status       string `json:"status"`
	RegisteredAt string `json:"registered_at"`
}

// ListAttendees handles GET /v1/events/:id/attendees. Registered
// attendees come first, then the waitlist in promotion order.
func (h *EventHandler) ListAttendees(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ctx := c.Request().Context()
	ev, err := h.Events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load event"})
	}
	if !isAdmin(c) && !ev.IsOrganizer(userID) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	attendees, err := h.Attendees.ListByEvent(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list attendees"})
	}
	registered := make([]attendeeResp, 0)
	waitlisted := make([]attendeeResp, 0)
	for _, a := range attendees {
		resp := attendeeResp{
			ID:           a.ID,
			UserID:       a.UserID,
			Status:       string(a.Status),
			RegisteredAt: a.RegisteredAt.UTC().Format(time.RFC3339),
		}
		if a.Status == model.AttendeeRegistered {
			registered = append(registered, resp)
		} else {
			waitlisted = append(waitlisted, resp)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"event_id":   ev.ID,
		"capacity":   ev.Capacity,
		"occupancy":  ev.Occupancy,
		"registered": registered,
		"waitlist":   waitlisted,
	})
}

// AddOrganizer handles POST /v1/events/:id/organizers and grants
// co-organizer authority to another user.
func (h *EventHandler) AddOrganizer(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := parseEventID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	var body struct {
		UserID uint64 `json:"user_id"`
	}
	if err := c.Bind(&body); err != nil || body.UserID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id is required"})
	}
	ctx := c.Request().Context()
	ev, err := h.Events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load event"})
	}
	if !isAdmin(c) && !ev.IsOrganizer(userID) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	if err := h.Events.AddOrganizer(ctx, id, body.UserID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not add organizer"})
	}
	return c.NoContent(http.StatusNoContent)
}
