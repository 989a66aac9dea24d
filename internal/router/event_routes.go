package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-registration/internal/handler"
	"github.com/iliyamo/event-registration/internal/middleware"
)

// RegisterEvents registers the event browse and management endpoints.
// Browse routes are public; management routes require the ORGANIZER or
// ADMIN role. The optional cache middleware wraps the public reads.
func RegisterEvents(e *echo.Echo, h *handler.EventHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	if cache != nil {
		e.GET("/v1/events", h.ListEvents, cache)
		e.GET("/v1/events/:id", h.GetEvent, cache)
	} else {
		e.GET("/v1/events", h.ListEvents)
		e.GET("/v1/events/:id", h.GetEvent)
	}

	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("ORGANIZER", "ADMIN"),
	)
	g.POST("/events", h.CreateEvent)
	g.PATCH("/events/:id", h.UpdateEvent)
	g.POST("/events/:id/transition", h.Transition)
	g.GET("/events/:id/attendees", h.ListAttendees)
	g.POST("/events/:id/organizers", h.AddOrganizer)
	g.GET("/me/events", h.ListMyEvents)
}
