package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-registration/internal/handler"
	"github.com/iliyamo/event-registration/internal/middleware"
)

// RegisterRegistrations registers attendee-facing registration routes.
// Any authenticated role may register for an event; organizers and
// admins attend events too.
func RegisterRegistrations(e *echo.Echo, h *handler.RegistrationHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("ATTENDEE", "ORGANIZER", "ADMIN"),
	)
	g.POST("/events/:id/register", h.Register)
	g.DELETE("/events/:id/register", h.Unregister)
	g.GET("/registrations", h.ListMine)
}
