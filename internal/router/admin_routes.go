package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/shift-signup/internal/handler"
	"github.com/iliyamo/shift-signup/internal/middleware"
	"github.com/iliyamo/shift-signup/internal/model"
)

// RegisterAdmin registers the admin endpoints under /v1/admin.  Every route
// requires a valid JWT; viewers may read, only super admins may write.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleSuper, model.RoleViewer),
	)
	g.GET("/slots", h.ListSlots)
	g.GET("/slots/:id/bookings", h.Bookings)

	super := middleware.RequireRole(model.RoleSuper)
	g.POST("/slots", h.CreateSlot, super)
	g.PUT("/slots/:id", h.UpdateSlot, super)
	g.DELETE("/slots/:id", h.DeleteSlot, super)
	g.DELETE("/slots/:id/bookings/:ref", h.DeleteBooking, super)
}
