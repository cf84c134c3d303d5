// Package router registers the HTTP routes of the reservation service.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/sake-tasting-reservation/internal/handler"
	"github.com/iliyamo/sake-tasting-reservation/internal/middleware"
	"github.com/iliyamo/sake-tasting-reservation/internal/utils"
)

// RegisterRoutes registers routes that need no authentication.  /healthz
// is used by load balancers and monitoring.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterDispatch mounts the action endpoint.  GET is accepted as well as
// POST because the booking widget reads availability through plain links.
// The rate limiter applies to both.
func RegisterDispatch(e *echo.Echo, a *handler.ActionHandler, limit echo.MiddlewareFunc) {
	e.GET("/exec", a.Exec, limit)
	e.POST("/exec", a.Exec, limit)
}

// RegisterAuth registers the admin login and the token check.  Login is
// rate limited like /exec.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	e.POST("/v1/auth/login", a.Login, limit)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole(utils.RoleAdmin))
	auth.GET("/me", a.Me)
}

// RegisterAdmin registers the REST mirror of the admin actions.  Every
// route requires a valid access token with the ADMIN role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(utils.RoleAdmin))

	g.GET("/bookings", h.ListBookings)
	g.GET("/bookings/:id", h.GetBooking)
	g.PATCH("/bookings/:id", h.UpdateBooking)
	g.DELETE("/bookings/:id", h.DeleteBooking)
}
