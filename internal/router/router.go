package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/shift-signup/internal/config"
	"github.com/iliyamo/shift-signup/internal/handler"
	"github.com/iliyamo/shift-signup/internal/middleware"
	"github.com/iliyamo/shift-signup/internal/model"
)

// RegisterRoutes registers the routes that need no authentication.
func RegisterRoutes(e *echo.Echo, rdb redis.UniversalClient) {
	e.GET("/healthz", handler.Health(rdb))
}

// RegisterAuth registers the admin session endpoints.  Register, login,
// refresh and logout live under /v1/auth; /v1/me requires an access token
// of any admin role.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout) // accepts a refresh token or a bearer token

	me := e.Group("/v1/me", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleSuper, model.RoleViewer))
	me.GET("", a.Me)
	me.PUT("/password", a.ChangePassword)
}

// RegisterPublic registers the unauthenticated slot endpoints.  Listings go
// through the response cache; writes go through the rate limiter.
func RegisterPublic(e *echo.Echo, h *handler.SlotHandler, rdb redis.UniversalClient, cfg config.Config) {
	cache := middleware.NewRedisCache(cfg.Cache, rdb)
	limit := middleware.NewTokenBucket(cfg.RateLimit, rdb)

	e.GET("/v1/slots", h.ListOpen, cache)
	e.GET("/v1/slots/:id", h.Get, cache)
	e.POST("/v1/slots/:id/signup", h.Signup, limit)
	e.POST("/v1/slots/:id/employee-signup", h.EmployeeSignup, limit)
	e.POST("/v1/employees", h.RegisterEmployee, limit)
}
