package router

import (
	"github.com/labstack/echo/v4"

	"github.com/graphuraprojects/agrirent/internal/middleware"
)

// RegisterAuth mounts the unauthenticated sign-up and token endpoints under
// /api/auth, behind their own rate limit bucket.
func RegisterAuth(e *echo.Echo, d Deps) {
	g := e.Group("/api/auth", middleware.NewTokenBucket(d.AuthLimit, d.Redis))
	g.POST("/register", d.Auth.Register)
	g.POST("/verify-otp", d.Auth.VerifyOTP)
	g.POST("/login", d.Auth.Login)
	g.POST("/refresh", d.Auth.Refresh)
	g.POST("/logout", d.Auth.Logout)
}

// RegisterPublic mounts guest browsing.  Only approved, available machines
// are served, and responses come from the Redis cache when possible.
func RegisterPublic(e *echo.Echo, d Deps) {
	g := e.Group("/api", middleware.NewRedisCache(d.Cache, d.Redis))
	g.GET("/machines", d.Machines.Browse)
	g.GET("/machines/:id", d.Machines.Get)
	g.GET("/machines/:id/availability", d.Machines.GetAvailability)
}
