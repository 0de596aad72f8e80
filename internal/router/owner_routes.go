package router

import (
	"github.com/labstack/echo/v4"

	"github.com/graphuraprojects/agrirent/internal/middleware"
	"github.com/graphuraprojects/agrirent/internal/model"
)

// RegisterOwner mounts listing management for owners, plus the booking
// decisions and dashboards that owners share with admins.  Listing writes
// purge the browse cache.
func RegisterOwner(e *echo.Echo, d Deps) {
	g := e.Group("/api",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleOwner),
		middleware.PurgeCache(d.Cache, d.Redis),
	)
	g.POST("/machines", d.Machines.Create)
	g.PUT("/machines/:id", d.Machines.Update)
	g.PUT("/machines/:id/availability", d.Machines.SetAvailability)
	g.GET("/my-machines", d.Machines.Mine)

	staff := e.Group("/api",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleOwner, model.RoleAdmin),
	)
	staff.DELETE("/machines/:id", d.Machines.Delete, middleware.PurgeCache(d.Cache, d.Redis))
	staff.PATCH("/bookings/:id/decision", d.Bookings.Decision)
	staff.PATCH("/bookings/:id/complete", d.Bookings.Complete)

	staff.GET("/earnings", d.Earnings.Summary)
	staff.GET("/dashboard/total-revenue", d.Earnings.TotalRevenue)
	staff.GET("/dashboard/earnings-trend", d.Earnings.Trend)
}
