package router

import (
	"github.com/labstack/echo/v4"

	"github.com/graphuraprojects/agrirent/internal/middleware"
	"github.com/graphuraprojects/agrirent/internal/model"
)

// RegisterFarmer mounts booking and checkout endpoints for farmers.  The
// payment routes share a dedicated rate limit bucket.
func RegisterFarmer(e *echo.Echo, d Deps) {
	g := e.Group("/api",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleFarmer),
	)
	g.POST("/bookings/create", d.Bookings.Create)
	g.PATCH("/bookings/:id/cancel", d.Bookings.Cancel)

	pay := e.Group("/api/payments",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleFarmer),
		middleware.NewTokenBucket(d.PaymentLimit, d.Redis),
	)
	pay.POST("/create-order", d.Payments.CreateOrder)
	pay.POST("/verify", d.Payments.Verify)
	pay.POST("/failed", d.Payments.Failed)
}
