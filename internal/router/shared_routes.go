package router

import (
	"github.com/labstack/echo/v4"

	"github.com/graphuraprojects/agrirent/internal/middleware"
	"github.com/graphuraprojects/agrirent/internal/model"
)

// RegisterShared mounts endpoints open to every signed-in role.  The
// services filter results by the caller, so a farmer sees their own
// bookings and an owner the bookings on their machines.
func RegisterShared(e *echo.Echo, d Deps) {
	g := e.Group("/api",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleFarmer, model.RoleOwner, model.RoleAdmin),
	)
	g.GET("/me", d.Auth.Me)

	g.GET("/addresses", d.Accounts.ListAddresses)
	g.POST("/addresses", d.Accounts.AddAddress)
	g.PATCH("/addresses/:id/default", d.Accounts.SetDefaultAddress)
	g.DELETE("/addresses/:id", d.Accounts.DeleteAddress)

	g.GET("/bookings", d.Bookings.List)
	g.GET("/bookings/:id", d.Bookings.Get)
	g.GET("/payments", d.Payments.List)
	g.GET("/invoices/:booking_id", d.Payments.Invoice)
}
