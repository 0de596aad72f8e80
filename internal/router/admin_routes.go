package router

import (
	"github.com/labstack/echo/v4"

	"github.com/graphuraprojects/agrirent/internal/middleware"
	"github.com/graphuraprojects/agrirent/internal/model"
)

// RegisterAdmin mounts machine approval, user administration and the coupon
// catalogue.
func RegisterAdmin(e *echo.Echo, d Deps) {
	g := e.Group("/api",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.PATCH("/machines/:id/approval", d.Machines.Approval, middleware.PurgeCache(d.Cache, d.Redis))
	g.GET("/admin/machines/pending", d.Machines.Pending)

	g.GET("/admin/users", d.Accounts.ListUsers)
	g.PATCH("/admin/users/:id/block", d.Accounts.BlockUser)
	g.DELETE("/admin/users/:id", d.Accounts.DeleteUser)

	g.GET("/admin/coupons", d.Coupons.List)
	g.POST("/admin/coupons", d.Coupons.Create)
	g.PATCH("/admin/coupons/:id", d.Coupons.Update)
	g.DELETE("/admin/coupons/:id", d.Coupons.Delete)
}
