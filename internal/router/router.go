package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/graphuraprojects/agrirent/internal/config"
	"github.com/graphuraprojects/agrirent/internal/handler"
)

// Deps carries everything the route table needs.  Redis may be nil, which
// disables rate limiting and the browse cache.
type Deps struct {
	Auth     *handler.AuthHandler
	Accounts *handler.AccountHandler
	Machines *handler.MachineHandler
	Bookings *handler.BookingHandler
	Payments *handler.PaymentHandler
	Earnings *handler.EarningsHandler
	Coupons  *handler.CouponHandler
	Health   echo.HandlerFunc

	JWTSecret    string
	Redis        *redis.Client
	Cache        config.CacheConfig
	AuthLimit    config.RateLimitConfig
	PaymentLimit config.RateLimitConfig
}

// Register mounts every route on e.  Everything except /healthz lives under
// /api; each audience gets its own group so the role gate is visible next to
// the routes it protects.
func Register(e *echo.Echo, d Deps) {
	if d.Health != nil {
		e.GET("/healthz", d.Health)
	}
	RegisterAuth(e, d)
	RegisterPublic(e, d)
	RegisterShared(e, d)
	RegisterFarmer(e, d)
	RegisterOwner(e, d)
	RegisterAdmin(e, d)
}
