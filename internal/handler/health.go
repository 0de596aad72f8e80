package handler // declare the package name; contains HTTP handlers

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
)

// Check probes one backing service.
type Check func(ctx context.Context) error

// Health returns the health-check endpoint used by load balancers.  Every
// named check must pass within two seconds for a 200; otherwise the
// response is 503 and lists the failing checks.
func Health(checks map[string]Check) echo.HandlerFunc {
    return func(c echo.Context) error {
        ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
        defer cancel()

        status := map[string]string{}
        healthy := true
        for name, check := range checks {
            if err := check(ctx); err != nil {
                status[name] = err.Error()
                healthy = false
                continue
            }
            status[name] = "ok"
        }
        if !healthy {
            return c.JSON(http.StatusServiceUnavailable, envelope{Success: false, Message: "degraded", Data: status})
        }
        return ok(c, http.StatusOK, status)
    }
}
