package middleware // reusable HTTP middleware: auth, role gates, rate limiting, caching

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/graphuraprojects/agrirent/internal/utils"
)

// Context keys set by JWTAuth.
const (
    CtxUserID = "user_id"
    CtxRole   = "role"
)

// JWTAuth validates a Bearer access token and stores the caller's id
// (uint64) and role (model.Role) in the context under CtxUserID and CtxRole.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return deny(c, http.StatusUnauthorized, "missing bearer token")
            }
            claims, err := utils.ParseAccessToken(secret, strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
            if err != nil {
                return deny(c, http.StatusUnauthorized, "invalid token")
            }
            c.Set(CtxUserID, claims.UserID)
            c.Set(CtxRole, claims.Role)
            return next(c)
        }
    }
}

// deny writes the error envelope shared with the handlers.
func deny(c echo.Context, status int, msg string) error {
    return c.JSON(status, map[string]any{"success": false, "message": msg})
}
