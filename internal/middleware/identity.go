package middleware

import (
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/graphuraprojects/agrirent/internal/model"
)

// Identity returns the authenticated caller, if JWTAuth ran and succeeded.
func Identity(c echo.Context) (model.Actor, bool) {
    id, ok := c.Get(CtxUserID).(uint64)
    if !ok || id == 0 {
        return model.Actor{}, false
    }
    role, _ := c.Get(CtxRole).(model.Role)
    return model.Actor{ID: id, Role: role}, true
}

// identityKey is the caller's id as used in rate limit keys; unauthenticated
// requests share "anon".
func identityKey(c echo.Context) string {
    if a, ok := Identity(c); ok {
        return strconv.FormatUint(a.ID, 10)
    }
    return "anon"
}
