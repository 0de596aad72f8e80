package handler // handler maps HTTP requests onto the service layer

import (
    "context"
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/graphuraprojects/agrirent/internal/middleware"
    "github.com/graphuraprojects/agrirent/internal/model"
    "github.com/graphuraprojects/agrirent/internal/service"
)

// requestTimeout bounds the service work done for one request.
const requestTimeout = 5 * time.Second

// envelope is the body of every JSON response.
type envelope struct {
    Success bool   `json:"success"`
    Message string `json:"message,omitempty"`
    Data    any    `json:"data,omitempty"`
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request().Context(), requestTimeout)
}

func ok(c echo.Context, status int, data any) error {
    return c.JSON(status, envelope{Success: true, Data: data})
}

func okMsg(c echo.Context, msg string) error {
    return c.JSON(http.StatusOK, envelope{Success: true, Message: msg})
}

func fail(c echo.Context, status int, msg string) error {
    return c.JSON(status, envelope{Success: false, Message: msg})
}

// statusOf maps a service error kind to its HTTP status.
func statusOf(err error) int {
    switch {
    case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrInvalidSignature):
        return http.StatusBadRequest
    case errors.Is(err, service.ErrUnauthorized):
        return http.StatusUnauthorized
    case errors.Is(err, service.ErrForbidden):
        return http.StatusForbidden
    case errors.Is(err, service.ErrNotFound):
        return http.StatusNotFound
    case errors.Is(err, service.ErrConflict):
        return http.StatusConflict
    case errors.Is(err, service.ErrPrecondition):
        return http.StatusPreconditionFailed
    case errors.Is(err, service.ErrGateway):
        return http.StatusBadGateway
    }
    return http.StatusInternalServerError
}

// respondErr writes err in the envelope.  Classified errors carry a message
// meant for clients; anything else is logged and reported generically.
func respondErr(c echo.Context, err error) error {
    status := statusOf(err)
    if status == http.StatusInternalServerError {
        c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
        return fail(c, status, "internal server error")
    }
    var se *service.Error
    if errors.As(err, &se) {
        return fail(c, status, se.Msg)
    }
    return fail(c, status, http.StatusText(status))
}

// actor returns the caller stored by the JWT middleware.
func actor(c echo.Context) (model.Actor, bool) {
    a, ok := middleware.Identity(c)
    return a, ok
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    if err != nil || id == 0 {
        return 0, errors.New("invalid " + name)
    }
    return id, nil
}
