package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/graphuraprojects/agrirent/internal/model"
	"github.com/graphuraprojects/agrirent/internal/service"
)

// BookingAPI is the part of service.BookingService the booking endpoints
// call.
type BookingAPI interface {
	Create(ctx context.Context, farmerID uint64, in service.CreateBookingInput) (model.Booking, error)
	Decide(ctx context.Context, actor model.Actor, bookingID uint64, in service.DecisionInput) (service.DecisionResult, error)
	Cancel(ctx context.Context, actor model.Actor, bookingID uint64) (model.Booking, error)
	Complete(ctx context.Context, actor model.Actor, bookingID uint64) (model.Booking, error)
	List(ctx context.Context, actor model.Actor, status string) ([]model.Booking, error)
	Get(ctx context.Context, actor model.Actor, bookingID uint64) (model.Booking, error)
}

// BookingHandler serves the booking lifecycle.  Role gates are applied by
// the router; the service re-checks ownership of the booking itself.
type BookingHandler struct {
	Bookings BookingAPI
}

func NewBookingHandler(bookings BookingAPI) *BookingHandler {
	if bookings == nil {
		panic("nil booking service passed to NewBookingHandler")
	}
	return &BookingHandler{Bookings: bookings}
}

// Create: POST /api/bookings/create (farmer).
func (h *BookingHandler) Create(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	var req service.CreateBookingInput
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	b, err := h.Bookings.Create(ctx, me.ID, req)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusCreated, b)
}

// Decision: PATCH /api/bookings/:id/decision (owner, admin) with
// {"action": "accept"|"reject", "rejection_reason": "..."}.
func (h *BookingHandler) Decision(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid booking id")
	}
	var req service.DecisionInput
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Bookings.Decide(ctx, me, id, req)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, res)
}

// Cancel: PATCH /api/bookings/:id/cancel (farmer).
func (h *BookingHandler) Cancel(c echo.Context) error {
	return h.transition(c, h.Bookings.Cancel)
}

// Complete: PATCH /api/bookings/:id/complete (owner, admin).
func (h *BookingHandler) Complete(c echo.Context) error {
	return h.transition(c, h.Bookings.Complete)
}

func (h *BookingHandler) transition(c echo.Context, do func(context.Context, model.Actor, uint64) (model.Booking, error)) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid booking id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	b, err := do(ctx, me, id)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, b)
}

// List: GET /api/bookings?status=pending.
func (h *BookingHandler) List(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	list, err := h.Bookings.List(ctx, me, c.QueryParam("status"))
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, list)
}

// Get: GET /api/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid booking id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	b, err := h.Bookings.Get(ctx, me, id)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, b)
}
