package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/graphuraprojects/agrirent/internal/model"
	"github.com/graphuraprojects/agrirent/internal/service"
)

// PaymentAPI is the part of service.PaymentService the payment endpoints
// call.
type PaymentAPI interface {
	CreateOrder(ctx context.Context, farmerID uint64, in service.CreateOrderInput) (service.OrderResult, error)
	Verify(ctx context.Context, farmerID uint64, in service.VerifyInput) (service.VerifyResult, error)
	MarkFailed(ctx context.Context, farmerID uint64, in service.MarkFailedInput) (model.Payment, error)
	ListPayments(ctx context.Context, actor model.Actor) ([]model.Payment, error)
	Invoice(ctx context.Context, actor model.Actor, bookingID uint64) (model.Invoice, error)
}

// PaymentHandler serves checkout, verification and payment history.
type PaymentHandler struct {
	Payments PaymentAPI
}

func NewPaymentHandler(payments PaymentAPI) *PaymentHandler {
	if payments == nil {
		panic("nil payment service passed to NewPaymentHandler")
	}
	return &PaymentHandler{Payments: payments}
}

// CreateOrder: POST /api/payments/create-order (farmer).
func (h *PaymentHandler) CreateOrder(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	var req service.CreateOrderInput
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Payments.CreateOrder(ctx, me.ID, req)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusCreated, res)
}

// Verify: POST /api/payments/verify (farmer).
func (h *PaymentHandler) Verify(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	var req service.VerifyInput
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Payments.Verify(ctx, me.ID, req)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, res)
}

// Failed: POST /api/payments/failed (farmer).
func (h *PaymentHandler) Failed(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	var req service.MarkFailedInput
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	p, err := h.Payments.MarkFailed(ctx, me.ID, req)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, p)
}

// List: GET /api/payments.
func (h *PaymentHandler) List(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	list, err := h.Payments.ListPayments(ctx, me)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, list)
}

// Invoice: GET /api/invoices/:booking_id.
func (h *PaymentHandler) Invoice(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := pathID(c, "booking_id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid booking id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	inv, err := h.Payments.Invoice(ctx, me, id)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, inv)
}
