package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/graphuraprojects/agrirent/internal/model"
	"github.com/graphuraprojects/agrirent/internal/service"
)

// CouponAPI is service.CouponService as seen by the admin endpoints.
type CouponAPI interface {
	Create(ctx context.Context, in service.CouponInput) (model.Coupon, error)
	List(ctx context.Context) ([]model.Coupon, error)
	Update(ctx context.Context, id uint64, in service.CouponPatchInput) (model.Coupon, error)
	Delete(ctx context.Context, id uint64) error
}

// CouponHandler serves the admin coupon catalogue.
type CouponHandler struct {
	Coupons CouponAPI
}

func NewCouponHandler(coupons CouponAPI) *CouponHandler {
	if coupons == nil {
		panic("nil coupon service passed to NewCouponHandler")
	}
	return &CouponHandler{Coupons: coupons}
}

// List: GET /api/admin/coupons.
func (h *CouponHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	list, err := h.Coupons.List(ctx)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, list)
}

// Create: POST /api/admin/coupons.
func (h *CouponHandler) Create(c echo.Context) error {
	var req service.CouponInput
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	cp, err := h.Coupons.Create(ctx, req)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusCreated, cp)
}

// Update: PATCH /api/admin/coupons/:id.
func (h *CouponHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid coupon id")
	}
	var req service.CouponPatchInput
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	cp, err := h.Coupons.Update(ctx, id, req)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, cp)
}

// Delete: DELETE /api/admin/coupons/:id.
func (h *CouponHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid coupon id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Coupons.Delete(ctx, id); err != nil {
		return respondErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
