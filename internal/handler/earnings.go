package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/graphuraprojects/agrirent/internal/model"
	"github.com/graphuraprojects/agrirent/internal/service"
)

// EarningsAPI is the part of service.EarningsService the dashboard calls.
type EarningsAPI interface {
	Summary(ctx context.Context, actor model.Actor) (service.Summary, error)
	TotalRevenue(ctx context.Context, actor model.Actor, rangeName string, now time.Time) (service.RevenueReport, error)
	Trend(ctx context.Context, actor model.Actor, rangeName, granularity string, now time.Time) (service.TrendReport, error)
}

// EarningsHandler serves the owner and admin dashboards.  Responses are
// computed per request and never cached.
type EarningsHandler struct {
	Earnings EarningsAPI
	Now      func() time.Time
}

func NewEarningsHandler(earnings EarningsAPI) *EarningsHandler {
	if earnings == nil {
		panic("nil earnings service passed to NewEarningsHandler")
	}
	return &EarningsHandler{Earnings: earnings, Now: time.Now}
}

// Summary: GET /api/earnings.
func (h *EarningsHandler) Summary(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	s, err := h.Earnings.Summary(ctx, me)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, s)
}

// TotalRevenue: GET /api/dashboard/total-revenue?range=month|last|ytd.
func (h *EarningsHandler) TotalRevenue(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	r, err := h.Earnings.TotalRevenue(ctx, me, c.QueryParam("range"), h.Now())
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, r)
}

// Trend: GET /api/dashboard/earnings-trend?range=ytd&granularity=month|week.
func (h *EarningsHandler) Trend(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	r, err := h.Earnings.Trend(ctx, me, c.QueryParam("range"), c.QueryParam("granularity"), h.Now())
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, r)
}
