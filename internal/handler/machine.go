package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/graphuraprojects/agrirent/internal/model"
	"github.com/graphuraprojects/agrirent/internal/repository"
	"github.com/graphuraprojects/agrirent/internal/service"
)

// MachineAPI is the part of service.MachineService the listing endpoints
// call.
type MachineAPI interface {
	Create(ctx context.Context, ownerID uint64, in service.MachineInput) (model.Machine, error)
	Update(ctx context.Context, ownerID, machineID uint64, in service.MachineInput) (model.Machine, error)
	Delete(ctx context.Context, actor model.Actor, machineID uint64) error
	Browse(ctx context.Context, f repository.MachineFilter) ([]model.Machine, error)
	Public(ctx context.Context, machineID uint64) (model.Machine, error)
	Mine(ctx context.Context, ownerID uint64) ([]model.Machine, error)
	PendingApproval(ctx context.Context) ([]model.Machine, error)
	Decide(ctx context.Context, machineID uint64, in service.ApprovalInput) (model.Machine, error)
	SetAvailability(ctx context.Context, ownerID, machineID uint64, in service.AvailabilityInput) (model.Availability, error)
	Availability(ctx context.Context, machineID uint64) (model.Availability, error)
}

// MachineHandler serves public browsing, owner listings and admin approval.
type MachineHandler struct {
	Machines MachineAPI
}

func NewMachineHandler(machines MachineAPI) *MachineHandler {
	if machines == nil {
		panic("nil machine service passed to NewMachineHandler")
	}
	return &MachineHandler{Machines: machines}
}

// maxPageSize caps ?limit on the public browse endpoint.
const maxPageSize = 100

// Browse: GET /api/machines?category=&q=&limit=&offset=.  Only approved and
// available machines are listed.
func (h *MachineHandler) Browse(c echo.Context) error {
	f := repository.MachineFilter{
		Category: model.Category(strings.ToLower(strings.TrimSpace(c.QueryParam("category")))),
		Search:   strings.TrimSpace(c.QueryParam("q")),
		Limit:    20,
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fail(c, http.StatusBadRequest, "limit must be a positive integer")
		}
		if n > maxPageSize {
			n = maxPageSize
		}
		f.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fail(c, http.StatusBadRequest, "offset must be a non-negative integer")
		}
		f.Offset = n
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	list, err := h.Machines.Browse(ctx, f)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, list)
}

// Get: GET /api/machines/:id.
func (h *MachineHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid machine id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	m, err := h.Machines.Public(ctx, id)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, m)
}

// GetAvailability: GET /api/machines/:id/availability.
func (h *MachineHandler) GetAvailability(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid machine id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	a, err := h.Machines.Availability(ctx, id)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, a)
}

// Create: POST /api/machines (owner).
func (h *MachineHandler) Create(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	var req service.MachineInput
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	m, err := h.Machines.Create(ctx, me.ID, req)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusCreated, m)
}

// Update: PUT /api/machines/:id (owner).
func (h *MachineHandler) Update(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid machine id")
	}
	var req service.MachineInput
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	m, err := h.Machines.Update(ctx, me.ID, id, req)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, m)
}

// Delete: DELETE /api/machines/:id (owner or admin).
func (h *MachineHandler) Delete(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid machine id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Machines.Delete(ctx, me, id); err != nil {
		return respondErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Mine: GET /api/my-machines (owner).
func (h *MachineHandler) Mine(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	list, err := h.Machines.Mine(ctx, me.ID)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, list)
}

// SetAvailability: PUT /api/machines/:id/availability (owner).
func (h *MachineHandler) SetAvailability(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid machine id")
	}
	var req service.AvailabilityInput
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	a, err := h.Machines.SetAvailability(ctx, me.ID, id, req)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, a)
}

// Pending: GET /api/admin/machines/pending (admin).
func (h *MachineHandler) Pending(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	list, err := h.Machines.PendingApproval(ctx)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, list)
}

// Approval: PATCH /api/machines/:id/approval (admin) with
// {"action": "approve"|"reject", "rejection_reason": "..."}.
func (h *MachineHandler) Approval(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid machine id")
	}
	var req service.ApprovalInput
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	m, err := h.Machines.Decide(ctx, id, req)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, m)
}
