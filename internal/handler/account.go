package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/graphuraprojects/agrirent/internal/model"
	"github.com/graphuraprojects/agrirent/internal/service"
)

// AccountAPI is the part of service.AccountService the address and user
// administration endpoints call.
type AccountAPI interface {
	AddAddress(ctx context.Context, userID uint64, in service.AddressInput) (model.Address, error)
	Addresses(ctx context.Context, userID uint64) ([]model.Address, error)
	SetDefaultAddress(ctx context.Context, userID, addressID uint64) error
	DeleteAddress(ctx context.Context, userID, addressID uint64) error
	Users(ctx context.Context, role string) ([]model.User, error)
	SetBlocked(ctx context.Context, userID uint64, blocked bool) (model.User, error)
	DeleteUser(ctx context.Context, userID uint64) error
}

// AccountHandler serves a user's saved addresses and the admin user list.
type AccountHandler struct {
	Accounts AccountAPI
}

func NewAccountHandler(accounts AccountAPI) *AccountHandler {
	if accounts == nil {
		panic("nil account service passed to NewAccountHandler")
	}
	return &AccountHandler{Accounts: accounts}
}

// ListAddresses: GET /api/addresses.
func (h *AccountHandler) ListAddresses(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	list, err := h.Accounts.Addresses(ctx, me.ID)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, list)
}

// AddAddress: POST /api/addresses.
func (h *AccountHandler) AddAddress(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	var req service.AddressInput
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	a, err := h.Accounts.AddAddress(ctx, me.ID, req)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusCreated, a)
}

// SetDefaultAddress: PATCH /api/addresses/:id/default.
func (h *AccountHandler) SetDefaultAddress(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid address id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Accounts.SetDefaultAddress(ctx, me.ID, id); err != nil {
		return respondErr(c, err)
	}
	return okMsg(c, "default address updated")
}

// DeleteAddress: DELETE /api/addresses/:id.
func (h *AccountHandler) DeleteAddress(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid address id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Accounts.DeleteAddress(ctx, me.ID, id); err != nil {
		return respondErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListUsers: GET /api/admin/users?role=farmer.
func (h *AccountHandler) ListUsers(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	users, err := h.Accounts.Users(ctx, c.QueryParam("role"))
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, users)
}

// BlockUser: PATCH /api/admin/users/:id/block with {"blocked": bool}.  An
// empty body blocks.
func (h *AccountHandler) BlockUser(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	req := struct {
		Blocked *bool `json:"blocked"`
	}{}
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	blocked := req.Blocked == nil || *req.Blocked
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Accounts.SetBlocked(ctx, id, blocked)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, u)
}

// DeleteUser: DELETE /api/admin/users/:id.
func (h *AccountHandler) DeleteUser(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Accounts.DeleteUser(ctx, id); err != nil {
		return respondErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
