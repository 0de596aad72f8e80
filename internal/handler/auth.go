package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/graphuraprojects/agrirent/internal/model"
	"github.com/graphuraprojects/agrirent/internal/service"
)

// AuthAPI is the part of service.AuthService the auth endpoints call.
type AuthAPI interface {
	Register(ctx context.Context, in service.RegisterInput) (service.RegisterResult, error)
	VerifyOTP(ctx context.Context, in service.VerifyOTPInput) (service.AuthResult, error)
	Login(ctx context.Context, in service.LoginInput) (service.AuthResult, error)
	Refresh(ctx context.Context, raw string) (service.AuthResult, error)
	Logout(ctx context.Context, raw string) error
	Me(ctx context.Context, userID uint64) (model.User, error)
}

// AuthHandler serves sign-up, sign-in and token endpoints.
type AuthHandler struct {
	Auth AuthAPI
}

func NewAuthHandler(auth AuthAPI) *AuthHandler {
	if auth == nil {
		panic("nil auth service passed to NewAuthHandler")
	}
	return &AuthHandler{Auth: auth}
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

// Register: POST /api/auth/register.  Stores the sign-up and emails an OTP;
// the account exists only after /auth/verify-otp.
func (h *AuthHandler) Register(c echo.Context) error {
	var req service.RegisterInput
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Auth.Register(ctx, req)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusAccepted, envelope{Success: true, Message: "verification code sent", Data: res})
}

// VerifyOTP: POST /api/auth/verify-otp.
func (h *AuthHandler) VerifyOTP(c echo.Context) error {
	var req service.VerifyOTPInput
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Auth.VerifyOTP(ctx, req)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusCreated, res)
}

// Login: POST /api/auth/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req service.LoginInput
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Auth.Login(ctx, req)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, res)
}

// Refresh: POST /api/auth/refresh.  Rotates the refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, res)
}

// Logout: POST /api/auth/logout.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Auth.Logout(ctx, req.RefreshToken); err != nil {
		return respondErr(c, err)
	}
	return okMsg(c, "logged out")
}

// Me: GET /api/me.
func (h *AuthHandler) Me(c echo.Context) error {
	me, found := actor(c)
	if !found {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Auth.Me(ctx, me.ID)
	if err != nil {
		return respondErr(c, err)
	}
	return ok(c, http.StatusOK, u)
}
