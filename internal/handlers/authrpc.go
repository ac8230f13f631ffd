// Package handlers exposes the provider side of the auth RPC contract.
package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/authhub/authhub/internal/authflow"
	"github.com/authhub/authhub/internal/identity"
	"github.com/authhub/authhub/internal/wire"
)

// AuthRPCHandler serves the login, verification, captcha-flag, and session
// telemetry operations.
type AuthRPCHandler struct {
	flow *authflow.Service
}

// NewAuthRPCHandler creates the auth RPC handler.
func NewAuthRPCHandler(flow *authflow.Service) *AuthRPCHandler {
	return &AuthRPCHandler{flow: flow}
}

// Register mounts the auth operations on the Echo instance.
func (h *AuthRPCHandler) Register(e *echo.Echo) {
	e.POST(wire.PathLoginByCredentials, h.LoginByCredentials)
	e.POST(wire.PathLoginByID, h.LoginByID)
	e.POST(wire.PathLoginByAccount, h.LoginByAccount)
	e.POST(wire.PathLoginByPhone, h.LoginByPhone)
	e.POST(wire.PathLoginByEmail, h.LoginByEmail)
	e.POST(wire.PathValidateCode, h.ValidateCode)
	e.POST(wire.PathCaptchaEnabledForB, h.CaptchaEnabledForB)
	e.POST(wire.PathCaptchaEnabledForC, h.CaptchaEnabledForC)
	e.POST(wire.PathSessionCount, h.SessionCount)
	e.POST(wire.PathThirdPartyCount, h.ThirdPartyUserCount)
}

// LoginByCredentials runs the captcha-gated account/password flow.
func (h *AuthRPCHandler) LoginByCredentials(c echo.Context) error {
	var req wire.CredentialsLoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	audience, err := identity.ParseAudience(req.Audience)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if strings.TrimSpace(req.Account) == "" || strings.TrimSpace(req.Password) == "" {
		return badRequest(c, "account and password are required")
	}
	token, err := h.flow.LoginWithCredentials(c.Request().Context(), audience, req.Account, req.Password, req.Code, req.CodeRequestID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, wire.TokenResponse{Token: token})
}

// LoginByID logs in a trusted user by directory id.
func (h *AuthRPCHandler) LoginByID(c echo.Context) error {
	var req wire.IDLoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	audience, err := identity.ParseAudience(req.Audience)
	if err != nil {
		return badRequest(c, err.Error())
	}
	token, err := h.flow.LoginByID(c.Request().Context(), audience, req.UserID, req.Device)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, wire.TokenResponse{Token: token})
}

// LoginByAccount logs in a trusted user by account.
func (h *AuthRPCHandler) LoginByAccount(c echo.Context) error {
	var req wire.AccountLoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	audience, err := identity.ParseAudience(req.Audience)
	if err != nil {
		return badRequest(c, err.Error())
	}
	token, err := h.flow.LoginByAccount(c.Request().Context(), audience, req.Account, req.Device)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, wire.TokenResponse{Token: token})
}

// LoginByPhone logs in by phone, provisioning a missing user first.
func (h *AuthRPCHandler) LoginByPhone(c echo.Context) error {
	var req wire.PhoneLoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	audience, err := identity.ParseAudience(req.Audience)
	if err != nil {
		return badRequest(c, err.Error())
	}
	token, err := h.flow.LoginByPhone(c.Request().Context(), audience, req.Phone, req.Device)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, wire.TokenResponse{Token: token})
}

// LoginByEmail logs in by email, provisioning a missing user first.
func (h *AuthRPCHandler) LoginByEmail(c echo.Context) error {
	var req wire.EmailLoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	audience, err := identity.ParseAudience(req.Audience)
	if err != nil {
		return badRequest(c, err.Error())
	}
	token, err := h.flow.LoginByEmail(c.Request().Context(), audience, req.Email, req.Device)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, wire.TokenResponse{Token: token})
}

// ValidateCode consumes a verification-code challenge; success is an empty 200.
func (h *AuthRPCHandler) ValidateCode(c echo.Context) error {
	var req wire.ValidateCodeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.flow.ValidateCode(req.Subject, req.Code, req.CodeRequestID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

// CaptchaEnabledForB reports the back-office captcha flag.
func (h *AuthRPCHandler) CaptchaEnabledForB(c echo.Context) error {
	return c.JSON(http.StatusOK, wire.FlagResponse{Enabled: h.flow.CaptchaEnabled(identity.AudienceBackOffice)})
}

// CaptchaEnabledForC reports the customer captcha flag.
func (h *AuthRPCHandler) CaptchaEnabledForC(c echo.Context) error {
	return c.JSON(http.StatusOK, wire.FlagResponse{Enabled: h.flow.CaptchaEnabled(identity.AudienceCustomer)})
}

// SessionCount returns the online-session snapshot.
func (h *AuthRPCHandler) SessionCount(c echo.Context) error {
	return c.JSON(http.StatusOK, h.flow.SessionCounts())
}

// ThirdPartyUserCount returns the federated third-party user total.
func (h *AuthRPCHandler) ThirdPartyUserCount(c echo.Context) error {
	count, err := h.flow.ThirdPartyUserCount(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, wire.CountResponse{Count: count})
}
