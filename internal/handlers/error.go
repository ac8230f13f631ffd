package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/authhub/authhub/internal/identity"
	"github.com/authhub/authhub/internal/wire"
)

// writeError translates a flow/directory error into the wire error envelope.
// Every kind except best-effort audit (which never reaches here) propagates to
// the caller unchanged in meaning; nothing is retried or masked.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, identity.ErrVerificationFailed):
		return c.JSON(http.StatusUnauthorized, wire.ErrorResponse{Code: wire.CodeVerificationFailed, Message: err.Error()})
	case errors.Is(err, identity.ErrCredentialInvalid):
		return c.JSON(http.StatusUnauthorized, wire.ErrorResponse{Code: wire.CodeCredentialInvalid, Message: err.Error()})
	case errors.Is(err, identity.ErrNotFound):
		return c.JSON(http.StatusNotFound, wire.ErrorResponse{Code: wire.CodeNotFound, Message: err.Error()})
	case errors.Is(err, identity.ErrAudienceMismatch):
		return c.JSON(http.StatusInternalServerError, wire.ErrorResponse{Code: wire.CodeAudienceMismatch, Message: err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, wire.ErrorResponse{Code: wire.CodeInternal, Message: err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, wire.ErrorResponse{Code: wire.CodeBadRequest, Message: msg})
}
