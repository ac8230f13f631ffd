package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/authhub/authhub/internal/audit"
	"github.com/authhub/authhub/internal/identity"
	"github.com/authhub/authhub/internal/wire"
)

// UserRPCHandler serves the lookup, provisioning, bulk/aggregate, audit, and
// registration operations. Lookups narrow the directory record to the shape of
// the requested audience before it crosses the boundary; a missing user is a
// null body, never an error.
type UserRPCHandler struct {
	dir      identity.Directory
	recorder *audit.Recorder
}

// NewUserRPCHandler creates the user RPC handler.
func NewUserRPCHandler(dir identity.Directory, recorder *audit.Recorder) *UserRPCHandler {
	return &UserRPCHandler{dir: dir, recorder: recorder}
}

// Register mounts the user operations on the Echo instance.
func (h *UserRPCHandler) Register(e *echo.Echo) {
	e.POST(wire.PathGetUserByID, h.lookup(identity.ChannelID))
	e.POST(wire.PathGetUserByAccount, h.lookup(identity.ChannelAccount))
	e.POST(wire.PathGetUserByPhone, h.lookup(identity.ChannelPhone))
	e.POST(wire.PathGetUserByEmail, h.lookup(identity.ChannelEmail))
	e.POST(wire.PathCreateUserWithPhone, h.create(identity.ChannelPhone))
	e.POST(wire.PathCreateUserWithEmail, h.create(identity.ChannelEmail))
	e.POST(wire.PathListUsersByIDs, h.ListUsersByIDs)
	e.POST(wire.PathRolesByUserID, h.RolesByUserID)
	e.POST(wire.PathButtonCodes, h.ButtonCodes)
	e.POST(wire.PathMobileButtonCodes, h.MobileButtonCodes)
	e.POST(wire.PathPermissions, h.Permissions)
	e.POST(wire.PathRecordLoginInfo, h.RecordLoginInfo)
	e.POST(wire.PathRegister, h.DoRegister)
}

// lookup builds the handler for one lookup channel. Account and phone have
// independent resolution paths for both audiences; the key is only ever
// matched against the column the channel names.
func (h *UserRPCHandler) lookup(channel identity.Channel) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req wire.LookupRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, err.Error())
		}
		audience, err := identity.ParseAudience(req.Audience)
		if err != nil {
			return badRequest(c, err.Error())
		}
		if strings.TrimSpace(req.Key) == "" {
			return badRequest(c, "lookup key is required")
		}
		user, err := h.dir.FindUser(c.Request().Context(), audience, channel, req.Key)
		if errors.Is(err, identity.ErrNotFound) {
			return c.JSON(http.StatusOK, nil)
		}
		if err != nil {
			return writeError(c, err)
		}
		return writeNarrowed(c, audience, user)
	}
}

// create builds the handler for one provisioning channel (idempotent upsert).
func (h *UserRPCHandler) create(channel identity.Channel) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req wire.ContactCreateRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, err.Error())
		}
		audience, err := identity.ParseAudience(req.Audience)
		if err != nil {
			return badRequest(c, err.Error())
		}
		if strings.TrimSpace(req.Contact) == "" {
			return badRequest(c, "contact is required")
		}
		user, err := h.dir.CreateUserWithContact(c.Request().Context(), audience, channel, req.Contact)
		if err != nil {
			return writeError(c, err)
		}
		return writeNarrowed(c, audience, user)
	}
}

func writeNarrowed(c echo.Context, audience identity.Audience, user identity.User) error {
	switch audience {
	case identity.AudienceBackOffice:
		narrowed, err := user.NarrowBackOffice()
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, narrowed)
	default:
		narrowed, err := user.NarrowCustomer()
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, narrowed)
	}
}

// ListUsersByIDs returns the users' raw records as one encoded string.
func (h *UserRPCHandler) ListUsersByIDs(c echo.Context) error {
	var req wire.IDListRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	records, err := h.dir.ListUsersByIDs(c.Request().Context(), req.IDs)
	if err != nil {
		return writeError(c, err)
	}
	return writeRecords(c, records)
}

// RolesByUserID returns the user's role records as one encoded string.
func (h *UserRPCHandler) RolesByUserID(c echo.Context) error {
	var req wire.UserIDRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if strings.TrimSpace(req.UserID) == "" {
		return badRequest(c, "userId is required")
	}
	records, err := h.dir.RolesByUserID(c.Request().Context(), req.UserID)
	if err != nil {
		return writeError(c, err)
	}
	return writeRecords(c, records)
}

// ButtonCodes returns web button codes for the given user/role ids.
func (h *UserRPCHandler) ButtonCodes(c echo.Context) error {
	var req wire.IDListRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	codes, err := h.dir.ButtonCodesByUserAndRoleIDs(c.Request().Context(), req.IDs)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, wire.CodesResponse{Codes: codes})
}

// MobileButtonCodes returns mobile button codes for the given user/role ids.
func (h *UserRPCHandler) MobileButtonCodes(c echo.Context) error {
	var req wire.IDListRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	codes, err := h.dir.MobileButtonCodesByUserAndRoleIDs(c.Request().Context(), req.IDs)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, wire.CodesResponse{Codes: codes})
}

// Permissions returns permission records as one encoded string.
func (h *UserRPCHandler) Permissions(c echo.Context) error {
	var req wire.PermissionsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	records, err := h.dir.PermissionsByUserAndRoleIDs(c.Request().Context(), req.IDs, req.OrgID)
	if err != nil {
		return writeError(c, err)
	}
	return writeRecords(c, records)
}

func writeRecords(c echo.Context, records []identity.Record) error {
	encoded, err := wire.EncodeRecords(records)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, wire.RecordsResponse{Records: encoded})
}

// RecordLoginInfo hands last-login bookkeeping to the audit worker and returns
// immediately; the caller never observes the outcome.
func (h *UserRPCHandler) RecordLoginInfo(c echo.Context) error {
	var req wire.RecordLoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if strings.TrimSpace(req.UserID) == "" {
		return badRequest(c, "userId is required")
	}
	h.recorder.Record(req.UserID, req.Device)
	return c.NoContent(http.StatusOK)
}

// DoRegister creates a new account record.
func (h *UserRPCHandler) DoRegister(c echo.Context) error {
	var req wire.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if strings.TrimSpace(req.Account) == "" || strings.TrimSpace(req.Password) == "" {
		return badRequest(c, "account and password are required")
	}
	if err := h.dir.Register(c.Request().Context(), req.Account, req.Password); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}
