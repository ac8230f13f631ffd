// Package wire defines the RPC contract between the application tier and the
// identity provider: operation paths, flat request/response shapes, the error
// envelope, and the opaque-record-list encoding.
//
// Every payload is made of primitive scalars, strings, and string lists. The
// operations whose natural result is a heterogeneous collection (user lists,
// roles, permissions) cross the boundary as a single encoded string instead;
// see EncodeRecords. Changing any shape here is a compatibility break.
package wire

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/authhub/authhub/internal/identity"
)

// Operation paths. Audience travels as a request field, so each logical
// operation has one path serving both audiences.
const (
	PathLoginByCredentials = "/rpc/auth/loginByCredentials"
	PathLoginByID          = "/rpc/auth/loginById"
	PathLoginByAccount     = "/rpc/auth/loginByAccount"
	PathLoginByPhone       = "/rpc/auth/loginByPhone"
	PathLoginByEmail       = "/rpc/auth/loginByEmail"
	PathValidateCode       = "/rpc/auth/validateCode"
	PathCaptchaEnabledForB = "/rpc/auth/isCaptchaEnabledForB"
	PathCaptchaEnabledForC = "/rpc/auth/isCaptchaEnabledForC"
	PathSessionCount       = "/rpc/auth/getUserSessionCount"
	PathThirdPartyCount    = "/rpc/auth/getThirdPartyUserCount"

	PathGetUserByID         = "/rpc/user/getUserById"
	PathGetUserByAccount    = "/rpc/user/getUserByAccount"
	PathGetUserByPhone      = "/rpc/user/getUserByPhone"
	PathGetUserByEmail      = "/rpc/user/getUserByEmail"
	PathCreateUserWithPhone = "/rpc/user/createUserWithPhone"
	PathCreateUserWithEmail = "/rpc/user/createUserWithEmail"
	PathListUsersByIDs      = "/rpc/user/listUsersByIds"
	PathRolesByUserID       = "/rpc/user/getRolesByUserId"
	PathButtonCodes         = "/rpc/user/getButtonCodesByUserAndRoleIds"
	PathMobileButtonCodes   = "/rpc/user/getMobileButtonCodesByUserAndRoleIds"
	PathPermissions         = "/rpc/user/getPermissionsByUserAndRoleIds"
	PathRecordLoginInfo     = "/rpc/user/recordLoginInfo"
	PathRegister            = "/rpc/user/register"
)

// Error codes carried in the error envelope.
const (
	CodeVerificationFailed = "verification_failed"
	CodeCredentialInvalid  = "credential_invalid"
	CodeNotFound           = "not_found"
	CodeAudienceMismatch   = "audience_mismatch"
	CodeBadRequest         = "bad_request"
	CodeInternal           = "internal"
)

// ErrorResponse is the error envelope for non-2xx responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CredentialsLoginRequest carries an account/password login attempt. Code and
// CodeRequestID are only consulted when the captcha flag is enabled for the
// audience.
type CredentialsLoginRequest struct {
	Audience      string `json:"audience"`
	Account       string `json:"account"`
	Password      string `json:"password"`
	Code          string `json:"code,omitempty"`
	CodeRequestID string `json:"codeRequestId,omitempty"`
}

// IDLoginRequest logs in an already-trusted user by directory id.
type IDLoginRequest struct {
	Audience string `json:"audience"`
	UserID   string `json:"userId"`
	Device   string `json:"device"`
}

// AccountLoginRequest logs in an already-trusted user by account.
type AccountLoginRequest struct {
	Audience string `json:"audience"`
	Account  string `json:"account"`
	Device   string `json:"device"`
}

// PhoneLoginRequest logs in (provisioning if needed) by phone.
type PhoneLoginRequest struct {
	Audience string `json:"audience"`
	Phone    string `json:"phone"`
	Device   string `json:"device"`
}

// EmailLoginRequest logs in (provisioning if needed) by email.
type EmailLoginRequest struct {
	Audience string `json:"audience"`
	Email    string `json:"email"`
	Device   string `json:"device"`
}

// TokenResponse returns the minted session token.
type TokenResponse struct {
	Token string `json:"token"`
}

// ValidateCodeRequest checks a verification-code challenge.
type ValidateCodeRequest struct {
	Subject       string `json:"subject"`
	Code          string `json:"code"`
	CodeRequestID string `json:"codeRequestId"`
}

// FlagResponse carries a boolean toggle.
type FlagResponse struct {
	Enabled bool `json:"enabled"`
}

// CountResponse carries a single aggregate.
type CountResponse struct {
	Count int64 `json:"count"`
}

// LookupRequest resolves a user by one key within an audience.
type LookupRequest struct {
	Audience string `json:"audience"`
	Key      string `json:"key"`
}

// ContactCreateRequest provisions a user from a reachable contact channel.
type ContactCreateRequest struct {
	Audience string `json:"audience"`
	Contact  string `json:"contact"`
}

// IDListRequest carries a list of user (or user-and-role) ids.
type IDListRequest struct {
	IDs []string `json:"ids"`
}

// UserIDRequest addresses a single user.
type UserIDRequest struct {
	UserID string `json:"userId"`
}

// PermissionsRequest carries user/role ids plus an organization scope.
type PermissionsRequest struct {
	IDs   []string `json:"ids"`
	OrgID string   `json:"orgId,omitempty"`
}

// RecordsResponse carries an encoded record list. Records is nil when there
// are no results; it is never the empty string.
type RecordsResponse struct {
	Records *string `json:"records"`
}

// CodesResponse carries button codes.
type CodesResponse struct {
	Codes []string `json:"codes"`
}

// RecordLoginRequest updates last-login bookkeeping for a user.
type RecordLoginRequest struct {
	UserID string `json:"userId"`
	Device string `json:"device"`
}

// RegisterRequest creates a new account record.
type RegisterRequest struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

// EncodeRecords packs an ordered record list into the single opaque string the
// wire can carry. An empty list encodes to nil (absent), never to "[]": callers
// distinguish absent from present-but-empty only through the nil pointer.
func EncodeRecords(records []identity.Record) (*string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	s := string(raw)
	return &s, nil
}

// DecodeRecords unpacks an encoded record list. Absent (nil) and blank both
// decode to no results; a decoded empty list is equivalent.
func DecodeRecords(encoded *string) ([]identity.Record, error) {
	if encoded == nil || strings.TrimSpace(*encoded) == "" {
		return nil, nil
	}
	var records []identity.Record
	if err := json.Unmarshal([]byte(*encoded), &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records, nil
}
