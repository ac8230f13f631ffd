// Package identity defines the audiences, login channels, and user shapes shared
// by the dispatch layer and the identity directory.
package identity

import (
	"encoding/json"
	"fmt"
	"time"
)

// Audience selects which user population an operation acts on.
type Audience string

// The two audiences served by the dispatch layer.
const (
	AudienceBackOffice Audience = "b"
	AudienceCustomer   Audience = "c"
)

// Valid reports whether a is one of the known audiences.
func (a Audience) Valid() bool {
	return a == AudienceBackOffice || a == AudienceCustomer
}

func (a Audience) String() string {
	return string(a)
}

// ParseAudience converts a wire value into an Audience.
func ParseAudience(raw string) (Audience, error) {
	a := Audience(raw)
	if !a.Valid() {
		return "", fmt.Errorf("unknown audience %q", raw)
	}
	return a, nil
}

// Channel is the lookup key type used to resolve or authenticate a user.
type Channel string

// Supported channels. ChannelCredentials is the only one gated by a
// verification-code challenge; the rest trust an external signal.
const (
	ChannelID          Channel = "id"
	ChannelAccount     Channel = "account"
	ChannelPhone       Channel = "phone"
	ChannelEmail       Channel = "email"
	ChannelCredentials Channel = "credentials"
)

// Record is an opaque identity-service document (user row, role, or permission)
// passed through the dispatch layer without interpretation.
type Record = json.RawMessage

// User is a directory record. Audience tags which profile is populated: a
// back-office record carries BackOffice, a customer record carries Customer.
// The tag is authoritative; readers must match on it rather than probe the
// profile pointers.
type User struct {
	ID          string
	Audience    Audience
	Account     string
	Name        string
	Phone       string
	Email       string
	Avatar      string
	Enabled     bool
	LastLoginAt time.Time

	BackOffice *BackOfficeProfile
	Customer   *CustomerProfile
}

// BackOfficeProfile holds fields that only exist for back-office operators.
type BackOfficeProfile struct {
	OrgID      string
	PositionID string
	EmpNo      string
}

// CustomerProfile holds fields that only exist for customer-facing users.
type CustomerProfile struct {
	Nickname string
	Level    string
}

// BackOfficeUser is the narrowed shape a back-office operation returns across
// the service boundary.
type BackOfficeUser struct {
	ID         string `json:"id"`
	Account    string `json:"account"`
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
	Enabled    bool   `json:"enabled"`
	OrgID      string `json:"orgId,omitempty"`
	PositionID string `json:"positionId,omitempty"`
	EmpNo      string `json:"empNo,omitempty"`
}

// CustomerUser is the narrowed shape a customer operation returns across the
// service boundary.
type CustomerUser struct {
	ID       string `json:"id"`
	Account  string `json:"account"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Enabled  bool   `json:"enabled"`
	Nickname string `json:"nickname,omitempty"`
	Level    string `json:"level,omitempty"`
}

// NarrowBackOffice narrows u to its back-office shape. A record tagged for a
// different audience, or tagged back-office without its profile, means the
// directory and the dispatch layer disagree about what this audience produces:
// that is a deployment skew bug and surfaces as ErrAudienceMismatch.
func (u User) NarrowBackOffice() (BackOfficeUser, error) {
	if u.Audience != AudienceBackOffice || u.BackOffice == nil {
		return BackOfficeUser{}, fmt.Errorf("%w: user %s tagged %q in back-office operation", ErrAudienceMismatch, u.ID, u.Audience)
	}
	return BackOfficeUser{
		ID:         u.ID,
		Account:    u.Account,
		Name:       u.Name,
		Phone:      u.Phone,
		Email:      u.Email,
		Avatar:     u.Avatar,
		Enabled:    u.Enabled,
		OrgID:      u.BackOffice.OrgID,
		PositionID: u.BackOffice.PositionID,
		EmpNo:      u.BackOffice.EmpNo,
	}, nil
}

// NarrowCustomer narrows u to its customer shape, failing with
// ErrAudienceMismatch on a mis-tagged record.
func (u User) NarrowCustomer() (CustomerUser, error) {
	if u.Audience != AudienceCustomer || u.Customer == nil {
		return CustomerUser{}, fmt.Errorf("%w: user %s tagged %q in customer operation", ErrAudienceMismatch, u.ID, u.Audience)
	}
	return CustomerUser{
		ID:       u.ID,
		Account:  u.Account,
		Name:     u.Name,
		Phone:    u.Phone,
		Email:    u.Email,
		Avatar:   u.Avatar,
		Enabled:  u.Enabled,
		Nickname: u.Customer.Nickname,
		Level:    u.Customer.Level,
	}, nil
}

// SessionCount is a point-in-time snapshot of online sessions per audience.
type SessionCount struct {
	OnlineBCount int64 `json:"onlineBCount"`
	OnlineCCount int64 `json:"onlineCCount"`
}
