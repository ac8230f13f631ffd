// Package client is the caller-side facade over the auth RPC contract. One
// method per remote operation, no business rules, no retries: failures map
// back to the shared sentinel errors and propagate unchanged.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/authhub/authhub/internal/identity"
	"github.com/authhub/authhub/internal/wire"
)

const (
	defaultTimeout  = 10 * time.Second
	serviceTokenTTL = time.Minute
)

// Config configures the facade.
type Config struct {
	// BaseURL is the provider's base URL, e.g. http://auth-provider:8080.
	BaseURL string
	// ServiceSecret signs the per-call service token the provider verifies.
	ServiceSecret string
	// Timeout bounds each remote call; callers can tighten it further via ctx.
	Timeout time.Duration
}

// Client calls the identity provider. It is stateless and safe for concurrent
// use.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// New validates the config and builds a client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("auth client: base url is required")
	}
	if strings.TrimSpace(cfg.ServiceSecret) == "" {
		return nil, errors.New("auth client: service secret is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		secret:  cfg.ServiceSecret,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// LoginByCredentials runs the captcha-gated account/password login and returns
// the session token.
func (c *Client) LoginByCredentials(ctx context.Context, audience identity.Audience, account, password, code, codeRequestID string) (string, error) {
	req := wire.CredentialsLoginRequest{
		Audience:      audience.String(),
		Account:       account,
		Password:      password,
		Code:          code,
		CodeRequestID: codeRequestID,
	}
	var resp wire.TokenResponse
	if err := c.post(ctx, wire.PathLoginByCredentials, req, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// LoginByID logs in an already-trusted user by directory id.
func (c *Client) LoginByID(ctx context.Context, audience identity.Audience, userID, device string) (string, error) {
	var resp wire.TokenResponse
	err := c.post(ctx, wire.PathLoginByID, wire.IDLoginRequest{Audience: audience.String(), UserID: userID, Device: device}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// LoginByAccount logs in an already-trusted user by account.
func (c *Client) LoginByAccount(ctx context.Context, audience identity.Audience, account, device string) (string, error) {
	var resp wire.TokenResponse
	err := c.post(ctx, wire.PathLoginByAccount, wire.AccountLoginRequest{Audience: audience.String(), Account: account, Device: device}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// LoginByPhone logs in by phone, provisioning a missing user on the provider.
func (c *Client) LoginByPhone(ctx context.Context, audience identity.Audience, phone, device string) (string, error) {
	var resp wire.TokenResponse
	err := c.post(ctx, wire.PathLoginByPhone, wire.PhoneLoginRequest{Audience: audience.String(), Phone: phone, Device: device}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// LoginByEmail logs in by email, provisioning a missing user on the provider.
func (c *Client) LoginByEmail(ctx context.Context, audience identity.Audience, email, device string) (string, error) {
	var resp wire.TokenResponse
	err := c.post(ctx, wire.PathLoginByEmail, wire.EmailLoginRequest{Audience: audience.String(), Email: email, Device: device}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// ValidateCode consumes a verification-code challenge.
func (c *Client) ValidateCode(ctx context.Context, subject, code, codeRequestID string) error {
	return c.post(ctx, wire.PathValidateCode, wire.ValidateCodeRequest{Subject: subject, Code: code, CodeRequestID: codeRequestID}, nil)
}

// CaptchaEnabledForB reports whether credentialed back-office logins are
// captcha-gated.
func (c *Client) CaptchaEnabledForB(ctx context.Context) (bool, error) {
	var resp wire.FlagResponse
	if err := c.post(ctx, wire.PathCaptchaEnabledForB, nil, &resp); err != nil {
		return false, err
	}
	return resp.Enabled, nil
}

// CaptchaEnabledForC reports whether credentialed customer logins are
// captcha-gated.
func (c *Client) CaptchaEnabledForC(ctx context.Context) (bool, error) {
	var resp wire.FlagResponse
	if err := c.post(ctx, wire.PathCaptchaEnabledForC, nil, &resp); err != nil {
		return false, err
	}
	return resp.Enabled, nil
}

// SessionCount returns the online-session snapshot.
func (c *Client) SessionCount(ctx context.Context) (identity.SessionCount, error) {
	var resp identity.SessionCount
	if err := c.post(ctx, wire.PathSessionCount, nil, &resp); err != nil {
		return identity.SessionCount{}, err
	}
	return resp, nil
}

// ThirdPartyUserCount returns the federated third-party user total.
func (c *Client) ThirdPartyUserCount(ctx context.Context) (int64, error) {
	var resp wire.CountResponse
	if err := c.post(ctx, wire.PathThirdPartyCount, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// GetBackOfficeUserByID resolves a back-office user by id; nil means absent.
func (c *Client) GetBackOfficeUserByID(ctx context.Context, id string) (*identity.BackOfficeUser, error) {
	return c.backOfficeLookup(ctx, wire.PathGetUserByID, id)
}

// GetBackOfficeUserByAccount resolves a back-office user by account.
func (c *Client) GetBackOfficeUserByAccount(ctx context.Context, account string) (*identity.BackOfficeUser, error) {
	return c.backOfficeLookup(ctx, wire.PathGetUserByAccount, account)
}

// GetBackOfficeUserByPhone resolves a back-office user by phone.
func (c *Client) GetBackOfficeUserByPhone(ctx context.Context, phone string) (*identity.BackOfficeUser, error) {
	return c.backOfficeLookup(ctx, wire.PathGetUserByPhone, phone)
}

// GetBackOfficeUserByEmail resolves a back-office user by email.
func (c *Client) GetBackOfficeUserByEmail(ctx context.Context, email string) (*identity.BackOfficeUser, error) {
	return c.backOfficeLookup(ctx, wire.PathGetUserByEmail, email)
}

// GetCustomerUserByID resolves a customer user by id; nil means absent.
func (c *Client) GetCustomerUserByID(ctx context.Context, id string) (*identity.CustomerUser, error) {
	return c.customerLookup(ctx, wire.PathGetUserByID, id)
}

// GetCustomerUserByAccount resolves a customer user by account.
func (c *Client) GetCustomerUserByAccount(ctx context.Context, account string) (*identity.CustomerUser, error) {
	return c.customerLookup(ctx, wire.PathGetUserByAccount, account)
}

// GetCustomerUserByPhone resolves a customer user by phone.
func (c *Client) GetCustomerUserByPhone(ctx context.Context, phone string) (*identity.CustomerUser, error) {
	return c.customerLookup(ctx, wire.PathGetUserByPhone, phone)
}

// GetCustomerUserByEmail resolves a customer user by email.
func (c *Client) GetCustomerUserByEmail(ctx context.Context, email string) (*identity.CustomerUser, error) {
	return c.customerLookup(ctx, wire.PathGetUserByEmail, email)
}

// CreateBackOfficeUserWithPhone provisions (or returns) a back-office user for
// the phone.
func (c *Client) CreateBackOfficeUserWithPhone(ctx context.Context, phone string) (*identity.BackOfficeUser, error) {
	var out *identity.BackOfficeUser
	req := wire.ContactCreateRequest{Audience: identity.AudienceBackOffice.String(), Contact: phone}
	if err := c.post(ctx, wire.PathCreateUserWithPhone, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateBackOfficeUserWithEmail provisions (or returns) a back-office user for
// the email.
func (c *Client) CreateBackOfficeUserWithEmail(ctx context.Context, email string) (*identity.BackOfficeUser, error) {
	var out *identity.BackOfficeUser
	req := wire.ContactCreateRequest{Audience: identity.AudienceBackOffice.String(), Contact: email}
	if err := c.post(ctx, wire.PathCreateUserWithEmail, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateCustomerUserWithPhone provisions (or returns) a customer user for the
// phone.
func (c *Client) CreateCustomerUserWithPhone(ctx context.Context, phone string) (*identity.CustomerUser, error) {
	var out *identity.CustomerUser
	req := wire.ContactCreateRequest{Audience: identity.AudienceCustomer.String(), Contact: phone}
	if err := c.post(ctx, wire.PathCreateUserWithPhone, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateCustomerUserWithEmail provisions (or returns) a customer user for the
// email.
func (c *Client) CreateCustomerUserWithEmail(ctx context.Context, email string) (*identity.CustomerUser, error) {
	var out *identity.CustomerUser
	req := wire.ContactCreateRequest{Audience: identity.AudienceCustomer.String(), Contact: email}
	if err := c.post(ctx, wire.PathCreateUserWithEmail, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListUsersByIDs returns raw user records for the ids, decoded from the wire's
// single-string form. No results comes back as a nil slice.
func (c *Client) ListUsersByIDs(ctx context.Context, ids []string) ([]identity.Record, error) {
	var resp wire.RecordsResponse
	if err := c.post(ctx, wire.PathListUsersByIDs, wire.IDListRequest{IDs: ids}, &resp); err != nil {
		return nil, err
	}
	return c.decodeRecords(resp)
}

// GetRolesByUserID returns the user's role records.
func (c *Client) GetRolesByUserID(ctx context.Context, userID string) ([]identity.Record, error) {
	var resp wire.RecordsResponse
	if err := c.post(ctx, wire.PathRolesByUserID, wire.UserIDRequest{UserID: userID}, &resp); err != nil {
		return nil, err
	}
	return c.decodeRecords(resp)
}

// GetPermissionsByUserAndRoleIDs returns permission records for the ids,
// optionally scoped by organization.
func (c *Client) GetPermissionsByUserAndRoleIDs(ctx context.Context, ids []string, orgID string) ([]identity.Record, error) {
	var resp wire.RecordsResponse
	if err := c.post(ctx, wire.PathPermissions, wire.PermissionsRequest{IDs: ids, OrgID: orgID}, &resp); err != nil {
		return nil, err
	}
	return c.decodeRecords(resp)
}

// GetButtonCodesByUserAndRoleIDs returns web button codes for the ids.
func (c *Client) GetButtonCodesByUserAndRoleIDs(ctx context.Context, ids []string) ([]string, error) {
	var resp wire.CodesResponse
	if err := c.post(ctx, wire.PathButtonCodes, wire.IDListRequest{IDs: ids}, &resp); err != nil {
		return nil, err
	}
	return resp.Codes, nil
}

// GetMobileButtonCodesByUserAndRoleIDs returns mobile button codes for the ids.
func (c *Client) GetMobileButtonCodesByUserAndRoleIDs(ctx context.Context, ids []string) ([]string, error) {
	var resp wire.CodesResponse
	if err := c.post(ctx, wire.PathMobileButtonCodes, wire.IDListRequest{IDs: ids}, &resp); err != nil {
		return nil, err
	}
	return resp.Codes, nil
}

// RecordLoginInfo updates the user's last-login bookkeeping. The provider
// treats it as best-effort; a transport failure here is still reported so the
// caller can log it.
func (c *Client) RecordLoginInfo(ctx context.Context, userID, device string) error {
	return c.post(ctx, wire.PathRecordLoginInfo, wire.RecordLoginRequest{UserID: userID, Device: device}, nil)
}

// Register creates a new account record.
func (c *Client) Register(ctx context.Context, account, password string) error {
	return c.post(ctx, wire.PathRegister, wire.RegisterRequest{Account: account, Password: password}, nil)
}

func (c *Client) backOfficeLookup(ctx context.Context, path, key string) (*identity.BackOfficeUser, error) {
	var out *identity.BackOfficeUser
	req := wire.LookupRequest{Audience: identity.AudienceBackOffice.String(), Key: key}
	if err := c.post(ctx, path, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) customerLookup(ctx context.Context, path, key string) (*identity.CustomerUser, error) {
	var out *identity.CustomerUser
	req := wire.LookupRequest{Audience: identity.AudienceCustomer.String(), Key: key}
	if err := c.post(ctx, path, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) decodeRecords(resp wire.RecordsResponse) ([]identity.Record, error) {
	records, err := wire.DecodeRecords(resp.Records)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrTransport, err)
	}
	return records, nil
}

// post performs one contract call: service token, JSON body, error envelope
// decoding. Anything that keeps the call from completing against the contract
// (network failure, timeout, unparseable response) wraps ErrTransport.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload := []byte("{}")
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	token, err := c.serviceToken()
	if err != nil {
		return fmt.Errorf("sign service token: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", identity.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", identity.ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", identity.ErrTransport, err)
	}
	return nil
}

// serviceToken mints the short-lived token that authenticates this service to
// the provider.
func (c *Client) serviceToken() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "authhub-client",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(serviceTokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.secret))
}

func decodeError(status int, body []byte) error {
	var envelope wire.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Code == "" {
		return fmt.Errorf("%w: unexpected status %d", identity.ErrTransport, status)
	}
	switch envelope.Code {
	case wire.CodeVerificationFailed:
		return fmt.Errorf("%w: %s", identity.ErrVerificationFailed, envelope.Message)
	case wire.CodeCredentialInvalid:
		return fmt.Errorf("%w: %s", identity.ErrCredentialInvalid, envelope.Message)
	case wire.CodeNotFound:
		return fmt.Errorf("%w: %s", identity.ErrNotFound, envelope.Message)
	case wire.CodeAudienceMismatch:
		return fmt.Errorf("%w: %s", identity.ErrAudienceMismatch, envelope.Message)
	}
	return fmt.Errorf("auth provider: %s: %s", envelope.Code, envelope.Message)
}
