// Package authflow holds the provider-side login decision logic: the
// captcha-gated credential flow, the trusted federated channel flows, and the
// best-effort audit hand-off.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/authhub/authhub/internal/audit"
	"github.com/authhub/authhub/internal/identity"
	"github.com/authhub/authhub/internal/session"
	"github.com/authhub/authhub/internal/verify"
)

// CaptchaFlags are the per-audience toggles gating credentialed login.
type CaptchaFlags struct {
	BackOffice bool
	Customer   bool
}

// Service coordinates the directory, session minting, verification, and audit
// collaborators. It is stateless itself.
type Service struct {
	dir      identity.Directory
	sessions *session.Manager
	verifier *verify.Service
	audit    *audit.Recorder
	captcha  CaptchaFlags
	logger   *slog.Logger
}

// NewService wires the login flows.
func NewService(log *slog.Logger, dir identity.Directory, sessions *session.Manager, verifier *verify.Service, recorder *audit.Recorder, captcha CaptchaFlags) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		dir:      dir,
		sessions: sessions,
		verifier: verifier,
		audit:    recorder,
		captcha:  captcha,
		logger:   log.With(slog.String("service", "authflow")),
	}
}

// CaptchaEnabled reports the toggle for the audience.
func (s *Service) CaptchaEnabled(audience identity.Audience) bool {
	switch audience {
	case identity.AudienceBackOffice:
		return s.captcha.BackOffice
	case identity.AudienceCustomer:
		return s.captcha.Customer
	}
	return false
}

// ValidateCode consumes a verification-code challenge.
func (s *Service) ValidateCode(subject, code, requestID string) error {
	return s.verifier.Validate(subject, code, requestID)
}

// SessionCounts returns the online-session snapshot.
func (s *Service) SessionCounts() identity.SessionCount {
	return s.sessions.Counts()
}

// ThirdPartyUserCount returns the federated third-party user total.
func (s *Service) ThirdPartyUserCount(ctx context.Context) (int64, error) {
	return s.dir.ThirdPartyUserCount(ctx)
}

// LoginWithCredentials runs the gated credential flow: when the audience's
// captcha flag is on, the verification code is consumed first and a bad code
// aborts before any credential check, so a failed challenge can never leak
// whether the account exists. Then credentials are verified, a session is
// minted, and the login record is handed to the audit worker.
func (s *Service) LoginWithCredentials(ctx context.Context, audience identity.Audience, account, password, code, codeRequestID string) (string, error) {
	if !audience.Valid() {
		return "", fmt.Errorf("login: unknown audience %q", audience)
	}
	if s.CaptchaEnabled(audience) {
		if err := s.verifier.Validate(account, code, codeRequestID); err != nil {
			return "", err
		}
	}
	user, err := s.dir.VerifyPassword(ctx, audience, account, password)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			// Never reveal whether the account or the password was wrong.
			return "", identity.ErrCredentialInvalid
		}
		return "", err
	}
	return s.mint(audience, user, "")
}

// LoginByID is a trusted federated login: no captcha, no provisioning. A
// missing user fails with ErrNotFound because there is no contact channel to
// provision from.
func (s *Service) LoginByID(ctx context.Context, audience identity.Audience, userID, device string) (string, error) {
	return s.trustedLogin(ctx, audience, identity.ChannelID, userID, device)
}

// LoginByAccount is a trusted federated login by account; like LoginByID it
// never provisions.
func (s *Service) LoginByAccount(ctx context.Context, audience identity.Audience, account, device string) (string, error) {
	return s.trustedLogin(ctx, audience, identity.ChannelAccount, account, device)
}

// LoginByPhone is a trusted federated login by phone; a missing user is
// provisioned through the contact channel before the session is minted.
func (s *Service) LoginByPhone(ctx context.Context, audience identity.Audience, phone, device string) (string, error) {
	return s.contactLogin(ctx, audience, identity.ChannelPhone, phone, device)
}

// LoginByEmail is a trusted federated login by email, provisioning on demand.
func (s *Service) LoginByEmail(ctx context.Context, audience identity.Audience, email, device string) (string, error) {
	return s.contactLogin(ctx, audience, identity.ChannelEmail, email, device)
}

func (s *Service) trustedLogin(ctx context.Context, audience identity.Audience, channel identity.Channel, key, device string) (string, error) {
	if !audience.Valid() {
		return "", fmt.Errorf("login: unknown audience %q", audience)
	}
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("login: %s is required", channel)
	}
	user, err := s.dir.FindUser(ctx, audience, channel, key)
	if err != nil {
		return "", err
	}
	return s.mint(audience, user, device)
}

func (s *Service) contactLogin(ctx context.Context, audience identity.Audience, channel identity.Channel, contact, device string) (string, error) {
	if !audience.Valid() {
		return "", fmt.Errorf("login: unknown audience %q", audience)
	}
	if strings.TrimSpace(contact) == "" {
		return "", fmt.Errorf("login: %s is required", channel)
	}
	user, err := s.dir.FindUser(ctx, audience, channel, contact)
	if errors.Is(err, identity.ErrNotFound) {
		user, err = s.dir.CreateUserWithContact(ctx, audience, channel, contact)
	}
	if err != nil {
		return "", err
	}
	return s.mint(audience, user, device)
}

// mint narrows the resolved user against the requested audience, issues the
// session token, and hands the login record to the audit worker. The audit
// step runs after the token exists and cannot fail the login.
func (s *Service) mint(audience identity.Audience, user identity.User, device string) (string, error) {
	if user.Audience != audience {
		err := fmt.Errorf("%w: user %s tagged %q in %q login", identity.ErrAudienceMismatch, user.ID, user.Audience, audience)
		s.logger.Error("audience mismatch on login", slog.Any("error", err))
		return "", err
	}
	token, err := s.sessions.Mint(user, device)
	if err != nil {
		return "", err
	}
	s.audit.Record(user.ID, device)
	return token, nil
}
