// Package verify issues and validates one-time verification-code challenges.
package verify

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/authhub/authhub/internal/identity"
)

const defaultTTL = 5 * time.Minute

// Challenge is an issued verification code bound to one subject and request id.
type Challenge struct {
	Subject   string
	Code      string
	RequestID string
	ExpiresAt time.Time
}

type entry struct {
	code      string
	subject   string
	expiresAt time.Time
}

// Service stores pending challenges in memory. Each challenge validates at
// most once; expired entries are swept by a background cron.
type Service struct {
	ttl    time.Duration
	logger *slog.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	pending map[string]entry // keyed by request id
}

// NewService creates a verification service and starts its sweep schedule.
func NewService(log *slog.Logger, ttl time.Duration) *Service {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	s := &Service{
		ttl:     ttl,
		logger:  log.With(slog.String("service", "verify")),
		cron:    cron.New(),
		pending: map[string]entry{},
	}
	if _, err := s.cron.AddFunc("@every 1m", s.Sweep); err != nil {
		s.logger.Warn("sweep schedule not registered", slog.Any("error", err))
	}
	s.cron.Start()
	return s
}

// Issue creates a challenge for the subject (a phone number or email address)
// and returns it so the surrounding delivery mechanism can send the code out.
func (s *Service) Issue(subject string) (Challenge, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return Challenge{}, fmt.Errorf("verification subject is required")
	}
	code, err := randomCode()
	if err != nil {
		return Challenge{}, err
	}
	ch := Challenge{
		Subject:   subject,
		Code:      code,
		RequestID: uuid.NewString(),
		ExpiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Lock()
	s.pending[ch.RequestID] = entry{code: ch.Code, subject: ch.Subject, expiresAt: ch.ExpiresAt}
	s.mu.Unlock()
	return ch, nil
}

// Validate consumes the challenge identified by requestID. Wrong subject,
// wrong code, expiry, and reuse all fail the same way so a caller learns
// nothing about which part was off.
func (s *Service) Validate(subject, code, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pending[requestID]
	if !ok {
		return identity.ErrVerificationFailed
	}
	// Single use, even on failure: a guessed-at request id burns the challenge.
	delete(s.pending, requestID)
	if time.Now().After(e.expiresAt) {
		return identity.ErrVerificationFailed
	}
	if e.subject != strings.TrimSpace(subject) || e.code != strings.TrimSpace(code) {
		return identity.ErrVerificationFailed
	}
	return nil
}

// Sweep drops expired challenges.
func (s *Service) Sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.pending {
		if now.After(e.expiresAt) {
			delete(s.pending, id)
		}
	}
}

// Close stops the sweep schedule.
func (s *Service) Close() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
