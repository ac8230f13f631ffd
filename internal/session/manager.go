// Package session mints session tokens and tracks online sessions per audience.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/authhub/authhub/internal/identity"
)

const defaultTTL = 24 * time.Hour

// Claims are the session token claims. Audience here is the dispatch-layer
// audience tag, not the JWT aud list.
type Claims struct {
	Audience string `json:"aud_tag"`
	Device   string `json:"device,omitempty"`
	jwt.RegisteredClaims
}

type entry struct {
	audience  identity.Audience
	expiresAt time.Time
}

// Manager mints HS256 session tokens and keeps an in-memory registry of the
// sessions it has minted, for the online-count snapshot. Expired entries are
// swept by a background cron.
type Manager struct {
	secret string
	ttl    time.Duration
	logger *slog.Logger
	cron   *cron.Cron

	mu     sync.Mutex
	online map[string]entry // keyed by token id
}

// NewManager creates a session manager and starts its sweep schedule.
func NewManager(log *slog.Logger, secret string, ttl time.Duration) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("session secret is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	m := &Manager{
		secret: secret,
		ttl:    ttl,
		logger: log.With(slog.String("service", "session")),
		cron:   cron.New(),
		online: map[string]entry{},
	}
	if _, err := m.cron.AddFunc("@every 1m", m.Sweep); err != nil {
		m.logger.Warn("sweep schedule not registered", slog.Any("error", err))
	}
	m.cron.Start()
	return m, nil
}

// Mint issues a session token for the user and registers it as online. The
// user must carry a valid audience tag.
func (m *Manager) Mint(user identity.User, device string) (string, error) {
	if !user.Audience.Valid() {
		return "", fmt.Errorf("mint session: %w: user %s tagged %q", identity.ErrAudienceMismatch, user.ID, user.Audience)
	}
	now := time.Now()
	expiresAt := now.Add(m.ttl)
	tokenID := uuid.NewString()
	claims := Claims{
		Audience: user.Audience.String(),
		Device:   device,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.secret))
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	m.mu.Lock()
	m.online[tokenID] = entry{audience: user.Audience, expiresAt: expiresAt}
	m.mu.Unlock()
	return token, nil
}

// Counts returns the point-in-time online-session snapshot.
func (m *Manager) Counts() identity.SessionCount {
	now := time.Now()
	var snapshot identity.SessionCount
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.online {
		if now.After(e.expiresAt) {
			continue
		}
		switch e.audience {
		case identity.AudienceBackOffice:
			snapshot.OnlineBCount++
		case identity.AudienceCustomer:
			snapshot.OnlineCCount++
		}
	}
	return snapshot
}

// Sweep drops expired sessions from the registry.
func (m *Manager) Sweep() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.online {
		if now.After(e.expiresAt) {
			delete(m.online, id)
		}
	}
}

// Close stops the sweep schedule.
func (m *Manager) Close() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}
