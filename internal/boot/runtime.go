// Package boot provides runtime configuration and dependency wiring for the
// provider daemon.
package boot

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/authhub/authhub/internal/config"
)

// RuntimeConfig holds parsed runtime settings. Values may be overridden by
// environment variables (HTTP_ADDR, SERVICE_SECRET, SESSION_SECRET).
type RuntimeConfig struct {
	ServerAddr    string
	SessionSecret string
	SessionTTL    time.Duration
	ServiceSecret string
	CodeTTL       time.Duration
}

// ProvideRuntimeConfig builds RuntimeConfig from the given config and applies
// env overrides.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	sessionTTL, err := time.ParseDuration(cfg.Auth.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid session ttl: %w", err)
	}
	codeTTL, err := time.ParseDuration(cfg.Auth.CodeTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid code ttl: %w", err)
	}

	ret := &RuntimeConfig{
		ServerAddr:    cfg.Server.Addr,
		SessionSecret: cfg.Auth.SessionSecret,
		SessionTTL:    sessionTTL,
		ServiceSecret: cfg.Auth.ServiceSecret,
		CodeTTL:       codeTTL,
	}

	if value := os.Getenv("HTTP_ADDR"); value != "" {
		ret.ServerAddr = value
	}
	if value := os.Getenv("SERVICE_SECRET"); value != "" {
		ret.ServiceSecret = value
	}
	if value := os.Getenv("SESSION_SECRET"); value != "" {
		ret.SessionSecret = value
	}

	if strings.TrimSpace(ret.SessionSecret) == "" {
		return nil, errors.New("session secret is required")
	}
	if strings.TrimSpace(ret.ServiceSecret) == "" {
		return nil, errors.New("service secret is required")
	}
	return ret, nil
}
