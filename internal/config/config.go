// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultSessionTTL   = "24h"
	DefaultCodeTTL      = "5m"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "authhub"
	DefaultPGSSLMode    = "disable"
	DefaultDirectory    = "postgres"
	DefaultCallTimeout  = "10s"
	DefaultProviderBase = "http://127.0.0.1:8080"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Captcha   CaptchaConfig   `toml:"captcha"`
	Directory DirectoryConfig `toml:"directory"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Provider  ProviderConfig  `toml:"provider"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// AuthConfig holds the session token secret and expiry, plus the shared
// secret authenticating calling services on the RPC surface.
type AuthConfig struct {
	SessionSecret string `toml:"session_secret"`
	SessionTTL    string `toml:"session_ttl"`
	ServiceSecret string `toml:"service_secret"`
	CodeTTL       string `toml:"code_ttl"`
}

// CaptchaConfig holds the per-audience verification-code toggles.
type CaptchaConfig struct {
	BackOffice bool `toml:"back_office"`
	Customer   bool `toml:"customer"`
}

// DirectoryConfig selects the identity directory backend.
type DirectoryConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `toml:"driver"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// ProviderConfig holds the provider endpoint used by the facade CLI.
type ProviderConfig struct {
	BaseURL     string `toml:"base_url"`
	CallTimeout string `toml:"call_timeout"`
}

// Load reads and parses the TOML config file at path and applies default
// values for missing fields.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			SessionTTL: DefaultSessionTTL,
			CodeTTL:    DefaultCodeTTL,
		},
		Directory: DirectoryConfig{
			Driver: DefaultDirectory,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Provider: ProviderConfig{
			BaseURL:     DefaultProviderBase,
			CallTimeout: DefaultCallTimeout,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
