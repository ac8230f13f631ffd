package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != DefaultHTTPAddr {
		t.Errorf("addr = %q, want %q", cfg.Server.Addr, DefaultHTTPAddr)
	}
	if cfg.Auth.SessionTTL != DefaultSessionTTL {
		t.Errorf("session ttl = %q, want %q", cfg.Auth.SessionTTL, DefaultSessionTTL)
	}
	if cfg.Directory.Driver != DefaultDirectory {
		t.Errorf("driver = %q, want %q", cfg.Directory.Driver, DefaultDirectory)
	}
}

func TestLoadParsesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[log]
level = "debug"
format = "json"

[server]
addr = ":9090"

[auth]
session_secret = "sek"
service_secret = "svc"
session_ttl = "12h"

[captcha]
back_office = true

[directory]
driver = "memory"

[provider]
base_url = "http://auth:9090"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Auth.SessionSecret != "sek" || cfg.Auth.ServiceSecret != "svc" || cfg.Auth.SessionTTL != "12h" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if !cfg.Captcha.BackOffice || cfg.Captcha.Customer {
		t.Errorf("captcha = %+v", cfg.Captcha)
	}
	if cfg.Directory.Driver != "memory" {
		t.Errorf("driver = %q", cfg.Directory.Driver)
	}
	if cfg.Provider.BaseURL != "http://auth:9090" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	// Untouched sections keep their defaults.
	if cfg.Postgres.Host != DefaultPGHost || cfg.Postgres.Port != DefaultPGPort {
		t.Errorf("postgres = %+v", cfg.Postgres)
	}
}
