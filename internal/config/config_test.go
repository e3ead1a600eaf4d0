package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmerrifield20/roster/internal/config"
	"github.com/spf13/viper"
)

func TestLoad_defaultsWithoutFile(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	cfg, warn, err := config.Load(viper.New(), t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !errors.Is(warn, config.ErrNoConfigFile) {
		t.Errorf("expected ErrNoConfigFile warning, got %v", warn)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port: got %d", cfg.Server.Port)
	}
	if cfg.Pictures.MaxBytes != 5<<20 {
		t.Errorf("max bytes: got %d", cfg.Pictures.MaxBytes)
	}
	if cfg.Redis.RosterTTL != 5*time.Minute {
		t.Errorf("roster ttl: got %v", cfg.Redis.RosterTTL)
	}
	if cfg.Google.RedirectURL != "http://localhost:8080/auth/google/callback" {
		t.Errorf("redirect: got %q", cfg.Google.RedirectURL)
	}
}

func TestLoad_fileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
server:
  port: 9000
  frontend_url: https://members.example.org/
pictures:
  backend: cloudinary
auth:
  allowed_domains: [example.org]
session:
  secret: from-file
`)
	if err := os.WriteFile(filepath.Join(dir, "directory.yaml"), yaml, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SESSION_TTL", "1h")

	cfg, warn, err := config.Load(viper.New(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if warn != nil {
		t.Errorf("unexpected warning: %v", warn)
	}
	if cfg.Server.Port != 9000 || cfg.Pictures.Backend != "cloudinary" {
		t.Errorf("file values not applied: %+v", cfg.Server)
	}
	if cfg.Server.FrontendURL != "https://members.example.org" {
		t.Errorf("frontend url: got %q", cfg.Server.FrontendURL)
	}
	if len(cfg.Auth.AllowedDomains) != 1 || cfg.Auth.AllowedDomains[0] != "example.org" {
		t.Errorf("allowed domains: %v", cfg.Auth.AllowedDomains)
	}
	if cfg.Session.TTL != time.Hour {
		t.Errorf("env override: ttl got %v", cfg.Session.TTL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*config.Config)
		ok   bool
	}{
		{"valid", func(*config.Config) {}, true},
		{"missing secret", func(c *config.Config) { c.Session.Secret = "" }, false},
		{"bad backend", func(c *config.Config) { c.Pictures.Backend = "s3" }, false},
		{"zero max bytes", func(c *config.Config) { c.Pictures.MaxBytes = 0 }, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := viper.New()
			config.SetDefaults(v)
			v.Set("session.secret", "x")
			cfg := config.FromViper(v)
			tc.mod(cfg)
			if err := cfg.Validate(); (err == nil) != tc.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}
