package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	c := Defaults()
	c.App.Env = "local"
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voip"}
	c.Redis = RedisConfig{Host: "localhost", Port: 6379}
	c.Auth = AuthConfig{JWTSecret: "secret"}
	c.Telephony.Provider = "sandbox"
	c.Payments.Provider = "sandbox"
	c.Billing.DefaultCallerID = "+14155550100"
	c.Billing.DefaultCallerIDCountry = "US"
	return c
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.App.PublicBaseURL = "https://voip.example.com"
	c.Auth.JWTIssuer = "issuer"
	c.Auth.JWTAudience = "aud"
	c.Telephony.Provider = "twilio"
	c.Twilio.AccountSID = "AC1"
	c.Twilio.AuthToken = "tok"
	c.Payments.Provider = "stripe"
	c.Stripe = StripeConfig{SecretKey: "sk", WebhookSecret: "whsec"}

	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected error for production without DB_SSLMODE, got %v", err)
	}
	c.DB.SSLMode = "require"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid production config, got %v", err)
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Auth.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("expected access ttl default, got %v", c.Auth.AccessTokenTTL)
	}
	if c.Billing.Reserve().String() != "1" {
		t.Fatalf("expected reserve 1.00, got %s", c.Billing.Reserve())
	}
}

func TestValidate_SandboxRejectedInProduction(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "TELEPHONY_PROVIDER sandbox") {
		t.Fatalf("expected sandbox rejection, got %v", err)
	}
}

func TestValidate_BillingBounds(t *testing.T) {
	c := validLocal()
	c.Billing.MinimumReserve = "-1"
	c.Billing.IncrementSeconds = 0
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "BILLING_MINIMUM_RESERVE") || !strings.Contains(err.Error(), "BILLING_INCREMENT_SECONDS") {
		t.Fatalf("expected both billing errors, got %v", err)
	}
}

func TestLoad_LayersFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
app:
  env: dev
  port: 9090
db:
  host: db.internal
  user: voip
  name: voip
redis:
  host: cache.internal
auth:
  jwt_secret: from-file
telephony:
  provider: sandbox
payments:
  provider: sandbox
billing:
  default_caller_id: "+14155550100"
  default_caller_id_country: US
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv(PathEnvVar, path)
	t.Setenv("APP_PORT", "7070")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("BILLING_MAX_CONCURRENT_CALLS", "2")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.App.Env != "dev" || c.DB.Host != "db.internal" {
		t.Fatalf("expected file values, got %+v", c.App)
	}
	if c.App.Port != 7070 {
		t.Fatalf("expected env override for port, got %d", c.App.Port)
	}
	if c.Auth.AccessTokenTTL != 5*time.Minute {
		t.Fatalf("expected env duration, got %v", c.Auth.AccessTokenTTL)
	}
	if c.Billing.MaxConcurrentCalls != 2 {
		t.Fatalf("expected concurrency cap from env, got %d", c.Billing.MaxConcurrentCalls)
	}
	if c.DB.Port != 5432 || c.Verification.CodeTTL != 10*time.Minute {
		t.Fatalf("expected defaults preserved")
	}
}

func TestEnvKey_IgnoresUnknown(t *testing.T) {
	if envKey("HOME") != "" {
		t.Fatalf("expected unknown env var ignored")
	}
	if envKey("db_host") != "db.host" {
		t.Fatalf("expected case-insensitive mapping")
	}
}
