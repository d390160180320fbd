package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration required by the API and reconciler processes.
// Values come from defaults, an optional YAML file, then environment variables (see Load).
// No business logic should depend on raw environment variables.
type Config struct {
	App          AppConfig          `koanf:"app"`
	DB           DBConfig           `koanf:"db"`
	Redis        RedisConfig        `koanf:"redis"`
	Auth         AuthConfig         `koanf:"auth"`
	Telephony    TelephonyConfig    `koanf:"telephony"`
	Twilio       TwilioConfig       `koanf:"twilio"`
	Payments     PaymentsConfig     `koanf:"payments"`
	Stripe       StripeConfig       `koanf:"stripe"`
	Billing      BillingConfig      `koanf:"billing"`
	Verification VerificationConfig `koanf:"verification"`
	Reconciler   ReconcilerConfig   `koanf:"reconciler"`
}

type AppConfig struct {
	Env       string `koanf:"env"`
	Port      int    `koanf:"port"`
	LogFormat string `koanf:"log_format"`

	// PublicBaseURL is the externally reachable origin used for provider callbacks.
	PublicBaseURL string `koanf:"public_base_url"`

	// Per-client limit on unauthenticated endpoints. 0 disables it.
	PublicRatePerMinute int `koanf:"public_rate_per_minute"`
	PublicRateBurst     int `koanf:"public_rate_burst"`
}

type DBConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string `koanf:"sslmode"`

	MaxOpenConns int `koanf:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type AuthConfig struct {
	JWTSecret       string        `koanf:"jwt_secret"`
	JWTIssuer       string        `koanf:"jwt_issuer"`
	JWTAudience     string        `koanf:"jwt_audience"`
	AccessTokenTTL  time.Duration `koanf:"access_token_ttl"`
	RefreshTokenTTL time.Duration `koanf:"refresh_token_ttl"`
}

type TelephonyConfig struct {
	// Provider is "twilio" or "sandbox".
	Provider string `koanf:"provider"`
}

type TwilioConfig struct {
	AccountSID string `koanf:"account_sid"`
	AuthToken  string `koanf:"auth_token"`
	// APIBaseURL is overridable for tests.
	APIBaseURL         string        `koanf:"api_base_url"`
	RequestTimeout     time.Duration `koanf:"request_timeout"`
	ValidateSignatures bool          `koanf:"validate_signatures"`
	RecordCalls        bool          `koanf:"record_calls"`
}

type PaymentsConfig struct {
	// Provider is "stripe" or "sandbox".
	Provider   string `koanf:"provider"`
	Currency   string `koanf:"currency"`
	SuccessURL string `koanf:"success_url"`
	CancelURL  string `koanf:"cancel_url"`
	// MinimumPurchase is the smallest checkout amount accepted.
	MinimumPurchase string `koanf:"minimum_purchase"`
}

type StripeConfig struct {
	SecretKey     string `koanf:"secret_key"`
	WebhookSecret string `koanf:"webhook_secret"`
}

type BillingConfig struct {
	// MinimumReserve is the balance required to start a call.
	MinimumReserve string `koanf:"minimum_reserve"`
	// IncrementSeconds rounds call duration up before pricing; 1 prorates per second.
	IncrementSeconds int           `koanf:"increment_seconds"`
	TopupTimeout     time.Duration `koanf:"topup_timeout"`

	DefaultCallerID        string `koanf:"default_caller_id"`
	DefaultCallerIDCountry string `koanf:"default_caller_id_country"`

	// MaxConcurrentCalls per user; 0 disables the cap.
	MaxConcurrentCalls int           `koanf:"max_concurrent_calls"`
	ConcurrencySlotTTL time.Duration `koanf:"concurrency_slot_ttl"`
}

type VerificationConfig struct {
	CodeTTL        time.Duration `koanf:"code_ttl"`
	ResendInterval time.Duration `koanf:"resend_interval"`
}

type ReconcilerConfig struct {
	Schedule   string        `koanf:"schedule"`
	StaleAfter time.Duration `koanf:"stale_after"`
	BatchSize  int           `koanf:"batch_size"`
	RunTimeout time.Duration `koanf:"run_timeout"`
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL != "" {
		if u, err := url.Parse(c.App.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute URL, got %q", c.App.PublicBaseURL))
		}
	} else if c.IsProduction() {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required in production"))
	}
	if c.App.PublicRatePerMinute < 0 || c.App.PublicRateBurst < 0 {
		errs = append(errs, errors.New("APP_PUBLIC_RATE_PER_MINUTE and APP_PUBLIC_RATE_BURST must not be negative"))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	switch c.Telephony.Provider {
	case "twilio":
		if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required for the twilio provider"))
		}
	case "sandbox":
		if c.IsProduction() {
			errs = append(errs, errors.New("TELEPHONY_PROVIDER sandbox is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("TELEPHONY_PROVIDER must be twilio or sandbox, got %q", c.Telephony.Provider))
	}

	switch c.Payments.Provider {
	case "stripe":
		if c.Stripe.SecretKey == "" || c.Stripe.WebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required for the stripe provider"))
		}
	case "sandbox":
		if c.IsProduction() {
			errs = append(errs, errors.New("PAYMENTS_PROVIDER sandbox is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("PAYMENTS_PROVIDER must be stripe or sandbox, got %q", c.Payments.Provider))
	}
	if len(c.Payments.Currency) != 3 {
		errs = append(errs, fmt.Errorf("PAYMENTS_CURRENCY must be an ISO 4217 code, got %q", c.Payments.Currency))
	}
	if _, err := parseMoney(c.Payments.MinimumPurchase, false); err != nil {
		errs = append(errs, fmt.Errorf("PAYMENTS_MINIMUM_PURCHASE %w", err))
	}

	if _, err := parseMoney(c.Billing.MinimumReserve, true); err != nil {
		errs = append(errs, fmt.Errorf("BILLING_MINIMUM_RESERVE %w", err))
	}
	if c.Billing.IncrementSeconds <= 0 || c.Billing.IncrementSeconds > 60 {
		errs = append(errs, fmt.Errorf("BILLING_INCREMENT_SECONDS must be between 1 and 60, got %d", c.Billing.IncrementSeconds))
	}
	if c.Billing.TopupTimeout <= 0 {
		errs = append(errs, errors.New("BILLING_TOPUP_TIMEOUT must be positive"))
	}
	if c.Billing.DefaultCallerID == "" || c.Billing.DefaultCallerIDCountry == "" {
		errs = append(errs, errors.New("BILLING_DEFAULT_CALLER_ID and BILLING_DEFAULT_CALLER_ID_COUNTRY are required"))
	}
	if c.Billing.MaxConcurrentCalls < 0 {
		errs = append(errs, fmt.Errorf("BILLING_MAX_CONCURRENT_CALLS must not be negative, got %d", c.Billing.MaxConcurrentCalls))
	}

	if c.Verification.CodeTTL <= 0 {
		errs = append(errs, errors.New("VERIFICATION_CODE_TTL must be positive"))
	}

	if c.Reconciler.StaleAfter <= 0 {
		errs = append(errs, errors.New("RECONCILER_STALE_AFTER must be positive"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Reserve is the parsed minimum_reserve. Validate guarantees it parses.
func (c BillingConfig) Reserve() decimal.Decimal {
	d, _ := parseMoney(c.MinimumReserve, true)
	return d
}

func (c PaymentsConfig) MinimumPurchaseAmount() decimal.Decimal {
	d, _ := parseMoney(c.MinimumPurchase, false)
	return d
}

func parseMoney(v string, allowZero bool) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, fmt.Errorf("must be a decimal amount, got %q", v)
	}
	if d.IsNegative() || (!allowZero && d.IsZero()) {
		return decimal.Zero, fmt.Errorf("must be positive, got %q", v)
	}
	return d, nil
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
