package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar points at an optional YAML file layered between defaults and env.
const PathEnvVar = "CONFIG_PATH"

// Defaults returns the values applied before the config file and environment.
func Defaults() Config {
	return Config{
		App:       AppConfig{Port: 8080, LogFormat: "json", PublicRatePerMinute: 60, PublicRateBurst: 20},
		DB:        DBConfig{Port: 5432, MaxOpenConns: 25},
		Redis:     RedisConfig{Port: 6379},
		Telephony: TelephonyConfig{Provider: "twilio"},
		Twilio: TwilioConfig{
			APIBaseURL:         "https://api.twilio.com",
			RequestTimeout:     10 * time.Second,
			ValidateSignatures: true,
		},
		Payments: PaymentsConfig{
			Provider:        "stripe",
			Currency:        "USD",
			MinimumPurchase: "5.00",
		},
		Billing: BillingConfig{
			MinimumReserve:     "1.00",
			IncrementSeconds:   1,
			TopupTimeout:       15 * time.Second,
			ConcurrencySlotTTL: 4 * time.Hour,
		},
		Verification: VerificationConfig{
			CodeTTL:        10 * time.Minute,
			ResendInterval: time.Minute,
		},
		Reconciler: ReconcilerConfig{
			Schedule:   "0 */5 * * * *",
			StaleAfter: 2 * time.Hour,
			BatchSize:  100,
			RunTimeout: 4 * time.Minute,
		},
	}
}

// Load reads defaults, then CONFIG_PATH (if set), then environment variables,
// and validates the result.
func Load() (Config, error) {
	k := koanf.New(".")

	defaults := Defaults()
	if err := k.Load(structs.Provider(&defaults, "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path := strings.TrimSpace(os.Getenv(PathEnvVar)); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// envMappings maps environment variables to koanf keys. Unlisted variables are ignored.
var envMappings = map[string]string{
	"APP_ENV":                    "app.env",
	"APP_PORT":                   "app.port",
	"LOG_FORMAT":                 "app.log_format",
	"PUBLIC_BASE_URL":            "app.public_base_url",
	"APP_PUBLIC_RATE_PER_MINUTE": "app.public_rate_per_minute",
	"APP_PUBLIC_RATE_BURST":      "app.public_rate_burst",

	"DB_HOST":           "db.host",
	"DB_PORT":           "db.port",
	"DB_USER":           "db.user",
	"DB_PASSWORD":       "db.password",
	"DB_NAME":           "db.name",
	"DB_SSLMODE":        "db.sslmode",
	"DB_MAX_OPEN_CONNS": "db.max_open_conns",

	"REDIS_HOST":     "redis.host",
	"REDIS_PORT":     "redis.port",
	"REDIS_PASSWORD": "redis.password",
	"REDIS_DB":       "redis.db",

	"JWT_SECRET":      "auth.jwt_secret",
	"JWT_ISSUER":      "auth.jwt_issuer",
	"JWT_AUDIENCE":    "auth.jwt_audience",
	"JWT_ACCESS_TTL":  "auth.access_token_ttl",
	"JWT_REFRESH_TTL": "auth.refresh_token_ttl",

	"TELEPHONY_PROVIDER":         "telephony.provider",
	"TWILIO_ACCOUNT_SID":         "twilio.account_sid",
	"TWILIO_AUTH_TOKEN":          "twilio.auth_token",
	"TWILIO_API_BASE_URL":        "twilio.api_base_url",
	"TWILIO_REQUEST_TIMEOUT":     "twilio.request_timeout",
	"TWILIO_VALIDATE_SIGNATURES": "twilio.validate_signatures",
	"TWILIO_RECORD_CALLS":        "twilio.record_calls",

	"PAYMENTS_PROVIDER":         "payments.provider",
	"PAYMENTS_CURRENCY":         "payments.currency",
	"PAYMENTS_SUCCESS_URL":      "payments.success_url",
	"PAYMENTS_CANCEL_URL":       "payments.cancel_url",
	"PAYMENTS_MINIMUM_PURCHASE": "payments.minimum_purchase",
	"STRIPE_SECRET_KEY":         "stripe.secret_key",
	"STRIPE_WEBHOOK_SECRET":     "stripe.webhook_secret",

	"BILLING_MINIMUM_RESERVE":           "billing.minimum_reserve",
	"BILLING_INCREMENT_SECONDS":         "billing.increment_seconds",
	"BILLING_TOPUP_TIMEOUT":             "billing.topup_timeout",
	"BILLING_DEFAULT_CALLER_ID":         "billing.default_caller_id",
	"BILLING_DEFAULT_CALLER_ID_COUNTRY": "billing.default_caller_id_country",
	"BILLING_MAX_CONCURRENT_CALLS":      "billing.max_concurrent_calls",
	"BILLING_CONCURRENCY_SLOT_TTL":      "billing.concurrency_slot_ttl",

	"VERIFICATION_CODE_TTL":        "verification.code_ttl",
	"VERIFICATION_RESEND_INTERVAL": "verification.resend_interval",

	"RECONCILER_SCHEDULE":    "reconciler.schedule",
	"RECONCILER_STALE_AFTER": "reconciler.stale_after",
	"RECONCILER_BATCH_SIZE":  "reconciler.batch_size",
	"RECONCILER_RUN_TIMEOUT": "reconciler.run_timeout",
}

func envKey(key string) string {
	return envMappings[strings.ToUpper(key)]
}
