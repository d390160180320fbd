package main

import (
	"database/sql"
	"log/slog"
	"time"

	"voip-platform/internal/accounts"
	"voip-platform/internal/admin"
	"voip-platform/internal/audit"
	"voip-platform/internal/auth"
	"voip-platform/internal/callerid"
	"voip-platform/internal/calls"
	"voip-platform/internal/config"
	"voip-platform/internal/httpapi"
	"voip-platform/internal/payments"
	"voip-platform/internal/pricing"
	"voip-platform/internal/reporting"
	"voip-platform/internal/telephony"
	"voip-platform/internal/topup"
	"voip-platform/internal/wallet"
	"voip-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// app is the wired dependency graph of the API process.
type app struct {
	handlers        httpapi.Handlers
	twilioWebhooks  telephony.TwilioWebhookHandler
	paymentWebhooks payments.WebhookHandler
	sandboxCheckout *payments.SandboxCheckoutHandler
	publicLimiter   *httpapi.ClientLimiter
}

func newTelephonyProvider(cfg config.Config, log *slog.Logger) telephony.Provider {
	if cfg.Telephony.Provider == "sandbox" {
		return telephony.NewSandboxProvider(log)
	}
	return telephony.NewTwilioProvider(telephony.TwilioOptions{
		AccountSID:       cfg.Twilio.AccountSID,
		AuthToken:        cfg.Twilio.AuthToken,
		BaseURL:          cfg.Twilio.APIBaseURL,
		PublicBaseURL:    cfg.App.PublicBaseURL,
		VerificationFrom: cfg.Billing.DefaultCallerID,
		Timeout:          cfg.Twilio.RequestTimeout,
	}, log)
}

func newPaymentProvider(cfg config.Config, log *slog.Logger) payments.Provider {
	if cfg.Payments.Provider == "sandbox" {
		return payments.NewSandboxProvider(cfg.App.PublicBaseURL, log)
	}
	return payments.NewStripeProvider(payments.StripeOptions{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}, log)
}

func wire(cfg config.Config, authManager *auth.Manager, db *sql.DB, rdb *redis.Client, log *slog.Logger) app {
	tx := utils.SQLTransactor{DB: db}

	ledger := wallet.NewService(wallet.NewPostgresStore(db), log)
	users := accounts.NewService(accounts.NewPostgresStore(db), log)
	rates := pricing.NewService(pricing.NewPostgresRepo(db))

	provider := newTelephonyProvider(cfg, log)
	registry := telephony.NewRegistry(3*time.Second, provider)

	var throttle callerid.Throttle = callerid.NoThrottle{}
	if cfg.Verification.ResendInterval > 0 {
		throttle = callerid.NewRedisThrottle(rdb, cfg.Verification.ResendInterval)
	}
	callerIDs := callerid.NewService(callerid.NewPostgresStore(db), tx, provider, throttle, callerid.Options{
		CodeTTL:       cfg.Verification.CodeTTL,
		DefaultRegion: cfg.Billing.DefaultCallerIDCountry,
	}, log)

	var limiter calls.Limiter = calls.NoLimit{}
	if cfg.Billing.MaxConcurrentCalls > 0 {
		limiter = calls.NewRedisLimiter(rdb, cfg.Billing.MaxConcurrentCalls, cfg.Billing.ConcurrencySlotTTL)
	}
	callSvc := calls.NewService(calls.Deps{
		Store:     calls.NewPostgresStore(db),
		Tx:        tx,
		Rates:     rates,
		Ledger:    ledger,
		CallerIDs: callerIDs,
		Limiter:   limiter,
		Log:       log,
	}, calls.Options{
		DefaultCallerID:        cfg.Billing.DefaultCallerID,
		DefaultCallerIDCountry: cfg.Billing.DefaultCallerIDCountry,
		IncrementSeconds:       cfg.Billing.IncrementSeconds,
	})

	paySvc := payments.NewService(payments.Deps{
		Store:    payments.NewPostgresStore(db),
		Tx:       tx,
		Ledger:   ledger,
		Users:    users,
		Provider: newPaymentProvider(cfg, log),
		Log:      log,
	}, payments.Options{
		Currency:        cfg.Payments.Currency,
		SuccessURL:      cfg.Payments.SuccessURL,
		CancelURL:       cfg.Payments.CancelURL,
		MinimumPurchase: cfg.Payments.MinimumPurchaseAmount(),
	})

	policy := topup.NewPolicy(ledger, users, paySvc, cfg.Billing.TopupTimeout, log)
	initiator := calls.NewInitiator(callSvc, policy, provider, calls.InitiatorOptions{
		MinimumReserve: cfg.Billing.Reserve(),
		Record:         cfg.Twilio.RecordCalls,
	}, log)
	status := calls.NewStatusHandler(callSvc, log)

	adminSvc := admin.NewService(admin.Deps{
		Calls:     callSvc,
		Payments:  paySvc,
		Ledger:    ledger,
		Users:     users,
		Rates:     rates,
		Providers: registry,
		Reports:   reporting.NewService(callSvc, ledger),
		Audit:     audit.NewService(audit.NewPostgresRepo(db), log),
		Log:       log,
	})

	a := app{
		handlers: httpapi.Handlers{
			Auth:      authManager,
			Accounts:  users,
			Wallet:    ledger,
			Rates:     rates,
			Calls:     callSvc,
			Initiator: initiator,
			CallerIDs: callerIDs,
			Topup:     policy,
			Payments:  paySvc,
			Admin:     adminSvc,
			Currency:  cfg.Payments.Currency,
			DevLogin:  !cfg.IsProduction(),
		},
		twilioWebhooks: telephony.TwilioWebhookHandler{
			Calls:              status,
			Voice:              status,
			AuthToken:          cfg.Twilio.AuthToken,
			PublicBaseURL:      cfg.App.PublicBaseURL,
			ValidateSignatures: cfg.Telephony.Provider == "twilio" && cfg.Twilio.ValidateSignatures,
		},
		paymentWebhooks: payments.WebhookHandler{Payments: paySvc},
	}
	if cfg.App.PublicRatePerMinute > 0 {
		a.publicLimiter = httpapi.NewClientLimiter(cfg.App.PublicRatePerMinute, cfg.App.PublicRateBurst)
	}
	if cfg.Payments.Provider == "sandbox" {
		a.sandboxCheckout = &payments.SandboxCheckoutHandler{Payments: paySvc, RedirectURL: cfg.Payments.SuccessURL}
	}
	return a
}
