// Package topup decides whether a user may start a call and, when the
// balance is short, replenishes it through an off-session payment.
package topup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"voip-platform/internal/accounts"
	"voip-platform/internal/apperr"
	"voip-platform/internal/metrics"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientBalance = apperr.New(apperr.KindInsufficientBalance, "insufficient balance, top-up suggested")
	ErrTopupFailed         = apperr.New(apperr.KindTopupFailed, "automatic top-up failed, please add credit")
)

// Admission is the outcome of the pre-call check.
type Admission struct {
	CanProceed     bool `json:"can_proceed"`
	TopupTriggered bool `json:"topup_triggered"`
	// TopupAttempted is set when a charge was tried, whether or not it succeeded.
	TopupAttempted bool `json:"topup_attempted"`
}

// Err converts a refused admission to the error shown to the caller.
func (a Admission) Err() error {
	switch {
	case a.CanProceed:
		return nil
	case a.TopupAttempted:
		return ErrTopupFailed
	default:
		return ErrInsufficientBalance
	}
}

// Balances reads the ledger.
type Balances interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
}

// Users reads and updates auto top-up settings.
type Users interface {
	Get(ctx context.Context, userID string) (accounts.User, error)
	UpdateAutoTopup(ctx context.Context, userID string, a accounts.AutoTopup) (accounts.User, error)
}

// Charger charges the user's saved payment method and credits the ledger
// once the charge settles. A nil error means the credit was applied.
type Charger interface {
	ChargeTopup(ctx context.Context, u accounts.User, amount decimal.Decimal) error
}

// Policy is advisory admission control. Nothing is held between the check
// and the debit at call finalize, so concurrent calls may both pass.
type Policy struct {
	balances Balances
	users    Users
	charger  Charger
	timeout  time.Duration
	log      *slog.Logger
}

// NewPolicy builds a policy. timeout bounds the payment round trip; zero means 15s.
func NewPolicy(balances Balances, users Users, charger Charger, timeout time.Duration, log *slog.Logger) *Policy {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Policy{balances: balances, users: users, charger: charger, timeout: timeout, log: log}
}

// CheckBalanceBeforeCall admits the call when balance >= minimumReserve.
// Otherwise, with auto top-up enabled and balance below the threshold, it
// charges the replenish amount and admits on success.
func (p *Policy) CheckBalanceBeforeCall(ctx context.Context, userID string, minimumReserve decimal.Decimal) (Admission, error) {
	bal, err := p.balances.GetBalance(ctx, userID)
	if err != nil {
		return Admission{}, err
	}
	if bal.GreaterThanOrEqual(minimumReserve) {
		return Admission{CanProceed: true}, nil
	}

	u, err := p.users.Get(ctx, userID)
	if err != nil {
		return Admission{}, err
	}
	cfg := u.AutoTopup
	if !cfg.Enabled || !bal.LessThan(cfg.Threshold) {
		return Admission{}, nil
	}

	m := metrics.Get()
	log := p.log.With("user_id", userID, "balance", bal.String(), "amount", cfg.ReplenishAmount.String())

	if !u.HasPaymentMethod() || p.charger == nil {
		m.TopupAttempts.WithLabelValues("no_payment_method").Inc()
		log.WarnContext(ctx, "auto top-up skipped: no saved payment method")
		return Admission{TopupAttempted: true}, nil
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.charger.ChargeTopup(cctx, u, cfg.ReplenishAmount); err != nil {
		result := "failed"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
			result = "timeout"
		}
		m.TopupAttempts.WithLabelValues(result).Inc()
		log.WarnContext(ctx, "auto top-up failed", "result", result, "err", err)
		return Admission{TopupAttempted: true}, nil
	}

	m.TopupAttempts.WithLabelValues("succeeded").Inc()
	log.InfoContext(ctx, "auto top-up succeeded")
	return Admission{CanProceed: true, TopupTriggered: true, TopupAttempted: true}, nil
}

// Settings returns the user's current rule.
func (p *Policy) Settings(ctx context.Context, userID string) (accounts.AutoTopup, error) {
	u, err := p.users.Get(ctx, userID)
	if err != nil {
		return accounts.AutoTopup{}, err
	}
	return u.AutoTopup, nil
}

// UpdateSettings validates and stores the rule.
func (p *Policy) UpdateSettings(ctx context.Context, userID string, a accounts.AutoTopup) (accounts.AutoTopup, error) {
	u, err := p.users.UpdateAutoTopup(ctx, userID, a)
	if err != nil {
		return accounts.AutoTopup{}, err
	}
	p.log.InfoContext(ctx, "auto top-up settings updated",
		"user_id", userID,
		"enabled", u.AutoTopup.Enabled,
		"threshold", u.AutoTopup.Threshold.String(),
		"replenish_amount", u.AutoTopup.ReplenishAmount.String(),
	)
	return u.AutoTopup, nil
}
