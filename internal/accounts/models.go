package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the billing identity. Balance is owned by internal/wallet; it is
// read here for display only and never written through this package.
type User struct {
	ID      string          `json:"id"`
	Email   string          `json:"email"`
	Balance decimal.Decimal `json:"balance"`
	IsAdmin bool            `json:"is_admin"`

	AutoTopup AutoTopup `json:"auto_topup"`

	// Payment provider references captured after the first checkout; needed
	// for off-session top-up charges.
	PaymentCustomerID      string `json:"-"`
	DefaultPaymentMethodID string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPaymentMethod reports whether off-session charges are possible.
func (u User) HasPaymentMethod() bool {
	return u.PaymentCustomerID != "" && u.DefaultPaymentMethodID != ""
}

// AutoTopup is the per-user replenish rule.
type AutoTopup struct {
	Enabled         bool            `json:"enabled"`
	Threshold       decimal.Decimal `json:"threshold"`
	ReplenishAmount decimal.Decimal `json:"replenish_amount"`
}

var (
	MinTopupThreshold = decimal.NewFromInt(1)
	MinReplenish      = decimal.NewFromInt(5)
)

// Validate enforces threshold >= 1.00, replenish >= 5.00 and
// threshold < replenish. Disabled settings are accepted as-is.
func (a AutoTopup) Validate() error {
	if !a.Enabled {
		return nil
	}
	if !isCents(a.Threshold) || !isCents(a.ReplenishAmount) {
		return invalidTopup("amounts must have at most 2 decimal places")
	}
	switch {
	case a.Threshold.LessThan(MinTopupThreshold):
		return invalidTopup("threshold must be at least " + MinTopupThreshold.StringFixed(2))
	case a.ReplenishAmount.LessThan(MinReplenish):
		return invalidTopup("replenish_amount must be at least " + MinReplenish.StringFixed(2))
	case !a.Threshold.LessThan(a.ReplenishAmount):
		return invalidTopup("threshold must be less than replenish_amount")
	}
	return nil
}

func isCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}
