package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entry is an immutable ledger row. Every balance change writes exactly one.
// Amount is signed: credits are positive, debits negative.
type Entry struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Type         EntryType       `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Reason       Reason          `json:"reason"`
	Reference    string          `json:"reference,omitempty"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`

	// Replayed is set when the posting matched an existing entry and the
	// balance was left untouched.
	Replayed bool `json:"-"`
}

type EntryType string

const (
	EntryTypeCredit EntryType = "credit"
	EntryTypeDebit  EntryType = "debit"
)

// Reason categorizes an entry. Keep stable; reporting groups on it.
type Reason string

const (
	ReasonCallCharge    Reason = "call_charge"
	ReasonCallRefund    Reason = "call_refund"
	ReasonPaymentCredit Reason = "payment_credit"
	ReasonPaymentRefund Reason = "payment_refund"
	ReasonAdminCredit   Reason = "admin_credit"
)

// Posting describes why money moved. A non-empty Reference makes the posting
// idempotent per (user, reason, reference).
type Posting struct {
	Reason    Reason
	Reference string
}

// ReasonTotal aggregates entries for reporting.
type ReasonTotal struct {
	Reason Reason          `json:"reason"`
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}
