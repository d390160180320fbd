package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type CallsSummary struct {
	Range TimeRange `json:"range"`

	TotalCalls      int `json:"total_calls"`
	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	CancelledCalls  int `json:"cancelled_calls"`
	RefundedCalls   int `json:"refunded_calls"`
	InProgressCalls int `json:"in_progress_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`
	RecordedCalls          int `json:"recorded_calls"`

	// Revenue is the cost of completed, unrefunded calls.
	Revenue decimal.Decimal `json:"revenue"`

	ByCountry []CountryTotal `json:"by_country"`
}

type CountryTotal struct {
	CountryName string          `json:"country_name"`
	CountryCode string          `json:"country_code"`
	Calls       int             `json:"calls"`
	Seconds     int             `json:"seconds"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// LedgerSummary is derived from immutable ledger entries. Debits are
// reported as positive amounts.
type LedgerSummary struct {
	Range TimeRange `json:"range"`

	CallCharges    decimal.Decimal `json:"call_charges"`
	CallRefunds    decimal.Decimal `json:"call_refunds"`
	PaymentCredits decimal.Decimal `json:"payment_credits"`
	PaymentRefunds decimal.Decimal `json:"payment_refunds"`
	AdminCredits   decimal.Decimal `json:"admin_credits"`

	TotalCredits decimal.Decimal `json:"total_credits"`
	TotalDebits  decimal.Decimal `json:"total_debits"`
	Net          decimal.Decimal `json:"net"`
	Entries      int64           `json:"entries"`
}

type Dashboard struct {
	Calls  CallsSummary  `json:"calls"`
	Ledger LedgerSummary `json:"ledger"`
}
