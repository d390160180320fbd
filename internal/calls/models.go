package calls

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Call is one outbound call attempt.
//
// Money invariant: Cost is charged to the ledger at most once, referenced by
// the call id. The rate is copied at creation so later rate edits never
// change what a call costs.
type Call struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	From string `json:"from"`
	To   string `json:"to"`

	CountryName string `json:"country_name"`
	CountryCode string `json:"country_code"`

	Status          Status          `json:"status"`
	DurationSeconds int             `json:"duration_seconds"`
	Cost            decimal.Decimal `json:"cost"`

	RatePerMinute decimal.Decimal `json:"rate_per_minute"`
	Currency      string          `json:"currency"`

	// ProviderCallID is the telephony provider's id (Twilio CallSid).
	ProviderCallID string `json:"provider_call_id,omitempty"`
	RecordingURL   string `json:"recording_url,omitempty"`

	CallerIDType CallerIDType `json:"caller_id_type"`

	EndedAt    *time.Time `json:"ended_at,omitempty"`
	RefundedAt *time.Time `json:"refunded_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Status values are stored uppercase; ParseStatus rejects anything else.
// CANCELLED also marks a refunded call (RefundedAt set).
type Status string

const (
	StatusInitiated Status = "INITIATED"
	StatusRinging   Status = "RINGING"
	StatusAnswered  Status = "ANSWERED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// AllStatuses lists statuses in lifecycle order.
var AllStatuses = []Status{StatusInitiated, StatusRinging, StatusAnswered, StatusCompleted, StatusFailed, StatusCancelled}

func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("calls: unknown status %q", s)
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether from -> to is a legal lifecycle step.
// Nothing leaves a terminal state.
func CanTransition(from, to Status) bool {
	if from.Terminal() || from == to {
		return false
	}
	switch to {
	case StatusRinging:
		return from == StatusInitiated
	case StatusAnswered:
		return from == StatusInitiated || from == StatusRinging
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// sourcesFor lists the states a call may be in to move to target.
func sourcesFor(target Status) []Status {
	var out []Status
	for _, s := range AllStatuses {
		if CanTransition(s, target) {
			out = append(out, s)
		}
	}
	return out
}

type CallerIDType string

const (
	CallerIDDefault  CallerIDType = "default"
	CallerIDVerified CallerIDType = "verified"
)

// Filter narrows admin listings. Zero values match everything.
type Filter struct {
	UserID string
	Status Status
	Limit  int
	Offset int
}
