package payments

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Payment is one money-in event: a hosted checkout or an off-session
// auto top-up charge. The ledger is credited at most once per payment.
type Payment struct {
	ID       string          `json:"id"`
	UserID   string          `json:"user_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Status   Status          `json:"status"`
	Kind     Kind            `json:"kind"`

	ProviderSessionID string `json:"provider_session_id,omitempty"`
	ProviderPaymentID string `json:"provider_payment_id,omitempty"`
	CheckoutURL       string `json:"checkout_url,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus accepts the canonical names case-insensitively and rejects
// anything else.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusCompleted, StatusFailed, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

type Kind string

const (
	KindCheckout  Kind = "checkout"
	KindAutoTopup Kind = "auto_topup"
)

type Filter struct {
	UserID string
	Status Status
	Limit  int
	Offset int
}
