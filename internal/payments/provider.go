package payments

import (
	"context"

	"github.com/shopspring/decimal"
)

// Provider is the payment processor. Amounts are in major units; adapters
// convert to the processor's representation.
type Provider interface {
	Name() string
	// CreateCheckout opens a hosted checkout that saves the card for later
	// off-session charges.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error)
	// ChargeOffSession charges a saved payment method without the user
	// present. PaymentID doubles as the idempotency key.
	ChargeOffSession(ctx context.Context, req ChargeRequest) (Charge, error)
	// ParseWebhook authenticates and decodes a provider callback.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (Event, error)
}

type CheckoutRequest struct {
	PaymentID  string
	UserID     string
	Email      string
	CustomerID string
	Amount     decimal.Decimal
	Currency   string
	SuccessURL string
	CancelURL  string
}

type Checkout struct {
	SessionID string
	URL       string
}

type ChargeRequest struct {
	PaymentID       string
	CustomerID      string
	PaymentMethodID string
	Amount          decimal.Decimal
	Currency        string
}

type Charge struct {
	ProviderPaymentID string
	Succeeded         bool
}

type EventType string

const (
	EventCheckoutCompleted EventType = "checkout_completed"
	EventCheckoutExpired   EventType = "checkout_expired"
	EventPaymentSucceeded  EventType = "payment_succeeded"
	EventPaymentFailed     EventType = "payment_failed"
	// EventIgnored covers callbacks we acknowledge without acting on.
	EventIgnored EventType = "ignored"
)

// Event is a provider callback reduced to what the ledger needs.
type Event struct {
	ID                string    `json:"id"`
	Type              EventType `json:"type"`
	PaymentID         string    `json:"payment_id"`
	SessionID         string    `json:"session_id"`
	ProviderPaymentID string    `json:"provider_payment_id"`
	CustomerID        string    `json:"customer_id"`
	PaymentMethodID   string    `json:"payment_method_id"`
}
