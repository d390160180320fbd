package payments

import (
	"context"
	"time"
)

// Store persists payments. Transition is compare-and-swap on status.
type Store interface {
	Insert(ctx context.Context, p Payment) error
	Get(ctx context.Context, id string) (Payment, error)
	GetBySession(ctx context.Context, sessionID string) (Payment, error)
	SetSession(ctx context.Context, id, sessionID, checkoutURL string, now time.Time) error

	// Transition moves the payment to `to` when its status is `from`. A
	// non-empty providerPaymentID is stored alongside.
	Transition(ctx context.Context, id string, from, to Status, providerPaymentID string, now time.Time) (Payment, bool, error)

	List(ctx context.Context, f Filter) ([]Payment, error)
}
