package calls

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store persists call records. Status changes are compare-and-swap: they
// apply only while the row is in an expected state, and report ok=false
// with the current row otherwise.
type Store interface {
	Insert(ctx context.Context, c Call) error
	Get(ctx context.Context, id string) (Call, error)
	GetByProviderID(ctx context.Context, providerCallID string) (Call, error)
	SetProviderCallID(ctx context.Context, id, providerCallID string, now time.Time) error

	// Transition moves the call to `to` when its status is one of from.
	Transition(ctx context.Context, id string, from []Status, to Status, now time.Time) (Call, bool, error)
	// Finalize records the terminal status, duration and cost while the call
	// is non-terminal.
	Finalize(ctx context.Context, id string, status Status, durationSeconds int, cost decimal.Decimal, now time.Time) (Call, bool, error)
	// MarkRefunded moves a COMPLETED call to CANCELLED and stamps RefundedAt.
	MarkRefunded(ctx context.Context, id string, now time.Time) (Call, error)
	SetRecording(ctx context.Context, id, recordingURL string, now time.Time) error

	List(ctx context.Context, f Filter) ([]Call, error)
	// ListStale returns non-terminal calls created before cutoff, oldest first.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]Call, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]Call, error)
}
