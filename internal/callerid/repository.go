package callerid

import (
	"context"
	"time"
)

// Store persists caller ID records. Get and Delete are scoped to the owner.
type Store interface {
	Insert(ctx context.Context, c CallerID) error
	Get(ctx context.Context, userID, id string) (CallerID, error)
	FindVerified(ctx context.Context, userID, phone string) (CallerID, error)
	// DeleteUnverified removes the user's non-VERIFIED records for phone.
	DeleteUnverified(ctx context.Context, userID, phone string) (int, error)
	// RecordFailure increments attempts and sets status in one statement.
	RecordFailure(ctx context.Context, id string, status Status, now time.Time) (CallerID, error)
	SetStatus(ctx context.Context, id string, status Status, now time.Time) (CallerID, error)
	// MarkVerified moves a PENDING record to VERIFIED and clears the code.
	MarkVerified(ctx context.Context, id string, now time.Time) (CallerID, error)
	ListByUser(ctx context.Context, userID string) ([]CallerID, error)
	Delete(ctx context.Context, userID, id string) error
}
