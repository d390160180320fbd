package accounts

import (
	"context"
	"time"
)

// Store persists users. Implementations: PostgresStore, MemoryStore.
type Store interface {
	// Insert creates the user if absent and returns the stored row.
	Insert(ctx context.Context, u User) (User, error)
	Get(ctx context.Context, id string) (User, error)
	List(ctx context.Context, limit, offset int) ([]User, error)
	// Delete removes a non-admin user. It returns ErrAdminProtected for admins.
	Delete(ctx context.Context, id string) error
	UpdateAutoTopup(ctx context.Context, id string, a AutoTopup, now time.Time) (User, error)
	SetPaymentMethod(ctx context.Context, id, customerID, paymentMethodID string, now time.Time) error
}
