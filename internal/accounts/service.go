package accounts

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
	"time"
)

// Service manages account records. Authentication is external; users are
// registered from an already-verified identity.
type Service struct {
	store  Store
	opener BalanceOpener
	log    *slog.Logger
	clock  func() time.Time
}

// BalanceOpener creates the ledger balance for a new account when the ledger
// does not share storage with accounts.
type BalanceOpener interface {
	Open(ctx context.Context, userID string) error
}

// WithBalanceOpener installs o; Register calls it for every registration.
func (s *Service) WithBalanceOpener(o BalanceOpener) *Service {
	s.opener = o
	return s
}

func NewService(store Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, log: log, clock: time.Now}
}

// Register creates the account for userID if it does not exist yet.
// Repeated calls return the existing record unchanged.
func (s *Service) Register(ctx context.Context, userID, email string) (User, error) {
	userID = strings.TrimSpace(userID)
	email = strings.ToLower(strings.TrimSpace(email))
	if userID == "" {
		return User{}, ErrUserIDRequired
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, ErrInvalidEmail
	}

	u, err := s.store.Insert(ctx, User{ID: userID, Email: email, CreatedAt: s.clock().UTC()})
	if err != nil {
		return User{}, err
	}
	if s.opener != nil {
		if err := s.opener.Open(ctx, u.ID); err != nil {
			return User{}, err
		}
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	return s.store.Get(ctx, userID)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, limit, offset)
}

// Delete rejects admin accounts regardless of who asks.
func (s *Service) Delete(ctx context.Context, userID string) error {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.IsAdmin {
		return ErrAdminProtected
	}
	if err := s.store.Delete(ctx, userID); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "user deleted", "user_id", userID)
	return nil
}

func (s *Service) UpdateAutoTopup(ctx context.Context, userID string, a AutoTopup) (User, error) {
	if err := a.Validate(); err != nil {
		return User{}, err
	}
	if !a.Enabled {
		// Keep the last thresholds so re-enabling restores them.
		cur, err := s.store.Get(ctx, userID)
		if err != nil {
			return User{}, err
		}
		if a.Threshold.IsZero() && a.ReplenishAmount.IsZero() {
			a.Threshold, a.ReplenishAmount = cur.AutoTopup.Threshold, cur.AutoTopup.ReplenishAmount
		}
	}
	return s.store.UpdateAutoTopup(ctx, userID, a, s.clock().UTC())
}

// BindPaymentMethod stores the provider customer and payment method used for
// off-session charges.
func (s *Service) BindPaymentMethod(ctx context.Context, userID, customerID, paymentMethodID string) error {
	if customerID == "" || paymentMethodID == "" {
		return nil
	}
	return s.store.SetPaymentMethod(ctx, userID, customerID, paymentMethodID, s.clock().UTC())
}
