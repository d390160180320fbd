package wallet

import (
	"context"
	"log/slog"
	"time"

	"voip-platform/internal/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service is the balance ledger.
//
// Money invariants:
// - No balance update without a ledger entry
// - Ledger is append-only
// - Balance changes are atomic increments at the storage layer, never
//   read-modify-write in application code
// - Balance is not clamped at zero
type Service struct {
	store Store
	log   *slog.Logger
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(store Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, log: log, clock: time.Now}
}

func (s *Service) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return s.store.Balance(ctx, userID)
}

// CanAfford reports balance >= minimumReserve.
func (s *Service) CanAfford(ctx context.Context, userID string, minimumReserve decimal.Decimal) (bool, error) {
	bal, err := s.store.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return bal.GreaterThanOrEqual(minimumReserve), nil
}

func (s *Service) Credit(ctx context.Context, userID string, amount decimal.Decimal, p Posting) (Entry, error) {
	return s.post(ctx, userID, EntryTypeCredit, amount, p)
}

func (s *Service) Debit(ctx context.Context, userID string, amount decimal.Decimal, p Posting) (Entry, error) {
	return s.post(ctx, userID, EntryTypeDebit, amount, p)
}

func (s *Service) ListEntries(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.Entries(ctx, userID, limit)
}

// TotalsBetween aggregates entries created in [from, to) by reason.
func (s *Service) TotalsBetween(ctx context.Context, from, to time.Time) ([]ReasonTotal, error) {
	return s.store.TotalsBetween(ctx, from, to)
}

func (s *Service) post(ctx context.Context, userID string, typ EntryType, amount decimal.Decimal, p Posting) (Entry, error) {
	if !amount.IsPositive() {
		return Entry{}, ErrInvalidAmount
	}
	if p.Reason == "" {
		return Entry{}, ErrMissingReason
	}

	signed := amount
	if typ == EntryTypeDebit {
		signed = amount.Neg()
	}

	e, err := s.store.Apply(ctx, Entry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Amount:    signed,
		Reason:    p.Reason,
		Reference: p.Reference,
		CreatedAt: s.clock().UTC(),
	})
	if err != nil {
		return Entry{}, err
	}
	if e.Replayed {
		s.log.InfoContext(ctx, "ledger posting replayed",
			"user_id", userID, "reason", p.Reason, "reference", p.Reference, "entry_id", e.ID)
		return e, nil
	}

	metrics.Get().LedgerPostings.WithLabelValues(string(typ), string(p.Reason)).Inc()
	s.log.InfoContext(ctx, "ledger posting",
		"user_id", userID,
		"type", typ,
		"amount", signed.String(),
		"reason", p.Reason,
		"reference", p.Reference,
		"balance_after", e.BalanceAfter.String(),
	)
	return e, nil
}
