package wallet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	entries  []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: map[string]decimal.Decimal{}}
}

// Seed registers a user with an opening balance and no ledger history.
func (s *MemoryStore) Seed(userID string, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = balance
}

// Open starts userID at zero; an existing balance is left alone.
func (s *MemoryStore) Open(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[userID]; !ok {
		s.balances[userID] = decimal.Zero
	}
	return nil
}

func (s *MemoryStore) Balance(_ context.Context, userID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.balances[userID]
	if !ok {
		return decimal.Zero, ErrUserNotFound
	}
	return bal, nil
}

func (s *MemoryStore) Apply(_ context.Context, e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bal, ok := s.balances[e.UserID]
	if !ok {
		return Entry{}, ErrUserNotFound
	}
	if e.Reference != "" {
		for _, existing := range s.entries {
			if existing.UserID == e.UserID && existing.Reason == e.Reason && existing.Reference == e.Reference {
				existing.Replayed = true
				return existing, nil
			}
		}
	}

	bal = bal.Add(e.Amount)
	s.balances[e.UserID] = bal
	e.BalanceAfter = bal
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *MemoryStore) Entries(_ context.Context, userID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].UserID != userID {
			continue
		}
		out = append(out, s.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) TotalsBetween(_ context.Context, from, to time.Time) ([]ReasonTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byReason := map[Reason]*ReasonTotal{}
	for _, e := range s.entries {
		if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		t, ok := byReason[e.Reason]
		if !ok {
			t = &ReasonTotal{Reason: e.Reason}
			byReason[e.Reason] = t
		}
		t.Count++
		t.Amount = t.Amount.Add(e.Amount)
	}

	out := make([]ReasonTotal, 0, len(byReason))
	for _, t := range byReason {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reason < out[j].Reason })
	return out, nil
}
