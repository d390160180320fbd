package payments

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu       sync.Mutex
	payments map[string]Payment
}

func NewMemoryStore(seed ...Payment) *MemoryStore {
	s := &MemoryStore{payments: make(map[string]Payment, len(seed))}
	for _, p := range seed {
		s.payments[p.ID] = p
	}
	return s
}

func (s *MemoryStore) Insert(_ context.Context, p Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.UpdatedAt = p.CreatedAt
	s.payments[p.ID] = p
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

func (s *MemoryStore) GetBySession(_ context.Context, sessionID string) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if sessionID != "" && p.ProviderSessionID == sessionID {
			return p, nil
		}
	}
	return Payment{}, ErrPaymentNotFound
}

func (s *MemoryStore) SetSession(_ context.Context, id, sessionID, checkoutURL string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	p.ProviderSessionID = sessionID
	p.CheckoutURL = checkoutURL
	p.UpdatedAt = now
	s.payments[id] = p
	return nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, from, to Status, providerPaymentID string, now time.Time) (Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return Payment{}, false, ErrPaymentNotFound
	}
	if p.Status != from {
		return p, false, nil
	}
	p.Status = to
	if providerPaymentID != "" {
		p.ProviderPaymentID = providerPaymentID
	}
	if to == StatusCompleted {
		t := now
		p.CompletedAt = &t
	}
	p.UpdatedAt = now
	s.payments[id] = p
	return p, true, nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]Payment, error) {
	s.mu.Lock()
	var out []Payment
	for _, p := range s.payments {
		if f.UserID != "" && p.UserID != f.UserID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		out = append(out, p)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}
