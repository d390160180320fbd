package accounts

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]User
}

func NewMemoryStore(seed ...User) *MemoryStore {
	s := &MemoryStore{users: make(map[string]User, len(seed))}
	for _, u := range seed {
		s.users[u.ID] = u
	}
	return s
}

func (s *MemoryStore) Insert(_ context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[u.ID]; ok {
		return existing, nil
	}
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = u
	return u, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]User, error) {
	s.mu.Lock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if u.IsAdmin {
		return ErrAdminProtected
	}
	delete(s.users, id)
	return nil
}

func (s *MemoryStore) UpdateAutoTopup(_ context.Context, id string, a AutoTopup, now time.Time) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	u.AutoTopup = a
	u.UpdatedAt = now
	s.users[id] = u
	return u, nil
}

func (s *MemoryStore) SetPaymentMethod(_ context.Context, id, customerID, paymentMethodID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PaymentCustomerID = customerID
	u.DefaultPaymentMethodID = paymentMethodID
	u.UpdatedAt = now
	s.users[id] = u
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
