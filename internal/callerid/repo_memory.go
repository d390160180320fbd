package callerid

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu   sync.Mutex
	byID map[string]CallerID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]CallerID{}}
}

func (s *MemoryStore) Insert(_ context.Context, c CallerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.UpdatedAt = c.CreatedAt
	s.byID[c.ID] = c
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID, id string) (CallerID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok || c.UserID != userID {
		return CallerID{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) FindVerified(_ context.Context, userID, phone string) (CallerID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byID {
		if c.UserID == userID && c.PhoneNumber == phone && c.Status == StatusVerified {
			return c, nil
		}
	}
	return CallerID{}, ErrNotFound
}

func (s *MemoryStore) DeleteUnverified(_ context.Context, userID, phone string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.byID {
		if c.UserID == userID && c.PhoneNumber == phone && c.Status != StatusVerified {
			delete(s.byID, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) RecordFailure(_ context.Context, id string, status Status, now time.Time) (CallerID, error) {
	return s.update(id, func(c *CallerID) error {
		c.Attempts++
		c.Status = status
		c.UpdatedAt = now
		return nil
	})
}

func (s *MemoryStore) SetStatus(_ context.Context, id string, status Status, now time.Time) (CallerID, error) {
	return s.update(id, func(c *CallerID) error {
		c.Status = status
		c.UpdatedAt = now
		return nil
	})
}

func (s *MemoryStore) MarkVerified(_ context.Context, id string, now time.Time) (CallerID, error) {
	return s.update(id, func(c *CallerID) error {
		if c.Status != StatusPending {
			return ErrAlreadyVerified
		}
		c.Status = StatusVerified
		c.Code = ""
		c.CodeExpiresAt = nil
		c.IsActive = true
		c.VerifiedAt = &now
		c.UpdatedAt = now
		return nil
	})
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]CallerID, error) {
	s.mu.Lock()
	var out []CallerID
	for _, c := range s.byID {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok || c.UserID != userID {
		return ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *MemoryStore) update(id string, fn func(c *CallerID) error) (CallerID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return CallerID{}, ErrNotFound
	}
	if err := fn(&c); err != nil {
		return CallerID{}, err
	}
	s.byID[id] = c
	return c, nil
}
