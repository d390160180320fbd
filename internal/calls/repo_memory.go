package calls

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu    sync.Mutex
	calls map[string]Call
}

func NewMemoryStore(seed ...Call) *MemoryStore {
	s := &MemoryStore{calls: make(map[string]Call, len(seed))}
	for _, c := range seed {
		s.calls[c.ID] = c
	}
	return s
}

func (s *MemoryStore) Insert(_ context.Context, c Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.UpdatedAt = c.CreatedAt
	s.calls[c.ID] = c
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return Call{}, ErrCallNotFound
	}
	return c, nil
}

func (s *MemoryStore) GetByProviderID(_ context.Context, providerCallID string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if providerCallID != "" && c.ProviderCallID == providerCallID {
			return c, nil
		}
	}
	return Call{}, ErrCallNotFound
}

func (s *MemoryStore) SetProviderCallID(_ context.Context, id, providerCallID string, now time.Time) error {
	_, _, err := s.cas(id, nil, func(c *Call) {
		c.ProviderCallID = providerCallID
		c.UpdatedAt = now
	})
	return err
}

func (s *MemoryStore) Transition(_ context.Context, id string, from []Status, to Status, now time.Time) (Call, bool, error) {
	return s.cas(id, from, func(c *Call) {
		c.Status = to
		c.UpdatedAt = now
	})
}

func (s *MemoryStore) Finalize(_ context.Context, id string, status Status, durationSeconds int, cost decimal.Decimal, now time.Time) (Call, bool, error) {
	return s.cas(id, sourcesFor(status), func(c *Call) {
		c.Status = status
		c.DurationSeconds = durationSeconds
		c.Cost = cost
		c.EndedAt = &now
		c.UpdatedAt = now
	})
}

func (s *MemoryStore) MarkRefunded(_ context.Context, id string, now time.Time) (Call, error) {
	c, ok, err := s.cas(id, []Status{StatusCompleted}, func(c *Call) {
		c.Status = StatusCancelled
		c.RefundedAt = &now
		c.UpdatedAt = now
	})
	if err != nil {
		return Call{}, err
	}
	if !ok {
		return Call{}, ErrNotRefundable
	}
	return c, nil
}

func (s *MemoryStore) SetRecording(_ context.Context, id, recordingURL string, now time.Time) error {
	_, _, err := s.cas(id, nil, func(c *Call) {
		c.RecordingURL = recordingURL
		c.UpdatedAt = now
	})
	return err
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]Call, error) {
	out := s.filter(func(c Call) bool {
		return (f.UserID == "" || c.UserID == f.UserID) && (f.Status == "" || c.Status == f.Status)
	})
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

func (s *MemoryStore) ListStale(_ context.Context, cutoff time.Time, limit int) ([]Call, error) {
	out := s.filter(func(c Call) bool { return !c.Status.Terminal() && c.CreatedAt.Before(cutoff) })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListBetween(_ context.Context, from, to time.Time) ([]Call, error) {
	out := s.filter(func(c Call) bool { return !c.CreatedAt.Before(from) && c.CreatedAt.Before(to) })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) filter(keep func(Call) bool) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// cas applies fn when the call's status is in from; a nil from always applies.
func (s *MemoryStore) cas(id string, from []Status, fn func(c *Call)) (Call, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return Call{}, false, ErrCallNotFound
	}
	if from != nil && !slices.Contains(from, c.Status) {
		return c, false, nil
	}
	fn(&c)
	s.calls[id] = c
	return c, true, nil
}
