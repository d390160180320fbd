package pricing

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is a simple in-memory repository useful for tests and local development.
type MemoryRepo struct {
	mu    sync.Mutex
	Rates []Rate
}

func (r *MemoryRepo) ListActive(_ context.Context, callerIDCountry string) ([]Rate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Rate
	for _, rate := range r.Rates {
		if !rate.Active {
			continue
		}
		if callerIDCountry != "" && rate.CallerIDCountry != callerIDCountry {
			continue
		}
		out = append(out, rate)
	}
	sortByName(out)
	return out, nil
}

func (r *MemoryRepo) List(_ context.Context) ([]Rate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := append([]Rate(nil), r.Rates...)
	sortByName(out)
	return out, nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (Rate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rate := range r.Rates {
		if rate.ID == id {
			return rate, nil
		}
	}
	return Rate{}, ErrRateNotFound
}

func (r *MemoryRepo) SetActive(_ context.Context, id string, active bool, now time.Time) (Rate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.Rates {
		if r.Rates[i].ID == id {
			r.Rates[i].Active = active
			r.Rates[i].UpdatedAt = now
			return r.Rates[i], nil
		}
	}
	return Rate{}, ErrRateNotFound
}

func sortByName(rates []Rate) {
	sort.SliceStable(rates, func(i, j int) bool {
		if rates[i].CountryName != rates[j].CountryName {
			return rates[i].CountryName < rates[j].CountryName
		}
		return rates[i].CallerIDCountry < rates[j].CallerIDCountry
	})
}
