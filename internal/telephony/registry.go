package telephony

import (
	"context"
	"time"
)

// ProviderStatus is one row of the admin provider listing.
type ProviderStatus struct {
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
	Breaker   string `json:"breaker,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type breakerStater interface {
	BreakerState() string
}

// Registry lists configured providers; the first is the active one.
type Registry struct {
	providers []Provider
	timeout   time.Duration
}

func NewRegistry(timeout time.Duration, providers ...Provider) *Registry {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Registry{providers: providers, timeout: timeout}
}

// Active returns the provider used for new calls.
func (r *Registry) Active() Provider {
	if len(r.providers) == 0 {
		return nil
	}
	return r.providers[0]
}

// Status health-checks each provider under the registry timeout.
func (r *Registry) Status(ctx context.Context) []ProviderStatus {
	out := make([]ProviderStatus, 0, len(r.providers))
	for i, p := range r.providers {
		st := ProviderStatus{Name: p.Name(), Active: i == 0}
		if b, ok := p.(breakerStater); ok {
			st.Breaker = b.BreakerState()
		}

		hctx, cancel := context.WithTimeout(ctx, r.timeout)
		start := time.Now()
		err := p.HealthCheck(hctx)
		cancel()

		st.LatencyMS = time.Since(start).Milliseconds()
		st.Healthy = err == nil
		if err != nil {
			st.Error = err.Error()
		}
		out = append(out, st)
	}
	return out
}
