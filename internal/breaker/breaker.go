// Package breaker wraps outbound provider clients (telephony, payments) in
// sony/gobreaker circuit breakers that report to internal/metrics.
package breaker

import (
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"voip-platform/internal/metrics"
)

// ErrOpen is returned when the breaker rejects a request without calling the provider.
var ErrOpen = errors.New("circuit breaker open")

// Options tunes a breaker. Zero values fall back to the defaults in New.
type Options struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64

	// IsSuccessful classifies errors that should not count against the
	// provider, e.g. a declined card.
	IsSuccessful func(err error) bool
}

// Breaker guards calls to one named provider.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
	log  *slog.Logger
}

// New builds a breaker. Defaults: 3 half-open probes, 1 minute window,
// 30 second open timeout, trips at 60% failures over at least 5 requests.
func New(name string, opts Options, log *slog.Logger) *Breaker {
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxRequests == 0 {
		opts.MaxRequests = 3
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MinRequests == 0 {
		opts.MinRequests = 5
	}
	if opts.FailureRatio <= 0 {
		opts.FailureRatio = 0.6
	}

	m := metrics.Get()
	m.BreakerState.WithLabelValues(name).Set(0)

	b := &Breaker{name: name, log: log}
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:         name,
		MaxRequests:  opts.MaxRequests,
		Interval:     opts.Interval,
		Timeout:      opts.Timeout,
		IsSuccessful: opts.IsSuccessful,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < opts.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= opts.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := StateString(from), StateString(to)
			log.Warn("circuit breaker state change", "breaker", name, "from", fromStr, "to", toStr)
			m.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
			m.BreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})
	return b
}

func (b *Breaker) Name() string { return b.name }

// State reports "closed", "half-open" or "open".
func (b *Breaker) State() string { return StateString(b.cb.State()) }

// Do runs fn through the breaker.
func (b *Breaker) Do(fn func() error) error {
	_, err := Execute(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Execute runs fn through b and returns its typed result.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	m := metrics.Get()

	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			m.BreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			var zero T
			return zero, errors.Join(ErrOpen, err)
		}
		m.BreakerRequests.WithLabelValues(b.name, "failure").Inc()
		if v, ok := res.(T); ok {
			return v, err
		}
		var zero T
		return zero, err
	}

	m.BreakerRequests.WithLabelValues(b.name, "success").Inc()
	v, _ := res.(T)
	return v, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// StateString converts a breaker state for logs and the admin provider listing.
func StateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
