// Package reconcile repairs calls whose final status callback never arrived.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"voip-platform/internal/apperr"
	"voip-platform/internal/calls"
	"voip-platform/internal/metrics"
	"voip-platform/internal/telephony"
)

// StaleCalls lists and fails calls. Implemented by *calls.Service.
type StaleCalls interface {
	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]calls.Call, error)
	FailOnProvider(ctx context.Context, callID string) (calls.Call, error)
}

// StatusApplier applies a provider status. Implemented by *calls.StatusHandler.
type StatusApplier interface {
	Apply(ctx context.Context, up telephony.StatusUpdate) error
}

// CallFetcher reads the provider's view of a call.
type CallFetcher interface {
	FetchCall(ctx context.Context, providerCallID string) (telephony.CallInfo, error)
}

// Lock keeps replicas from reconciling the same batch at once.
type Lock interface {
	TryLock(ctx context.Context) (bool, error)
}

type Options struct {
	StaleAfter time.Duration
	BatchSize  int
}

type Result struct {
	Scanned   int `json:"scanned"`
	Finalized int `json:"finalized"`
	Failed    int `json:"failed"`
	Active    int `json:"active"`
	Errors    int `json:"errors"`
}

type Reconciler struct {
	calls    StaleCalls
	status   StatusApplier
	provider CallFetcher
	lock     Lock
	opts     Options
	log      *slog.Logger
}

func New(staleCalls StaleCalls, status StatusApplier, provider CallFetcher, lock Lock, opts Options, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 2 * time.Hour
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Reconciler{calls: staleCalls, status: status, provider: provider, lock: lock, opts: opts, log: log}
}

// RunOnce reconciles one batch. Calls with no provider id were never placed
// and are failed at zero cost. Others take whatever final state the provider
// reports; a call the provider does not know is failed.
func (r *Reconciler) RunOnce(ctx context.Context) (Result, error) {
	runs := metrics.Get().ReconcileRuns

	if r.lock != nil {
		ok, err := r.lock.TryLock(ctx)
		if err != nil {
			runs.WithLabelValues("error").Inc()
			return Result{}, err
		}
		if !ok {
			runs.WithLabelValues("skipped").Inc()
			r.log.InfoContext(ctx, "reconcile skipped: another run holds the lock")
			return Result{}, nil
		}
	}

	stale, err := r.calls.ListStale(ctx, r.opts.StaleAfter, r.opts.BatchSize)
	if err != nil {
		runs.WithLabelValues("error").Inc()
		return Result{}, err
	}

	var res Result
	for _, c := range stale {
		if ctx.Err() != nil {
			break
		}
		res.Scanned++
		outcome := r.reconcile(ctx, c)
		metrics.Get().ReconcileCalls.WithLabelValues(outcome).Inc()
		switch outcome {
		case "finalized":
			res.Finalized++
		case "failed":
			res.Failed++
		case "active":
			res.Active++
		default:
			res.Errors++
		}
	}

	runs.WithLabelValues("ok").Inc()
	r.log.InfoContext(ctx, "reconcile run finished",
		"scanned", res.Scanned, "finalized", res.Finalized, "failed", res.Failed, "active", res.Active, "errors", res.Errors)
	return res, ctx.Err()
}

func (r *Reconciler) reconcile(ctx context.Context, c calls.Call) string {
	log := r.log.With("call_id", c.ID, "provider_call_id", c.ProviderCallID, "status", c.Status)

	if c.ProviderCallID == "" {
		if _, err := r.calls.FailOnProvider(ctx, c.ID); err != nil {
			log.ErrorContext(ctx, "failed to close unplaced call", "err", err)
			return "error"
		}
		log.WarnContext(ctx, "closed call that never reached the provider")
		return "failed"
	}

	info, err := r.provider.FetchCall(ctx, c.ProviderCallID)
	if errors.Is(err, telephony.ErrCallNotFound) {
		if _, err := r.calls.FailOnProvider(ctx, c.ID); err != nil {
			log.ErrorContext(ctx, "failed to close unknown call", "err", err)
			return "error"
		}
		log.WarnContext(ctx, "provider has no record of call")
		return "failed"
	}
	if err != nil {
		log.WarnContext(ctx, "provider lookup failed", "err", err)
		return "error"
	}

	next := calls.FromProviderState(info.State)
	err = r.status.Apply(ctx, telephony.StatusUpdate{
		CallID:          c.ID,
		ProviderCallID:  c.ProviderCallID,
		State:           info.State,
		DurationSeconds: info.DurationSeconds,
	})
	if err != nil && apperr.KindOf(err) != apperr.KindInvalidState {
		log.ErrorContext(ctx, "failed to apply provider status", "provider_state", info.State, "err", err)
		return "error"
	}
	if next != "" && next.Terminal() {
		log.InfoContext(ctx, "call reconciled", "provider_state", info.State, "duration_seconds", info.DurationSeconds)
		return "finalized"
	}
	return "active"
}
