package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"voip-platform/internal/calls"
	"voip-platform/internal/telephony"
	"voip-platform/internal/wallet"

	"github.com/shopspring/decimal"
)

type fixedLock struct {
	ok  bool
	err error
}

func (l fixedLock) TryLock(context.Context) (bool, error) { return l.ok, l.err }

type testEnv struct {
	rec      *Reconciler
	calls    *calls.Service
	ledger   *wallet.Service
	provider *telephony.SandboxProvider
}

func newTestEnv(t *testing.T, lock Lock, seed ...calls.Call) *testEnv {
	t.Helper()
	ws := wallet.NewMemoryStore()
	ws.Seed("u1", decimal.NewFromInt(10))
	env := &testEnv{
		ledger:   wallet.NewService(ws, nil),
		provider: telephony.NewSandboxProvider(nil),
	}
	env.calls = calls.NewService(calls.Deps{Store: calls.NewMemoryStore(seed...), Ledger: env.ledger}, calls.Options{})
	env.rec = New(env.calls, calls.NewStatusHandler(env.calls, nil), env.provider, lock, Options{StaleAfter: time.Hour}, nil)
	return env
}

func staleCall(id, providerID string, status calls.Status) calls.Call {
	return calls.Call{
		ID:             id,
		UserID:         "u1",
		Status:         status,
		ProviderCallID: providerID,
		RatePerMinute:  decimal.RequireFromString("0.10"),
		Cost:           decimal.Zero,
		CreatedAt:      time.Now().Add(-3 * time.Hour),
	}
}

func TestRunOnce(t *testing.T) {
	fresh := staleCall("fresh", "CA-fresh", calls.StatusRinging)
	fresh.CreatedAt = time.Now()
	env := newTestEnv(t, nil,
		staleCall("unplaced", "", calls.StatusInitiated),
		staleCall("done", "CA-done", calls.StatusAnswered),
		staleCall("live", "CA-live", calls.StatusAnswered),
		staleCall("lost", "CA-lost", calls.StatusRinging),
		fresh,
	)
	env.provider.SetCall(telephony.CallInfo{ProviderCallID: "CA-done", State: telephony.CallStateCompleted, DurationSeconds: 120})
	env.provider.SetCall(telephony.CallInfo{ProviderCallID: "CA-live", State: telephony.CallStateInProgress})

	res, err := env.rec.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := Result{Scanned: 4, Finalized: 1, Failed: 2, Active: 1}
	if res != want {
		t.Fatalf("expected %+v, got %+v", want, res)
	}

	ctx := context.Background()
	done, _ := env.calls.Get(ctx, "done")
	if done.Status != calls.StatusCompleted || !done.Cost.Equal(decimal.RequireFromString("0.2")) {
		t.Fatalf("expected completed call billed 0.20, got %+v", done)
	}
	for _, id := range []string{"unplaced", "lost"} {
		c, _ := env.calls.Get(ctx, id)
		if c.Status != calls.StatusFailed || !c.Cost.IsZero() {
			t.Fatalf("%s: expected FAILED at zero, got %+v", id, c)
		}
	}
	if live, _ := env.calls.Get(ctx, "live"); live.Status != calls.StatusAnswered {
		t.Fatalf("expected live call untouched, got %s", live.Status)
	}
	bal, _ := env.ledger.GetBalance(ctx, "u1")
	if !bal.Equal(decimal.RequireFromString("9.8")) {
		t.Fatalf("expected one charge, balance %s", bal)
	}

	// A second pass finds only the still-active call.
	res, _ = env.rec.RunOnce(ctx)
	if res.Scanned != 1 || res.Active != 1 {
		t.Fatalf("expected only live call rescanned, got %+v", res)
	}
}

func TestRunOnce_Lock(t *testing.T) {
	env := newTestEnv(t, fixedLock{ok: false}, staleCall("unplaced", "", calls.StatusInitiated))

	res, err := env.rec.RunOnce(context.Background())
	if err != nil || res.Scanned != 0 {
		t.Fatalf("expected skipped run, got %+v %v", res, err)
	}

	env = newTestEnv(t, fixedLock{err: errors.New("redis down")})
	if _, err := env.rec.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected lock error surfaced")
	}
}

func TestScheduler_RejectsBadSchedule(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := NewScheduler(env.rec, "not a schedule", time.Second, nil); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := NewScheduler(env.rec, "*/5 * * * *", time.Second, nil); err == nil {
		t.Fatalf("expected five-field schedule rejected")
	}
	s, err := NewScheduler(env.rec, "0 */5 * * * *", time.Second, nil)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
