package calls

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voip-platform/internal/accounts"
	"voip-platform/internal/apperr"
	"voip-platform/internal/callerid"
	"voip-platform/internal/pricing"
	"voip-platform/internal/telephony"
	"voip-platform/internal/topup"
	"voip-platform/internal/wallet"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type countingLimiter struct {
	mu       sync.Mutex
	limit    int
	held     map[string]map[string]bool
	active   map[string]int
	releases int
}

func newCountingLimiter(limit int) *countingLimiter {
	return &countingLimiter{limit: limit, held: map[string]map[string]bool{}, active: map[string]int{}}
}

func (l *countingLimiter) Acquire(_ context.Context, userID, callID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[userID][callID] {
		return true, nil
	}
	if l.active[userID] >= l.limit {
		return false, nil
	}
	if l.held[userID] == nil {
		l.held[userID] = map[string]bool{}
	}
	l.held[userID][callID] = true
	l.active[userID]++
	return true, nil
}

func (l *countingLimiter) Release(_ context.Context, userID, callID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	if l.held[userID][callID] {
		delete(l.held[userID], callID)
		l.active[userID]--
	}
	return nil
}

type testEnv struct {
	svc       *Service
	ledger    *wallet.Service
	callerIDs *callerid.Service
	provider  *telephony.SandboxProvider
	limiter   *countingLimiter
	initiator *Initiator
	now       time.Time
}

func newTestEnv(t *testing.T, balance string) *testEnv {
	t.Helper()
	env := &testEnv{
		provider: telephony.NewSandboxProvider(nil),
		limiter:  newCountingLimiter(2),
		now:      time.Unix(1700000000, 0).UTC(),
	}

	ws := wallet.NewMemoryStore()
	ws.Seed("u1", d(balance))
	env.ledger = wallet.NewService(ws, nil)

	rates := pricing.NewService(&pricing.MemoryRepo{Rates: []pricing.Rate{
		{ID: "us", CountryCode: "+1", CallerIDCountry: "US", CountryName: "United States", RatePerMinute: d("0.02"), Currency: "USD", Active: true},
		{ID: "uk", CountryCode: "+44", CallerIDCountry: "US", CountryName: "United Kingdom", RatePerMinute: d("0.10"), Currency: "USD", Active: true},
	}})

	env.callerIDs = callerid.NewService(callerid.NewMemoryStore(), nil, env.provider, nil, callerid.Options{}, nil)

	env.svc = NewService(Deps{
		Store:     NewMemoryStore(),
		Rates:     rates,
		Ledger:    env.ledger,
		CallerIDs: env.callerIDs,
		Limiter:   env.limiter,
	}, Options{DefaultCallerID: "+14155550100", DefaultCallerIDCountry: "US"})
	env.svc.clock = func() time.Time { return env.now }

	users := accounts.NewService(accounts.NewMemoryStore(accounts.User{ID: "u1", Email: "u1@example.com"}), nil)
	policy := topup.NewPolicy(env.ledger, users, nil, 0, nil)
	env.initiator = NewInitiator(env.svc, policy, env.provider, InitiatorOptions{MinimumReserve: d("1.00")}, nil)
	return env
}

func (e *testEnv) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	bal, err := e.ledger.GetBalance(context.Background(), "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

func TestCreate_CapturesRate(t *testing.T) {
	env := newTestEnv(t, "10")

	c, err := env.svc.Create(context.Background(), CreateRequest{UserID: "u1", To: "+44 20 7946 0018"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Status != StatusInitiated || !c.Cost.IsZero() {
		t.Fatalf("expected INITIATED at zero cost, got %+v", c)
	}
	if c.CountryCode != "+44" || !c.RatePerMinute.Equal(d("0.10")) || c.To != "+442079460018" {
		t.Fatalf("unexpected captured destination %+v", c)
	}
	if c.From != "+14155550100" || c.CallerIDType != CallerIDDefault {
		t.Fatalf("expected default caller id, got %s %s", c.From, c.CallerIDType)
	}
}

func TestCreate_UnsupportedDestination(t *testing.T) {
	env := newTestEnv(t, "10")

	_, err := env.svc.Create(context.Background(), CreateRequest{UserID: "u1", To: "+81 3 1234 5678"})
	if apperr.KindOf(err) != apperr.KindUnsupportedDestination {
		t.Fatalf("expected unsupported destination, got %v", err)
	}
}

func TestCreate_UnverifiedCallerID(t *testing.T) {
	env := newTestEnv(t, "10")

	_, err := env.svc.Create(context.Background(), CreateRequest{UserID: "u1", To: "14155551234", CallerID: "+16502530000"})
	if !errors.Is(err, ErrCallerIDNotVerified) {
		t.Fatalf("expected caller id not verified, got %v", err)
	}

	// Pending is not enough.
	if _, err := env.callerIDs.RequestVerification(context.Background(), "u1", "+16502530000"); err != nil {
		t.Fatalf("request verification: %v", err)
	}
	_, err = env.svc.Create(context.Background(), CreateRequest{UserID: "u1", To: "14155551234", CallerID: "+16502530000"})
	if !errors.Is(err, ErrCallerIDNotVerified) {
		t.Fatalf("expected pending caller id rejected, got %v", err)
	}
}

func TestCreate_VerifiedCallerID(t *testing.T) {
	env := newTestEnv(t, "10")
	ctx := context.Background()

	cid, err := env.callerIDs.RequestVerification(ctx, "u1", "+16502530000")
	if err != nil {
		t.Fatalf("request verification: %v", err)
	}
	if _, err := env.callerIDs.SubmitCode(ctx, "u1", cid.ID, env.provider.LastCode("+16502530000")); err != nil {
		t.Fatalf("submit code: %v", err)
	}

	c, err := env.svc.Create(ctx, CreateRequest{UserID: "u1", To: "14155551234", CallerID: "+16502530000"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.From != "+16502530000" || c.CallerIDType != CallerIDVerified {
		t.Fatalf("expected verified caller id, got %s %s", c.From, c.CallerIDType)
	}
}

func TestFinalize_DebitsOnce(t *testing.T) {
	env := newTestEnv(t, "10")
	ctx := context.Background()
	c, _ := env.svc.Create(ctx, CreateRequest{UserID: "u1", To: "14155551234"})

	first, err := env.svc.Finalize(ctx, c.ID, 90, StatusCompleted)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// 90s at 0.02/min = 0.03
	if first.Status != StatusCompleted || !first.Cost.Equal(d("0.03")) || first.EndedAt == nil {
		t.Fatalf("unexpected finalized call %+v", first)
	}

	second, err := env.svc.Finalize(ctx, c.ID, 300, StatusCompleted)
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if !second.Cost.Equal(first.Cost) || second.DurationSeconds != 90 {
		t.Fatalf("expected recorded cost returned, got %+v", second)
	}
	if got := env.balance(t); !got.Equal(d("9.97")) {
		t.Fatalf("expected one debit to 9.97, got %s", got)
	}

	entries, _ := env.ledger.ListEntries(ctx, "u1", 10)
	if len(entries) != 1 || entries[0].Reason != wallet.ReasonCallCharge || entries[0].Reference != c.ID {
		t.Fatalf("unexpected ledger entries %+v", entries)
	}
}

func TestFinalize_ConcurrentDuplicatesDebitOnce(t *testing.T) {
	env := newTestEnv(t, "10")
	ctx := context.Background()
	c, _ := env.svc.Create(ctx, CreateRequest{UserID: "u1", To: "+442079460018"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.svc.Finalize(ctx, c.ID, 60, StatusCompleted)
		}()
	}
	wg.Wait()

	if got := env.balance(t); !got.Equal(d("9.90")) {
		t.Fatalf("expected one 0.10 debit, got balance %s", got)
	}
}

func TestFinalize_FailedBillsZero(t *testing.T) {
	env := newTestEnv(t, "10")
	ctx := context.Background()
	c, _ := env.svc.Create(ctx, CreateRequest{UserID: "u1", To: "14155551234"})

	got, err := env.svc.Finalize(ctx, c.ID, 45, StatusFailed)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !got.Cost.IsZero() || got.Status != StatusFailed {
		t.Fatalf("expected FAILED at zero, got %+v", got)
	}
	if !env.balance(t).Equal(d("10")) {
		t.Fatalf("expected balance untouched")
	}
}

func TestFinalize_RejectsNonTerminal(t *testing.T) {
	env := newTestEnv(t, "10")
	c, _ := env.svc.Create(context.Background(), CreateRequest{UserID: "u1", To: "14155551234"})

	if _, err := env.svc.Finalize(context.Background(), c.ID, 10, StatusRinging); apperr.KindOf(err) != apperr.KindInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestAdvance_FollowsStateMachine(t *testing.T) {
	env := newTestEnv(t, "10")
	ctx := context.Background()
	c, _ := env.svc.Create(ctx, CreateRequest{UserID: "u1", To: "14155551234"})

	if _, err := env.svc.Advance(ctx, c.ID, StatusAnswered); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := env.svc.Advance(ctx, c.ID, StatusRinging); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ringing after answer rejected, got %v", err)
	}
	_, _ = env.svc.Finalize(ctx, c.ID, 10, StatusCompleted)
	if _, err := env.svc.Advance(ctx, c.ID, StatusAnswered); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected no transition out of terminal, got %v", err)
	}
}

func TestRefund_CreditsCostOnce(t *testing.T) {
	env := newTestEnv(t, "10")
	ctx := context.Background()
	c, _ := env.svc.Create(ctx, CreateRequest{UserID: "u1", To: "+442079460018"})
	_, _ = env.svc.Finalize(ctx, c.ID, 120, StatusCompleted)

	refunded, err := env.svc.Refund(ctx, c.ID)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != StatusCancelled || refunded.RefundedAt == nil {
		t.Fatalf("expected CANCELLED with refund stamp, got %+v", refunded)
	}
	if !env.balance(t).Equal(d("10")) {
		t.Fatalf("expected balance restored, got %s", env.balance(t))
	}

	if _, err := env.svc.Refund(ctx, c.ID); apperr.KindOf(err) != apperr.KindInvalidState {
		t.Fatalf("expected invalid state on second refund, got %v", err)
	}
	if !env.balance(t).Equal(d("10")) {
		t.Fatalf("second refund must not credit")
	}
}

func TestRefund_RejectsNonCompleted(t *testing.T) {
	env := newTestEnv(t, "10")
	c, _ := env.svc.Create(context.Background(), CreateRequest{UserID: "u1", To: "14155551234"})

	if _, err := env.svc.Refund(context.Background(), c.ID); !errors.Is(err, ErrNotRefundable) {
		t.Fatalf("expected not refundable, got %v", err)
	}
}

func TestListStale(t *testing.T) {
	env := newTestEnv(t, "10")
	ctx := context.Background()
	old, _ := env.svc.Create(ctx, CreateRequest{UserID: "u1", To: "14155551234"})
	env.now = env.now.Add(3 * time.Hour)
	_, _ = env.svc.Create(ctx, CreateRequest{UserID: "u1", To: "14155551234"})

	stale, err := env.svc.ListStale(ctx, 2*time.Hour, 10)
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Fatalf("expected only the old call, got %+v", stale)
	}
}

func TestGetForUser_HidesOtherUsers(t *testing.T) {
	env := newTestEnv(t, "10")
	c, _ := env.svc.Create(context.Background(), CreateRequest{UserID: "u1", To: "14155551234"})

	if _, err := env.svc.GetForUser(context.Background(), "u2", c.ID); !errors.Is(err, ErrCallNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
