package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voip-platform/internal/apperr"

	"github.com/shopspring/decimal"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc := NewService(store, nil)
	svc.clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, store
}

func TestCreditDebit_UpdatesBalanceAndLedger(t *testing.T) {
	svc, store := newTestService(t)
	store.Seed("u1", decimal.RequireFromString("1.00"))
	ctx := context.Background()

	if _, err := svc.Credit(ctx, "u1", decimal.RequireFromString("10.00"), Posting{Reason: ReasonPaymentCredit, Reference: "pay-1"}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	e, err := svc.Debit(ctx, "u1", decimal.RequireFromString("2.50"), Posting{Reason: ReasonCallCharge, Reference: "call-1"})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if !e.Amount.Equal(decimal.RequireFromString("-2.50")) || e.Type != EntryTypeDebit {
		t.Fatalf("unexpected debit entry: %+v", e)
	}

	bal, _ := svc.GetBalance(ctx, "u1")
	if !bal.Equal(decimal.RequireFromString("8.50")) {
		t.Fatalf("expected 8.50, got %s", bal)
	}
	if !e.BalanceAfter.Equal(bal) {
		t.Fatalf("expected balance_after %s, got %s", bal, e.BalanceAfter)
	}

	entries, _ := svc.ListEntries(ctx, "u1", 10)
	if len(entries) != 2 || entries[0].Reason != ReasonCallCharge {
		t.Fatalf("expected newest-first entries, got %+v", entries)
	}
}

func TestPost_RejectsNonPositiveAmount(t *testing.T) {
	svc, store := newTestService(t)
	store.Seed("u1", decimal.Zero)

	for _, amt := range []string{"0", "-1"} {
		_, err := svc.Credit(context.Background(), "u1", decimal.RequireFromString(amt), Posting{Reason: ReasonAdminCredit})
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %s: expected ErrInvalidAmount, got %v", amt, err)
		}
	}
}

func TestPost_UnknownUser(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Debit(context.Background(), "ghost", decimal.NewFromInt(1), Posting{Reason: ReasonCallCharge})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetBalance(context.Background(), "ghost"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found for balance, got %v", err)
	}
}

func TestPost_ReferenceIsIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	store.Seed("u1", decimal.Zero)
	ctx := context.Background()
	p := Posting{Reason: ReasonPaymentCredit, Reference: "pay-1"}

	first, _ := svc.Credit(ctx, "u1", decimal.NewFromInt(10), p)
	second, err := svc.Credit(ctx, "u1", decimal.NewFromInt(10), p)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replayed || second.ID != first.ID {
		t.Fatalf("expected replay of %s, got %+v", first.ID, second)
	}
	bal, _ := svc.GetBalance(ctx, "u1")
	if !bal.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected single credit, got %s", bal)
	}
}

func TestDebit_DoesNotClampAtZero(t *testing.T) {
	svc, store := newTestService(t)
	store.Seed("u1", decimal.RequireFromString("0.50"))

	if _, err := svc.Debit(context.Background(), "u1", decimal.NewFromInt(2), Posting{Reason: ReasonCallCharge}); err != nil {
		t.Fatalf("debit: %v", err)
	}
	bal, _ := svc.GetBalance(context.Background(), "u1")
	if !bal.Equal(decimal.RequireFromString("-1.50")) {
		t.Fatalf("expected -1.50, got %s", bal)
	}
}

func TestCanAfford(t *testing.T) {
	svc, store := newTestService(t)
	store.Seed("u1", decimal.RequireFromString("1.00"))
	ctx := context.Background()

	ok, _ := svc.CanAfford(ctx, "u1", decimal.RequireFromString("1.00"))
	if !ok {
		t.Fatalf("expected 1.00 >= 1.00")
	}
	ok, _ = svc.CanAfford(ctx, "u1", decimal.RequireFromString("1.50"))
	if ok {
		t.Fatalf("expected 1.00 < 1.50")
	}
}

func TestConcurrentPostings_NoLostUpdates(t *testing.T) {
	svc, store := newTestService(t)
	store.Seed("u1", decimal.Zero)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Credit(ctx, "u1", decimal.RequireFromString("0.10"), Posting{Reason: ReasonAdminCredit})
		}()
	}
	wg.Wait()

	bal, _ := svc.GetBalance(ctx, "u1")
	if !bal.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected 5.00, got %s", bal)
	}
}

func TestTotalsBetween_GroupsByReason(t *testing.T) {
	svc, store := newTestService(t)
	store.Seed("u1", decimal.Zero)
	ctx := context.Background()

	_, _ = svc.Credit(ctx, "u1", decimal.NewFromInt(10), Posting{Reason: ReasonPaymentCredit})
	_, _ = svc.Debit(ctx, "u1", decimal.NewFromInt(3), Posting{Reason: ReasonCallCharge})
	_, _ = svc.Debit(ctx, "u1", decimal.NewFromInt(1), Posting{Reason: ReasonCallCharge})

	now := svc.clock()
	totals, err := store.TotalsBetween(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if len(totals) != 2 || totals[0].Reason != ReasonCallCharge || totals[0].Count != 2 || !totals[0].Amount.Equal(decimal.NewFromInt(-4)) {
		t.Fatalf("unexpected totals: %+v", totals)
	}
}
