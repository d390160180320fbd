package admin

import (
	"context"
	"errors"
	"testing"

	"voip-platform/internal/accounts"
	"voip-platform/internal/apperr"
	"voip-platform/internal/audit"
	"voip-platform/internal/auth"
	"voip-platform/internal/calls"
	"voip-platform/internal/payments"
	"voip-platform/internal/pricing"
	"voip-platform/internal/wallet"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type testEnv struct {
	svc      *Service
	ledger   *wallet.Service
	calls    *calls.Service
	payments *payments.Service
	users    *accounts.Service
	auditLog *audit.MemoryRepo
}

var actor = audit.Actor{ID: "admin-1", Role: "admin", IP: "10.0.0.1"}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ws := wallet.NewMemoryStore()
	ws.Seed("u1", d("10"))
	ws.Seed("admin-1", decimal.Zero)

	env := &testEnv{auditLog: audit.NewMemoryRepo()}
	env.ledger = wallet.NewService(ws, nil)
	env.users = accounts.NewService(accounts.NewMemoryStore(
		accounts.User{ID: "u1", Email: "u1@example.com"},
		accounts.User{ID: "admin-1", Email: "ops@example.com", IsAdmin: true},
	), nil)

	rates := pricing.NewService(&pricing.MemoryRepo{Rates: []pricing.Rate{
		{ID: "us", CountryCode: "+1", CallerIDCountry: "US", CountryName: "United States", RatePerMinute: d("0.10"), Currency: "USD", Active: true},
	}})
	env.calls = calls.NewService(calls.Deps{
		Store:  calls.NewMemoryStore(),
		Rates:  rates,
		Ledger: env.ledger,
	}, calls.Options{DefaultCallerID: "+14155550100", DefaultCallerIDCountry: "US"})
	env.payments = payments.NewService(payments.Deps{
		Store:    payments.NewMemoryStore(),
		Ledger:   env.ledger,
		Users:    env.users,
		Provider: payments.NewSandboxProvider("", nil),
	}, payments.Options{MinimumPurchase: d("1")})

	env.svc = NewService(Deps{
		Calls:    env.calls,
		Payments: env.payments,
		Ledger:   env.ledger,
		Users:    env.users,
		Rates:    rates,
		Audit:    audit.NewService(env.auditLog, nil),
	})
	return env
}

func (e *testEnv) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	bal, _ := e.ledger.GetBalance(context.Background(), "u1")
	return bal
}

func (e *testEnv) completedCall(t *testing.T) calls.Call {
	t.Helper()
	ctx := context.Background()
	c, err := e.calls.Create(ctx, calls.CreateRequest{UserID: "u1", To: "14155551234"})
	if err != nil {
		t.Fatalf("create call: %v", err)
	}
	c, err = e.calls.Finalize(ctx, c.ID, 60, calls.StatusCompleted)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return c
}

func TestRefundCall_AuditedOnce(t *testing.T) {
	env := newTestEnv(t)
	c := env.completedCall(t)
	if !env.balance(t).Equal(d("9.90")) {
		t.Fatalf("setup: expected 9.90, got %s", env.balance(t))
	}

	if _, err := env.svc.RefundCall(context.Background(), actor, c.ID); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if _, err := env.svc.RefundCall(context.Background(), actor, c.ID); apperr.KindOf(err) != apperr.KindInvalidState {
		t.Fatalf("expected invalid state on second refund, got %v", err)
	}
	if !env.balance(t).Equal(d("10")) {
		t.Fatalf("expected 10.00 after refund, got %s", env.balance(t))
	}

	evs := env.auditLog.Events()
	if len(evs) != 1 || evs[0].Action != audit.ActionRefundCall || evs[0].TargetID != c.ID || evs[0].IPAddress != "10.0.0.1" {
		t.Fatalf("unexpected audit trail %+v", evs)
	}
}

func TestRefundPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p, err := env.payments.CreateCheckout(ctx, "u1", d("5"))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if err := env.payments.HandleEvent(ctx, payments.Event{Type: payments.EventCheckoutCompleted, PaymentID: p.ID}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := env.svc.RefundPayment(ctx, actor, p.ID); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if _, err := env.svc.RefundPayment(ctx, actor, p.ID); !errors.Is(err, payments.ErrNotRefundable) {
		t.Fatalf("expected not refundable, got %v", err)
	}
	if !env.balance(t).Equal(d("10")) {
		t.Fatalf("expected credit reversed, got %s", env.balance(t))
	}
}

func TestAddCredits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.AddCredits(ctx, actor, "u1", d("0"), "", ""); !errors.Is(err, wallet.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := env.svc.AddCredits(ctx, actor, "u1", d("2.50"), "ticket-42", "goodwill"); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}
	if !env.balance(t).Equal(d("12.50")) {
		t.Fatalf("expected one credit for the same reference, got %s", env.balance(t))
	}
	if evs := env.auditLog.Events(); len(evs) != 1 || evs[0].Action != audit.ActionAddCredits {
		t.Fatalf("expected one audit event, got %+v", evs)
	}
}

func TestDeleteUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	other := audit.Actor{ID: "admin-2", Role: "admin"}
	if err := env.svc.DeleteUser(ctx, other, "admin-1"); !errors.Is(err, accounts.ErrAdminProtected) {
		t.Fatalf("expected admin protected, got %v", err)
	}
	if err := env.svc.DeleteUser(ctx, actor, "admin-1"); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected self-delete forbidden, got %v", err)
	}
	if err := env.svc.DeleteUser(ctx, actor, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.users.Get(ctx, "u1"); err == nil {
		t.Fatalf("expected user gone")
	}
}

func TestToggleRate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	r, err := env.svc.ToggleRate(ctx, actor, "us", false)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if r.Active {
		t.Fatalf("expected rate disabled")
	}
	if _, err := env.calls.Create(ctx, calls.CreateRequest{UserID: "u1", To: "14155551234"}); apperr.KindOf(err) != apperr.KindUnsupportedDestination {
		t.Fatalf("expected disabled rate to block calls, got %v", err)
	}
}

func TestAuditFailureDoesNotUndoAction(t *testing.T) {
	env := newTestEnv(t)
	env.auditLog.Err = errors.New("audit store down")

	if _, err := env.svc.AddCredits(context.Background(), actor, "u1", d("1"), "", ""); err != nil {
		t.Fatalf("expected credit despite audit failure, got %v", err)
	}
	if !env.balance(t).Equal(d("11")) {
		t.Fatalf("expected credit applied, got %s", env.balance(t))
	}
}

func TestActorFromContext(t *testing.T) {
	ctx := auth.WithIdentity(context.Background(), "admin-1", "ops@example.com", "admin")
	ctx = WithClientIP(ctx, "10.0.0.9")

	a, err := ActorFromContext(ctx)
	if err != nil {
		t.Fatalf("actor: %v", err)
	}
	if a.ID != "admin-1" || a.Role != "admin" || a.IP != "10.0.0.9" {
		t.Fatalf("unexpected actor %+v", a)
	}
	if _, err := ActorFromContext(context.Background()); err == nil {
		t.Fatalf("expected error without identity")
	}
}
