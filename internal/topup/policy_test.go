package topup

import (
	"context"
	"errors"
	"testing"
	"time"

	"voip-platform/internal/accounts"
	"voip-platform/internal/apperr"
	"voip-platform/internal/wallet"

	"github.com/shopspring/decimal"
)

type fakeCharger struct {
	calls  int
	err    error
	delay  time.Duration
	ledger *wallet.Service
}

func (f *fakeCharger) ChargeTopup(ctx context.Context, u accounts.User, amount decimal.Decimal) error {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	_, err := f.ledger.Credit(ctx, u.ID, amount, wallet.Posting{Reason: wallet.ReasonPaymentCredit, Reference: "pay-1"})
	return err
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newPolicy(t *testing.T, balance string, cfg accounts.AutoTopup, charger *fakeCharger, timeout time.Duration) (*Policy, *wallet.Service) {
	t.Helper()
	ws := wallet.NewMemoryStore()
	ws.Seed("u1", d(balance))
	ledger := wallet.NewService(ws, nil)
	charger.ledger = ledger

	users := accounts.NewService(accounts.NewMemoryStore(accounts.User{
		ID:                     "u1",
		Email:                  "u1@example.com",
		AutoTopup:              cfg,
		PaymentCustomerID:      "cus_1",
		DefaultPaymentMethodID: "pm_1",
	}), nil)
	return NewPolicy(ledger, users, charger, timeout, nil), ledger
}

var enabled = accounts.AutoTopup{Enabled: true, Threshold: d("2.00"), ReplenishAmount: d("10.00")}

func TestCheckBalance_ReserveMetWithoutTopup(t *testing.T) {
	ch := &fakeCharger{}
	p, _ := newPolicy(t, "1.00", enabled, ch, 0)

	adm, err := p.CheckBalanceBeforeCall(context.Background(), "u1", d("1.00"))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !adm.CanProceed || adm.TopupTriggered {
		t.Fatalf("expected proceed without top-up, got %+v", adm)
	}
	if ch.calls != 0 {
		t.Fatalf("expected no charge, got %d", ch.calls)
	}
}

func TestCheckBalance_HigherReserveForcesTopup(t *testing.T) {
	ch := &fakeCharger{}
	p, ledger := newPolicy(t, "1.00", enabled, ch, 0)

	adm, err := p.CheckBalanceBeforeCall(context.Background(), "u1", d("1.50"))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !adm.CanProceed || !adm.TopupTriggered {
		t.Fatalf("expected top-up admission, got %+v", adm)
	}
	if ch.calls != 1 {
		t.Fatalf("expected one charge, got %d", ch.calls)
	}
	bal, _ := ledger.GetBalance(context.Background(), "u1")
	if !bal.Equal(d("11.00")) {
		t.Fatalf("expected 11.00 after top-up, got %s", bal)
	}
}

func TestCheckBalance_DisabledRefuses(t *testing.T) {
	ch := &fakeCharger{}
	p, _ := newPolicy(t, "0.50", accounts.AutoTopup{}, ch, 0)

	adm, err := p.CheckBalanceBeforeCall(context.Background(), "u1", d("1.00"))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if adm.CanProceed || ch.calls != 0 {
		t.Fatalf("expected refusal without charge, got %+v calls=%d", adm, ch.calls)
	}
	if !errors.Is(adm.Err(), ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", adm.Err())
	}
}

func TestCheckBalance_BalanceAtThresholdDoesNotCharge(t *testing.T) {
	ch := &fakeCharger{}
	p, _ := newPolicy(t, "2.00", enabled, ch, 0)

	adm, _ := p.CheckBalanceBeforeCall(context.Background(), "u1", d("3.00"))
	if adm.CanProceed || ch.calls != 0 {
		t.Fatalf("expected refusal at threshold, got %+v calls=%d", adm, ch.calls)
	}
}

func TestCheckBalance_ChargeFailure(t *testing.T) {
	ch := &fakeCharger{err: errors.New("card_declined")}
	p, _ := newPolicy(t, "0.00", enabled, ch, 0)

	adm, err := p.CheckBalanceBeforeCall(context.Background(), "u1", d("1.00"))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if adm.CanProceed || !adm.TopupAttempted {
		t.Fatalf("expected failed top-up, got %+v", adm)
	}
	if apperr.KindOf(adm.Err()) != apperr.KindTopupFailed {
		t.Fatalf("expected topup_failed, got %v", adm.Err())
	}
}

func TestCheckBalance_TimeoutIsFailure(t *testing.T) {
	ch := &fakeCharger{delay: time.Second}
	p, ledger := newPolicy(t, "0.00", enabled, ch, 20*time.Millisecond)

	adm, err := p.CheckBalanceBeforeCall(context.Background(), "u1", d("1.00"))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if adm.CanProceed {
		t.Fatalf("expected timeout to refuse, got %+v", adm)
	}
	bal, _ := ledger.GetBalance(context.Background(), "u1")
	if !bal.IsZero() {
		t.Fatalf("expected no credit after timeout, got %s", bal)
	}
}

func TestUpdateSettings_Validates(t *testing.T) {
	p, _ := newPolicy(t, "0", accounts.AutoTopup{}, &fakeCharger{}, 0)

	_, err := p.UpdateSettings(context.Background(), "u1", accounts.AutoTopup{Enabled: true, Threshold: d("6"), ReplenishAmount: d("5")})
	if apperr.KindOf(err) != apperr.KindInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	got, err := p.UpdateSettings(context.Background(), "u1", enabled)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !got.Enabled || !got.Threshold.Equal(d("2")) {
		t.Fatalf("unexpected settings %+v", got)
	}
	cur, _ := p.Settings(context.Background(), "u1")
	if !cur.ReplenishAmount.Equal(d("10")) {
		t.Fatalf("expected stored settings, got %+v", cur)
	}
}
