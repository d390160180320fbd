package callerid

import (
	"context"
	"errors"
	"testing"
	"time"

	"voip-platform/internal/apperr"
	"voip-platform/internal/telephony"
)

const testNumber = "+16502530000"

type denyThrottle struct{}

func (denyThrottle) Allow(context.Context, string) (bool, error) { return false, nil }
func (denyThrottle) Release(context.Context, string) error         { return nil }

// claimThrottle admits a key once until it is released.
type claimThrottle struct{ held map[string]bool }

func (t *claimThrottle) Allow(_ context.Context, key string) (bool, error) {
	if t.held[key] {
		return false, nil
	}
	t.held[key] = true
	return true, nil
}

func (t *claimThrottle) Release(_ context.Context, key string) error {
	delete(t.held, key)
	return nil
}

type testEnv struct {
	svc    *Service
	sender *telephony.SandboxProvider
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{sender: telephony.NewSandboxProvider(nil), now: time.Unix(1700000000, 0).UTC()}
	env.svc = NewService(NewMemoryStore(), nil, env.sender, nil, Options{}, nil)
	env.svc.clock = func() time.Time { return env.now }
	env.svc.newCode = func() (string, error) { return "123456", nil }
	return env
}

func (e *testEnv) request(t *testing.T) CallerID {
	t.Helper()
	c, err := e.svc.RequestVerification(context.Background(), "u1", testNumber)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return c
}

func TestRequestVerification_CreatesPendingAndSendsCode(t *testing.T) {
	env := newTestEnv(t)
	c := env.request(t)

	if c.Status != StatusPending || c.Country != "US" || c.PhoneNumber != testNumber {
		t.Fatalf("unexpected record %+v", c)
	}
	if c.CodeExpiresAt == nil || !c.CodeExpiresAt.Equal(env.now.Add(10*time.Minute)) {
		t.Fatalf("expected 10 minute expiry, got %v", c.CodeExpiresAt)
	}
	if env.sender.LastCode(testNumber) != "123456" {
		t.Fatalf("expected code delivered")
	}
}

func TestRequestVerification_RejectsInvalidNumber(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.RequestVerification(context.Background(), "u1", "12")
	if !errors.Is(err, ErrInvalidNumber) {
		t.Fatalf("expected invalid number, got %v", err)
	}
}

func TestRequestVerification_SupersedesPending(t *testing.T) {
	env := newTestEnv(t)
	first := env.request(t)
	second := env.request(t)

	list, _ := env.svc.List(context.Background(), "u1")
	if len(list) != 1 || list[0].ID != second.ID || list[0].ID == first.ID {
		t.Fatalf("expected only the newest record, got %+v", list)
	}
}

func TestRequestVerification_AlreadyVerified(t *testing.T) {
	env := newTestEnv(t)
	c := env.request(t)
	if _, err := env.svc.SubmitCode(context.Background(), "u1", c.ID, "123456"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err := env.svc.RequestVerification(context.Background(), "u1", testNumber)
	if apperr.KindOf(err) != apperr.KindAlreadyVerified {
		t.Fatalf("expected already verified, got %v", err)
	}
}

func TestRequestVerification_Throttled(t *testing.T) {
	env := newTestEnv(t)
	env.svc.throttle = denyThrottle{}

	_, err := env.svc.RequestVerification(context.Background(), "u1", testNumber)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
}

func TestRequestVerification_DeliveryFailure(t *testing.T) {
	env := newTestEnv(t)
	env.svc.sender = failingSender{}

	_, err := env.svc.RequestVerification(context.Background(), "u1", testNumber)
	if apperr.KindOf(err) != apperr.KindProvider {
		t.Fatalf("expected provider error, got %v", err)
	}
	if apperr.Message(err) != ErrDeliveryFailed.Msg {
		t.Fatalf("expected generic message, got %q", apperr.Message(err))
	}
}

func TestRequestVerification_DeliveryFailureKeepsRetryOpen(t *testing.T) {
	env := newTestEnv(t)
	env.svc.throttle = &claimThrottle{held: map[string]bool{}}
	env.svc.sender = failingSender{}
	ctx := context.Background()

	if _, err := env.svc.RequestVerification(ctx, "u1", testNumber); apperr.KindOf(err) != apperr.KindProvider {
		t.Fatalf("expected provider error, got %v", err)
	}

	env.svc.sender = env.sender
	c, err := env.svc.RequestVerification(ctx, "u1", testNumber)
	if err != nil {
		t.Fatalf("retry after failed delivery should be admitted, got %v", err)
	}
	if c.Status != StatusPending {
		t.Fatalf("expected PENDING, got %s", c.Status)
	}
	list, _ := env.svc.List(ctx, "u1")
	if len(list) != 1 {
		t.Fatalf("expected the failed attempt superseded, got %d records", len(list))
	}

	if _, err := env.svc.RequestVerification(ctx, "u1", testNumber); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected resend window after a delivered code, got %v", err)
	}
}

type failingSender struct{}

func (failingSender) SendVerificationCode(context.Context, string, string) error {
	return errors.New("twilio 503")
}

func TestSubmitCode_VerifiesOnce(t *testing.T) {
	env := newTestEnv(t)
	c := env.request(t)

	got, err := env.svc.SubmitCode(context.Background(), "u1", c.ID, "123456")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.Status != StatusVerified || !got.IsActive || got.Code != "" || got.CodeExpiresAt != nil {
		t.Fatalf("unexpected verified record %+v", got)
	}

	if _, err := env.svc.SubmitCode(context.Background(), "u1", c.ID, "123456"); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected already verified on second submit, got %v", err)
	}
	if _, err := env.svc.FindVerified(context.Background(), "u1", "16502530000"); err != nil {
		t.Fatalf("expected verified lookup, got %v", err)
	}
}

func TestSubmitCode_FourthAttemptRejectedEvenWhenCorrect(t *testing.T) {
	env := newTestEnv(t)
	c := env.request(t)

	for i := 0; i < MaxAttempts; i++ {
		if _, err := env.svc.SubmitCode(context.Background(), "u1", c.ID, "000000"); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("attempt %d: expected invalid code, got %v", i+1, err)
		}
	}
	if _, err := env.svc.SubmitCode(context.Background(), "u1", c.ID, "123456"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected too many attempts, got %v", err)
	}

	list, _ := env.svc.List(context.Background(), "u1")
	if list[0].Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", list[0].Status)
	}
}

func TestSubmitCode_ExpiredBeatsAttemptsAndCode(t *testing.T) {
	env := newTestEnv(t)
	c := env.request(t)
	env.now = env.now.Add(11 * time.Minute)

	if _, err := env.svc.SubmitCode(context.Background(), "u1", c.ID, "123456"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected code expired, got %v", err)
	}
	list, _ := env.svc.List(context.Background(), "u1")
	if list[0].Status != StatusExpired || list[0].Attempts != 1 {
		t.Fatalf("expected EXPIRED with one attempt, got %+v", list[0])
	}
}

func TestSubmitCode_ScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	c := env.request(t)

	if _, err := env.svc.SubmitCode(context.Background(), "u2", c.ID, "123456"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
}

func TestRandomCode_SixDigits(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := randomCode()
		if err != nil {
			t.Fatalf("random code: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
	}
}

func TestParseStatus_RejectsLowercase(t *testing.T) {
	if _, err := ParseStatus("pending"); err == nil {
		t.Fatalf("expected lowercase rejected")
	}
	if s, err := ParseStatus("VERIFIED"); err != nil || s != StatusVerified {
		t.Fatalf("expected VERIFIED, got %s %v", s, err)
	}
}
