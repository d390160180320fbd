package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voip-platform/internal/apperr"
)

func TestStripe_CreateCheckout(t *testing.T) {
	var got http.Header
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = r.ParseForm()
		got = r.Header.Clone()
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/cs_test_1"}`))
	}))
	defer srv.Close()

	p := NewStripeProvider(StripeOptions{SecretKey: "sk_test_1", BaseURL: srv.URL}, nil)
	co, err := p.CreateCheckout(context.Background(), CheckoutRequest{
		PaymentID:  "pay-1",
		UserID:     "u1",
		Email:      "u1@example.com",
		Amount:     d("12.50"),
		Currency:   "USD",
		SuccessURL: "https://app.example.com/ok",
		CancelURL:  "https://app.example.com/cancel",
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if co.SessionID != "cs_test_1" || co.URL == "" {
		t.Fatalf("unexpected checkout %+v", co)
	}

	if auth := got.Get("Authorization"); auth != "Bearer sk_test_1" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if key := got.Get("Idempotency-Key"); key != "checkout-pay-1" {
		t.Fatalf("unexpected idempotency key %q", key)
	}
	want := map[string]string{
		"mode":                                      "payment",
		"client_reference_id":                       "pay-1",
		"customer_creation":                         "always",
		"customer_email":                            "u1@example.com",
		"metadata[payment_id]":                      "pay-1",
		"line_items[0][quantity]":                   "1",
		"line_items[0][price_data][currency]":       "usd",
		"line_items[0][price_data][unit_amount]":    "1250",
		"payment_intent_data[setup_future_usage]":   "off_session",
		"payment_intent_data[metadata][payment_id]": "pay-1",
	}
	for k, v := range want {
		if form[k] != v {
			t.Fatalf("form %s: expected %q, got %q", k, v, form[k])
		}
	}
}

func TestStripe_ChargeOffSession(t *testing.T) {
	decline := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("off_session") != "true" || r.PostForm.Get("confirm") != "true" {
			t.Errorf("expected confirmed off-session intent, got %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		if decline {
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","status":"succeeded"}`))
	}))
	defer srv.Close()

	p := NewStripeProvider(StripeOptions{SecretKey: "sk_test_1", BaseURL: srv.URL}, nil)
	req := ChargeRequest{PaymentID: "pay-2", CustomerID: "cus_1", PaymentMethodID: "pm_1", Amount: d("20"), Currency: "USD"}

	ch, err := p.ChargeOffSession(context.Background(), req)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if ch.ProviderPaymentID != "pi_1" || !ch.Succeeded {
		t.Fatalf("unexpected charge %+v", ch)
	}

	decline = true
	_, err = p.ChargeOffSession(context.Background(), req)
	if apperr.KindOf(err) != apperr.KindTopupFailed {
		t.Fatalf("expected decline mapped to top-up failure, got %v", err)
	}
	if p.BreakerState() != "closed" {
		t.Fatalf("declines must not trip the breaker")
	}
}

func signStripe(secret string, payload []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

const completedEvent = `{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_1",
    "object": "checkout.session",
    "client_reference_id": "pay-1",
    "payment_status": "paid",
    "customer": "cus_1",
    "payment_intent": {"id": "pi_1", "object": "payment_intent", "payment_method": "pm_1"}
  }}
}`

func TestStripe_ParseWebhook(t *testing.T) {
	p := NewStripeProvider(StripeOptions{SecretKey: "sk_test_1", WebhookSecret: "whsec_1"}, nil)
	payload := []byte(completedEvent)

	ev, err := p.ParseWebhook(context.Background(), payload, signStripe("whsec_1", payload, time.Now()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := Event{
		ID:                "evt_1",
		Type:              EventCheckoutCompleted,
		PaymentID:         "pay-1",
		SessionID:         "cs_1",
		ProviderPaymentID: "pi_1",
		CustomerID:        "cus_1",
		PaymentMethodID:   "pm_1",
	}
	if ev != want {
		t.Fatalf("expected %+v, got %+v", want, ev)
	}

	_, err = p.ParseWebhook(context.Background(), payload, signStripe("whsec_other", payload, time.Now()))
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("expected forged signature rejected, got %v", err)
	}
}

func TestStripe_ParseWebhook_UnpaidAndUnknown(t *testing.T) {
	p := NewStripeProvider(StripeOptions{WebhookSecret: "whsec_1"}, nil)

	for _, payload := range [][]byte{
		[]byte(`{"id":"evt_2","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_2","object":"checkout.session","payment_status":"unpaid"}}}`),
		[]byte(`{"id":"evt_3","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`),
	} {
		ev, err := p.ParseWebhook(context.Background(), payload, signStripe("whsec_1", payload, time.Now()))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if ev.Type != EventIgnored {
			t.Fatalf("expected ignored, got %s", ev.Type)
		}
	}
}

func TestMinorUnits(t *testing.T) {
	if got := minorUnits(d("10.005")); got != 1001 {
		t.Fatalf("expected 1001, got %d", got)
	}
	if got := minorUnits(d("20")); got != 2000 {
		t.Fatalf("expected 2000, got %d", got)
	}
}

func TestStripe_ProcessingTopupSettledByIntentWebhook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_9","object":"payment_intent","status":"processing"}`))
	}))
	defer srv.Close()

	env := newTestEnv(t, savedCardUser())
	provider := NewStripeProvider(StripeOptions{SecretKey: "sk_test_1", WebhookSecret: "whsec_1", BaseURL: srv.URL}, nil)
	svc := NewService(Deps{
		Store:    env.store,
		Ledger:   env.ledger,
		Users:    env.users,
		Provider: provider,
	}, Options{Currency: "usd", MinimumPurchase: d("5")})
	ctx := context.Background()

	if err := svc.ChargeTopup(ctx, savedCardUser(), d("20")); !errors.Is(err, ErrChargeNotSettled) {
		t.Fatalf("expected charge not settled, got %v", err)
	}
	list, _ := svc.ListForUser(ctx, "u1", 10, 0)
	if len(list) != 1 || list[0].Status != StatusPending || list[0].ProviderPaymentID != "pi_9" {
		t.Fatalf("expected PENDING payment bound to pi_9, got %+v", list)
	}

	payload := []byte(fmt.Sprintf(`{
  "id": "evt_9",
  "object": "event",
  "type": "payment_intent.succeeded",
  "data": {"object": {"id": "pi_9", "object": "payment_intent", "status": "succeeded", "metadata": {"payment_id": %q, "kind": "auto_topup"}}}
}`, list[0].ID))
	sig := signStripe("whsec_1", payload, time.Now())
	for i := 0; i < 2; i++ {
		if err := svc.HandleWebhook(ctx, payload, sig); err != nil {
			t.Fatalf("webhook #%d: %v", i, err)
		}
	}

	if !env.balance(t, "u1").Equal(d("20")) {
		t.Fatalf("expected settled charge credited once, got %s", env.balance(t, "u1"))
	}
	p, _ := svc.Get(ctx, list[0].ID)
	if p.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", p.Status)
	}
}

func TestStripe_ParseWebhook_PaymentIntentEvents(t *testing.T) {
	p := NewStripeProvider(StripeOptions{WebhookSecret: "whsec_1"}, nil)

	cases := []struct {
		payload string
		want    EventType
	}{
		{`{"id":"evt_a","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_a","object":"payment_intent","metadata":{"payment_id":"pay-a","kind":"auto_topup"}}}}`, EventPaymentSucceeded},
		{`{"id":"evt_b","object":"event","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_b","object":"payment_intent","metadata":{"payment_id":"pay-b","kind":"auto_topup"}}}}`, EventPaymentFailed},
		{`{"id":"evt_d","object":"event","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_d","object":"payment_intent","metadata":{"payment_id":"pay-d"}}}}`, EventIgnored},
		{`{"id":"evt_c","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_c","object":"payment_intent"}}}`, EventIgnored},
	}
	for _, tc := range cases {
		payload := []byte(tc.payload)
		ev, err := p.ParseWebhook(context.Background(), payload, signStripe("whsec_1", payload, time.Now()))
		if err != nil {
			t.Fatalf("parse %s: %v", tc.payload, err)
		}
		if ev.Type != tc.want {
			t.Fatalf("expected %s, got %s", tc.want, ev.Type)
		}
	}
}
