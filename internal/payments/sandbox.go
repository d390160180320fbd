package payments

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"voip-platform/internal/apperr"
)

// SandboxProvider settles payments in-process. Webhooks are plain JSON
// Events and are not signed.
type SandboxProvider struct {
	mu      sync.Mutex
	baseURL string
	charges []ChargeRequest
	log     *slog.Logger

	// ChargeErr, when set, is returned by ChargeOffSession.
	ChargeErr error
	// Unsettled makes off-session charges come back still processing.
	Unsettled bool
}

func NewSandboxProvider(publicBaseURL string, log *slog.Logger) *SandboxProvider {
	if log == nil {
		log = slog.Default()
	}
	return &SandboxProvider{baseURL: strings.TrimRight(publicBaseURL, "/"), log: log}
}

func (p *SandboxProvider) Name() string { return "sandbox" }

func (p *SandboxProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	return Checkout{
		SessionID: "cs_sandbox_" + req.PaymentID,
		URL:       p.baseURL + "/sandbox/checkout/" + req.PaymentID,
	}, nil
}

func (p *SandboxProvider) ChargeOffSession(ctx context.Context, req ChargeRequest) (Charge, error) {
	if err := ctx.Err(); err != nil {
		return Charge{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ChargeErr != nil {
		return Charge{}, p.ChargeErr
	}
	p.charges = append(p.charges, req)
	p.log.InfoContext(ctx, "sandbox charge", "payment_id", req.PaymentID, "amount", req.Amount.String())
	return Charge{ProviderPaymentID: "pi_sandbox_" + req.PaymentID, Succeeded: !p.Unsettled}, nil
}

func (p *SandboxProvider) ParseWebhook(_ context.Context, payload []byte, _ string) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, apperr.Wrap(apperr.KindInvalidArgument, "malformed webhook payload", err)
	}
	switch ev.Type {
	case EventCheckoutCompleted, EventCheckoutExpired, EventPaymentSucceeded, EventPaymentFailed, EventIgnored:
	default:
		return Event{}, apperr.Errorf(apperr.KindInvalidArgument, "unknown event type %q", ev.Type)
	}
	return ev, nil
}

// Charges returns the off-session charges seen so far.
func (p *SandboxProvider) Charges() []ChargeRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ChargeRequest(nil), p.charges...)
}
