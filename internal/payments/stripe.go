package payments

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"voip-platform/internal/apperr"
	"voip-platform/internal/breaker"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

type StripeOptions struct {
	SecretKey     string
	WebhookSecret string
	// BaseURL overrides the API root; empty means api.stripe.com.
	BaseURL string
	// ProductName is shown on the hosted checkout page.
	ProductName string
}

// StripeProvider charges through Stripe Checkout and off-session
// PaymentIntents. Card declines do not trip the breaker.
type StripeProvider struct {
	opts    StripeOptions
	api     *client.API
	breaker *breaker.Breaker
	log     *slog.Logger
}

func NewStripeProvider(opts StripeOptions, log *slog.Logger) *StripeProvider {
	if log == nil {
		log = slog.Default()
	}
	if opts.ProductName == "" {
		opts.ProductName = "Call credit"
	}

	var backends *stripe.Backends
	if opts.BaseURL != "" {
		b := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(strings.TrimRight(opts.BaseURL, "/")),
			MaxNetworkRetries: stripe.Int64(0),
		})
		backends = &stripe.Backends{API: b, Connect: b, Uploads: b}
	}

	return &StripeProvider{
		opts: opts,
		api:  client.New(opts.SecretKey, backends),
		breaker: breaker.New("stripe", breaker.Options{
			IsSuccessful: func(err error) bool {
				return err == nil || apperr.KindOf(err) != apperr.KindProvider
			},
		}, log),
		log: log,
	}
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) BreakerState() string { return p.breaker.State() }

func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.PaymentID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(minorUnits(req.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(p.opts.ProductName),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			SetupFutureUsage: stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession)),
			Metadata:         map[string]string{"payment_id": req.PaymentID},
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else {
		params.CustomerCreation = stripe.String(string(stripe.CheckoutSessionCustomerCreationAlways))
		if req.Email != "" {
			params.CustomerEmail = stripe.String(req.Email)
		}
	}
	params.AddMetadata("payment_id", req.PaymentID)
	params.AddMetadata("user_id", req.UserID)
	params.SetIdempotencyKey("checkout-" + req.PaymentID)
	params.Context = ctx

	sess, err := breaker.Execute(p.breaker, func() (*stripe.CheckoutSession, error) {
		s, err := p.api.CheckoutSessions.New(params)
		return s, mapStripeError(err)
	})
	if err != nil {
		return Checkout{}, err
	}
	return Checkout{SessionID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProvider) ChargeOffSession(ctx context.Context, req ChargeRequest) (Charge, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(minorUnits(req.Amount)),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Customer:      stripe.String(req.CustomerID),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
	}
	params.AddMetadata("payment_id", req.PaymentID)
	params.AddMetadata("kind", string(KindAutoTopup))
	params.SetIdempotencyKey("topup-" + req.PaymentID)
	params.Context = ctx

	pi, err := breaker.Execute(p.breaker, func() (*stripe.PaymentIntent, error) {
		pi, err := p.api.PaymentIntents.New(params)
		return pi, mapStripeError(err)
	})
	if err != nil {
		return Charge{}, err
	}
	return Charge{ProviderPaymentID: pi.ID, Succeeded: pi.Status == stripe.PaymentIntentStatusSucceeded}, nil
}

func (p *StripeProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.opts.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, apperr.Wrap(apperr.KindUnauthorized, "invalid webhook signature", err)
	}

	out := Event{ID: ev.ID, Type: EventIgnored}
	switch string(ev.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return Event{}, apperr.Wrap(apperr.KindInvalidArgument, "malformed checkout session", err)
		}
		if s.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			// Delayed methods settle later via async_payment_succeeded.
			return out, nil
		}
		out.Type = EventCheckoutCompleted
		out.SessionID = s.ID
		out.PaymentID = sessionPaymentID(&s)
		if s.Customer != nil {
			out.CustomerID = s.Customer.ID
		}
		if s.PaymentIntent != nil {
			out.ProviderPaymentID = s.PaymentIntent.ID
			out.PaymentMethodID = p.paymentMethodOf(ctx, s.PaymentIntent)
		}

	case "checkout.session.expired", "checkout.session.async_payment_failed":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return Event{}, apperr.Wrap(apperr.KindInvalidArgument, "malformed checkout session", err)
		}
		out.Type = EventCheckoutExpired
		if string(ev.Type) == "checkout.session.async_payment_failed" {
			out.Type = EventPaymentFailed
		}
		out.SessionID = s.ID
		out.PaymentID = sessionPaymentID(&s)

	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return Event{}, apperr.Wrap(apperr.KindInvalidArgument, "malformed payment intent", err)
		}
		if pi.Metadata["payment_id"] == "" || pi.Metadata["kind"] != string(KindAutoTopup) {
			// Checkout intents settle through their session events; a declined
			// attempt there can still be retried on the hosted page.
			return out, nil
		}
		out.Type = EventPaymentFailed
		if string(ev.Type) == "payment_intent.succeeded" {
			out.Type = EventPaymentSucceeded
		}
		out.ProviderPaymentID = pi.ID
		out.PaymentID = pi.Metadata["payment_id"]
	}
	return out, nil
}

// paymentMethodOf resolves the card saved by checkout. Webhook payloads carry
// only the intent id, so this costs one extra API call. Failures are logged
// and leave the method unbound; the credit still goes through.
func (p *StripeProvider) paymentMethodOf(ctx context.Context, pi *stripe.PaymentIntent) string {
	if pi.PaymentMethod != nil && pi.PaymentMethod.ID != "" {
		return pi.PaymentMethod.ID
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	full, err := breaker.Execute(p.breaker, func() (*stripe.PaymentIntent, error) {
		full, err := p.api.PaymentIntents.Get(pi.ID, params)
		return full, mapStripeError(err)
	})
	if err != nil {
		p.log.WarnContext(ctx, "could not resolve payment method", "payment_intent", pi.ID, "err", err)
		return ""
	}
	if full.PaymentMethod == nil {
		return ""
	}
	return full.PaymentMethod.ID
}

func sessionPaymentID(s *stripe.CheckoutSession) string {
	if s.ClientReferenceID != "" {
		return s.ClientReferenceID
	}
	return s.Metadata["payment_id"]
}

// mapStripeError keeps card declines and request errors apart from outages.
func mapStripeError(err error) error {
	if err == nil {
		return nil
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		switch {
		case se.Type == stripe.ErrorTypeCard:
			return apperr.Wrap(apperr.KindTopupFailed, "card was declined", err)
		case se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 && se.HTTPStatusCode != 429:
			return apperr.Wrap(apperr.KindInvalidArgument, "payment request rejected", err)
		}
	}
	return apperr.Wrap(apperr.KindProvider, "payment provider unavailable", err)
}

// minorUnits converts to cents. Zero-decimal currencies are not supported.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
