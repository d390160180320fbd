package payments

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"voip-platform/internal/accounts"
	"voip-platform/internal/apperr"
	"voip-platform/internal/breaker"
	"voip-platform/internal/metrics"
	"voip-platform/internal/topup"
	"voip-platform/internal/wallet"
	"voip-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger is the subset of wallet.Service used for money movement.
type Ledger interface {
	Credit(ctx context.Context, userID string, amount decimal.Decimal, p wallet.Posting) (wallet.Entry, error)
	Debit(ctx context.Context, userID string, amount decimal.Decimal, p wallet.Posting) (wallet.Entry, error)
}

// Users resolves the account and stores payment provider references.
type Users interface {
	Get(ctx context.Context, userID string) (accounts.User, error)
	BindPaymentMethod(ctx context.Context, userID, customerID, paymentMethodID string) error
}

type Deps struct {
	Store    Store
	Tx       utils.Transactor
	Ledger   Ledger
	Users    Users
	Provider Provider
	Log      *slog.Logger
}

type Options struct {
	Currency        string
	SuccessURL      string
	CancelURL       string
	MinimumPurchase decimal.Decimal
}

// Service owns the payment lifecycle:
//
//	PENDING -> COMPLETED (ledger credited once)
//	PENDING -> FAILED | CANCELLED
//	COMPLETED -> CANCELLED (admin refund, ledger debited once)
type Service struct {
	store    Store
	tx       utils.Transactor
	ledger   Ledger
	users    Users
	provider Provider
	opts     Options
	log      *slog.Logger
	clock    func() time.Time
}

func NewService(d Deps, opts Options) *Service {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Tx == nil {
		d.Tx = utils.NoopTransactor{}
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	opts.Currency = strings.ToUpper(opts.Currency)
	return &Service{
		store:    d.Store,
		tx:       d.Tx,
		ledger:   d.Ledger,
		users:    d.Users,
		provider: d.Provider,
		opts:     opts,
		log:      d.Log,
		clock:    time.Now,
	}
}

var _ topup.Charger = (*Service)(nil)

func (s *Service) ProviderName() string { return s.provider.Name() }

// CreateCheckout records a PENDING checkout payment and returns it with the
// hosted checkout URL. The ledger is credited when the provider confirms.
func (s *Service) CreateCheckout(ctx context.Context, userID string, amount decimal.Decimal) (Payment, error) {
	amount = amount.Round(2)
	if !amount.IsPositive() || amount.LessThan(s.opts.MinimumPurchase) {
		return Payment{}, ErrAmountTooSmall
	}
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return Payment{}, err
	}

	p := s.newPayment(userID, amount, KindCheckout)
	if err := s.store.Insert(ctx, p); err != nil {
		return Payment{}, err
	}
	log := s.log.With("payment_id", p.ID, "user_id", userID)

	co, err := s.provider.CreateCheckout(ctx, CheckoutRequest{
		PaymentID:  p.ID,
		UserID:     userID,
		Email:      u.Email,
		CustomerID: u.PaymentCustomerID,
		Amount:     amount,
		Currency:   p.Currency,
		SuccessURL: s.opts.SuccessURL,
		CancelURL:  s.opts.CancelURL,
	})
	if err != nil {
		log.ErrorContext(ctx, "checkout creation failed", "provider", s.provider.Name(), "err", err)
		s.fail(ctx, p.ID, StatusFailed, "")
		return Payment{}, ErrProviderFailed
	}

	now := s.clock().UTC()
	if err := s.store.SetSession(ctx, p.ID, co.SessionID, co.URL, now); err != nil {
		return Payment{}, err
	}
	p.ProviderSessionID, p.CheckoutURL, p.UpdatedAt = co.SessionID, co.URL, now

	metrics.Get().Payments.WithLabelValues(string(KindCheckout), string(StatusPending)).Inc()
	log.InfoContext(ctx, "checkout created", "amount", amount.String(), "session_id", co.SessionID)
	return p, nil
}

// HandleWebhook authenticates a provider callback and applies it.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		return err
	}
	return s.HandleEvent(ctx, ev)
}

// HandleEvent applies a decoded callback. Redelivery is harmless: the status
// CAS and the ledger reference both have to pass before money moves.
func (s *Service) HandleEvent(ctx context.Context, ev Event) error {
	if ev.Type == EventIgnored {
		return nil
	}
	p, err := s.findForEvent(ctx, ev)
	if err != nil {
		return err
	}
	log := s.log.With("payment_id", p.ID, "user_id", p.UserID, "event", ev.Type, "event_id", ev.ID)

	switch ev.Type {
	case EventCheckoutCompleted:
		done, applied, err := s.complete(ctx, p, ev.ProviderPaymentID)
		if err != nil {
			return err
		}
		if !applied {
			log.InfoContext(ctx, "payment already settled", "status", done.Status)
		}
		if ev.CustomerID != "" && ev.PaymentMethodID != "" {
			if err := s.users.BindPaymentMethod(ctx, p.UserID, ev.CustomerID, ev.PaymentMethodID); err != nil {
				log.WarnContext(ctx, "failed to save payment method", "err", err)
			}
		}
		return nil

	case EventCheckoutExpired:
		s.fail(ctx, p.ID, StatusCancelled, ev.ProviderPaymentID)
		return nil

	case EventPaymentSucceeded:
		done, applied, err := s.complete(ctx, p, ev.ProviderPaymentID)
		if err != nil {
			return err
		}
		if !applied {
			log.InfoContext(ctx, "payment already settled", "status", done.Status)
		}
		return nil

	case EventPaymentFailed:
		s.fail(ctx, p.ID, StatusFailed, ev.ProviderPaymentID)
		return nil
	}
	return apperr.Errorf(apperr.KindInvalidArgument, "unhandled event type %q", ev.Type)
}

// ChargeTopup charges the user's saved method off-session and credits the
// ledger once the charge settles. A nil error means the credit was applied.
// Only a definitive refusal closes the payment; a charge that is still
// processing, or whose outcome is unknown, stays PENDING and is settled by
// the provider's payment webhook.
func (s *Service) ChargeTopup(ctx context.Context, u accounts.User, amount decimal.Decimal) error {
	if !u.HasPaymentMethod() {
		return ErrNoPaymentMethod
	}
	p := s.newPayment(u.ID, amount.Round(2), KindAutoTopup)
	if err := s.store.Insert(ctx, p); err != nil {
		return err
	}
	log := s.log.With("payment_id", p.ID, "user_id", u.ID)

	ch, err := s.provider.ChargeOffSession(ctx, ChargeRequest{
		PaymentID:       p.ID,
		CustomerID:      u.PaymentCustomerID,
		PaymentMethodID: u.DefaultPaymentMethodID,
		Amount:          p.Amount,
		Currency:        p.Currency,
	})
	if err != nil {
		// The caller's deadline may be gone; record the outcome regardless.
		if chargeRefused(err) {
			log.WarnContext(ctx, "top-up charge refused", "err", err)
			s.fail(context.WithoutCancel(ctx), p.ID, StatusFailed, "")
		} else {
			log.WarnContext(ctx, "top-up charge outcome unknown, awaiting provider callback", "err", err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return apperr.Wrap(apperr.KindTopupFailed, "top-up charge failed", err)
	}
	if !ch.Succeeded {
		// Processing or awaiting customer action. Keep it PENDING with the
		// provider id so the settlement webhook can complete it.
		if _, _, err := s.store.Transition(context.WithoutCancel(ctx), p.ID, StatusPending, StatusPending, ch.ProviderPaymentID, s.clock().UTC()); err != nil {
			log.ErrorContext(ctx, "failed to record provider payment id", "err", err)
		}
		log.InfoContext(ctx, "top-up charge not settled yet", "provider_payment_id", ch.ProviderPaymentID)
		return ErrChargeNotSettled
	}

	if _, _, err := s.complete(context.WithoutCancel(ctx), p, ch.ProviderPaymentID); err != nil {
		return err
	}
	return nil
}

// chargeRefused reports errors after which the provider certainly did not
// take money: a decline, a rejected request, or an open breaker.
func chargeRefused(err error) bool {
	if errors.Is(err, breaker.ErrOpen) {
		return true
	}
	switch apperr.KindOf(err) {
	case apperr.KindTopupFailed, apperr.KindInvalidArgument:
		return true
	}
	return false
}

// Refund reverses a COMPLETED payment: it moves to CANCELLED and the amount
// is debited from the balance. A second refund fails with ErrNotRefundable.
// Funds are not returned through the provider.
func (s *Service) Refund(ctx context.Context, paymentID string) (Payment, error) {
	var out Payment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, ok, err := s.store.Transition(ctx, paymentID, StatusCompleted, StatusCancelled, "", s.clock().UTC())
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotRefundable
		}
		if _, err := s.ledger.Debit(ctx, p.UserID, p.Amount, wallet.Posting{
			Reason:    wallet.ReasonPaymentRefund,
			Reference: p.ID,
		}); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	metrics.Get().Payments.WithLabelValues(string(out.Kind), "REFUNDED").Inc()
	s.log.InfoContext(ctx, "payment refunded", "payment_id", out.ID, "user_id", out.UserID, "amount", out.Amount.String())
	return out, nil
}

func (s *Service) Get(ctx context.Context, paymentID string) (Payment, error) {
	return s.store.Get(ctx, paymentID)
}

// GetForUser hides other users' payments behind ErrPaymentNotFound.
func (s *Service) GetForUser(ctx context.Context, userID, paymentID string) (Payment, error) {
	p, err := s.store.Get(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if p.UserID != userID {
		return Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string, limit, offset int) ([]Payment, error) {
	return s.ListAll(ctx, Filter{UserID: userID, Limit: limit, Offset: offset})
}

func (s *Service) ListAll(ctx context.Context, f Filter) ([]Payment, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.List(ctx, f)
}

// complete moves p to COMPLETED and credits the ledger in one transaction.
// applied is false when another delivery got there first.
func (s *Service) complete(ctx context.Context, p Payment, providerPaymentID string) (Payment, bool, error) {
	var (
		out     Payment
		applied bool
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		cur, ok, err := s.store.Transition(ctx, p.ID, StatusPending, StatusCompleted, providerPaymentID, s.clock().UTC())
		if err != nil {
			return err
		}
		out, applied = cur, ok
		if !ok {
			return nil
		}
		_, err = s.ledger.Credit(ctx, cur.UserID, cur.Amount, wallet.Posting{
			Reason:    wallet.ReasonPaymentCredit,
			Reference: cur.ID,
		})
		return err
	})
	if err != nil {
		return Payment{}, false, err
	}
	if applied {
		metrics.Get().Payments.WithLabelValues(string(out.Kind), string(StatusCompleted)).Inc()
		s.log.InfoContext(ctx, "payment completed",
			"payment_id", out.ID, "user_id", out.UserID, "kind", out.Kind, "amount", out.Amount.String())
	}
	return out, applied, nil
}

// fail moves a PENDING payment to status. Losing the race is not an error.
func (s *Service) fail(ctx context.Context, paymentID string, status Status, providerPaymentID string) {
	p, ok, err := s.store.Transition(ctx, paymentID, StatusPending, status, providerPaymentID, s.clock().UTC())
	if err != nil {
		s.log.ErrorContext(ctx, "failed to record payment failure", "payment_id", paymentID, "err", err)
		return
	}
	if ok {
		metrics.Get().Payments.WithLabelValues(string(p.Kind), string(status)).Inc()
		s.log.InfoContext(ctx, "payment closed", "payment_id", paymentID, "status", status)
	}
}

func (s *Service) findForEvent(ctx context.Context, ev Event) (Payment, error) {
	if ev.PaymentID != "" {
		return s.store.Get(ctx, ev.PaymentID)
	}
	if ev.SessionID != "" {
		return s.store.GetBySession(ctx, ev.SessionID)
	}
	return Payment{}, ErrPaymentNotFound
}

func (s *Service) newPayment(userID string, amount decimal.Decimal, kind Kind) Payment {
	now := s.clock().UTC()
	return Payment{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Currency:  s.opts.Currency,
		Status:    StatusPending,
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
