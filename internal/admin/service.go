// Package admin implements operator actions: refunds, manual credits, account
// deletion and rate toggles. Every mutation is audited; audit failures are
// logged and never undo the action.
package admin

import (
	"context"
	"log/slog"

	"voip-platform/internal/accounts"
	"voip-platform/internal/apperr"
	"voip-platform/internal/audit"
	"voip-platform/internal/calls"
	"voip-platform/internal/payments"
	"voip-platform/internal/pricing"
	"voip-platform/internal/reporting"
	"voip-platform/internal/telephony"
	"voip-platform/internal/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CallRefunder interface {
	Refund(ctx context.Context, callID string) (calls.Call, error)
	ListAll(ctx context.Context, f calls.Filter) ([]calls.Call, error)
}

type PaymentRefunder interface {
	Refund(ctx context.Context, paymentID string) (payments.Payment, error)
	ListAll(ctx context.Context, f payments.Filter) ([]payments.Payment, error)
}

type Ledger interface {
	Credit(ctx context.Context, userID string, amount decimal.Decimal, p wallet.Posting) (wallet.Entry, error)
}

type Users interface {
	List(ctx context.Context, limit, offset int) ([]accounts.User, error)
	Delete(ctx context.Context, userID string) error
}

type Rates interface {
	List(ctx context.Context) ([]pricing.Rate, error)
	SetActive(ctx context.Context, rateID string, active bool) (pricing.Rate, error)
}

type ProviderStatuses interface {
	Status(ctx context.Context) []telephony.ProviderStatus
}

type Reports interface {
	Dashboard(ctx context.Context, r reporting.TimeRange) (reporting.Dashboard, error)
}

type Deps struct {
	Calls     CallRefunder
	Payments  PaymentRefunder
	Ledger    Ledger
	Users     Users
	Rates     Rates
	Providers ProviderStatuses
	Reports   Reports
	Audit     *audit.Service
	Log       *slog.Logger
}

type Service struct {
	d   Deps
	log *slog.Logger
}

func NewService(d Deps) *Service {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return &Service{d: d, log: d.Log}
}

func (s *Service) RefundCall(ctx context.Context, actor audit.Actor, callID string) (calls.Call, error) {
	c, err := s.d.Calls.Refund(ctx, callID)
	if err != nil {
		return calls.Call{}, err
	}
	s.record(ctx, actor, audit.ActionRefundCall, audit.TargetCall, c.ID, c.UserID, "call refunded",
		map[string]any{"amount": c.Cost.String()})
	return c, nil
}

func (s *Service) RefundPayment(ctx context.Context, actor audit.Actor, paymentID string) (payments.Payment, error) {
	p, err := s.d.Payments.Refund(ctx, paymentID)
	if err != nil {
		return payments.Payment{}, err
	}
	s.record(ctx, actor, audit.ActionRefundPayment, audit.TargetPayment, p.ID, p.UserID, "payment refunded",
		map[string]any{"amount": p.Amount.String(), "kind": p.Kind})
	return p, nil
}

// AddCredits credits userID. A non-empty reference makes retries safe;
// otherwise each call posts a new credit.
func (s *Service) AddCredits(ctx context.Context, actor audit.Actor, userID string, amount decimal.Decimal, reference, note string) (wallet.Entry, error) {
	if !amount.IsPositive() {
		return wallet.Entry{}, wallet.ErrInvalidAmount
	}
	if reference == "" {
		reference = uuid.NewString()
	}
	e, err := s.d.Ledger.Credit(ctx, userID, amount.Round(2), wallet.Posting{
		Reason:    wallet.ReasonAdminCredit,
		Reference: reference,
	})
	if err != nil {
		return wallet.Entry{}, err
	}
	if !e.Replayed {
		s.record(ctx, actor, audit.ActionAddCredits, audit.TargetUser, userID, userID, note,
			map[string]any{"amount": amount.Round(2).String(), "reference": reference, "entry_id": e.ID})
	}
	return e, nil
}

func (s *Service) DeleteUser(ctx context.Context, actor audit.Actor, userID string) error {
	if userID == actor.ID {
		return apperr.New(apperr.KindForbidden, "admins cannot delete their own account")
	}
	if err := s.d.Users.Delete(ctx, userID); err != nil {
		return err
	}
	s.record(ctx, actor, audit.ActionDeleteUser, audit.TargetUser, userID, userID, "user deleted", nil)
	return nil
}

func (s *Service) ToggleRate(ctx context.Context, actor audit.Actor, rateID string, active bool) (pricing.Rate, error) {
	r, err := s.d.Rates.SetActive(ctx, rateID, active)
	if err != nil {
		return pricing.Rate{}, err
	}
	s.record(ctx, actor, audit.ActionToggleRate, audit.TargetRate, r.ID, "", "rate toggled",
		map[string]any{"active": active, "country_code": r.CountryCode, "caller_id_country": r.CallerIDCountry})
	return r, nil
}

func (s *Service) Users(ctx context.Context, limit, offset int) ([]accounts.User, error) {
	return s.d.Users.List(ctx, limit, offset)
}

func (s *Service) Calls(ctx context.Context, f calls.Filter) ([]calls.Call, error) {
	return s.d.Calls.ListAll(ctx, f)
}

func (s *Service) Payments(ctx context.Context, f payments.Filter) ([]payments.Payment, error) {
	return s.d.Payments.ListAll(ctx, f)
}

func (s *Service) Rates(ctx context.Context) ([]pricing.Rate, error) {
	return s.d.Rates.List(ctx)
}

func (s *Service) Providers(ctx context.Context) []telephony.ProviderStatus {
	if s.d.Providers == nil {
		return nil
	}
	return s.d.Providers.Status(ctx)
}

func (s *Service) Dashboard(ctx context.Context, r reporting.TimeRange) (reporting.Dashboard, error) {
	return s.d.Reports.Dashboard(ctx, r)
}

func (s *Service) AuditLog(ctx context.Context, limit, offset int) ([]audit.Event, error) {
	if s.d.Audit == nil {
		return nil, nil
	}
	return s.d.Audit.List(ctx, limit, offset)
}

func (s *Service) record(ctx context.Context, actor audit.Actor, action audit.Action, target audit.TargetType, targetID, userID, message string, details map[string]any) {
	s.log.InfoContext(ctx, "admin action",
		"action", action, "actor_id", actor.ID, "target_type", target, "target_id", targetID)
	if s.d.Audit == nil {
		return
	}
	// Record logs its own failures.
	_ = s.d.Audit.Record(ctx, actor, action, target, targetID, userID, message, details)
}
