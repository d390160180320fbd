package reporting

import (
	"context"
	"errors"
	"sort"
	"time"

	"voip-platform/internal/apperr"
	"voip-platform/internal/calls"
	"voip-platform/internal/wallet"

	"github.com/shopspring/decimal"
)

var ErrInvalidRange = apperr.New(apperr.KindInvalidArgument, "reporting range must have from before to")

// CallSource lists call records created in [from, to).
type CallSource interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]calls.Call, error)
}

// LedgerSource aggregates ledger entries created in [from, to) by reason.
type LedgerSource interface {
	TotalsBetween(ctx context.Context, from, to time.Time) ([]wallet.ReasonTotal, error)
}

// Service builds admin dashboard aggregates from call records and the ledger.
//
// Sources are read-only; reports never mutate state.
type Service struct {
	calls  CallSource
	ledger LedgerSource
	clock  func() time.Time
}

func NewService(calls CallSource, ledger LedgerSource) *Service {
	return &Service{calls: calls, ledger: ledger, clock: time.Now}
}

// DefaultRange is the trailing 30 days.
func (s *Service) DefaultRange() TimeRange {
	now := s.clock().UTC()
	return TimeRange{From: now.AddDate(0, 0, -30), To: now}
}

func (s *Service) CallsSummary(ctx context.Context, r TimeRange) (CallsSummary, error) {
	if err := validRange(r); err != nil {
		return CallsSummary{}, err
	}
	if s.calls == nil {
		return CallsSummary{}, errors.New("reporting: call source not configured")
	}

	rows, err := s.calls.ListBetween(ctx, r.From, r.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{Range: r, Revenue: decimal.Zero}
	byCountry := map[string]*CountryTotal{}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.RecordingURL != "" {
			out.RecordedCalls++
		}

		switch c.Status {
		case calls.StatusCompleted:
			out.CompletedCalls++
		case calls.StatusFailed:
			out.FailedCalls++
		case calls.StatusCancelled:
			out.CancelledCalls++
			if c.RefundedAt != nil {
				out.RefundedCalls++
			}
		default:
			out.InProgressCalls++
		}

		ct, ok := byCountry[c.CountryCode]
		if !ok {
			ct = &CountryTotal{CountryName: c.CountryName, CountryCode: c.CountryCode, Revenue: decimal.Zero}
			byCountry[c.CountryCode] = ct
		}
		ct.Calls++
		ct.Seconds += c.DurationSeconds
		if c.Status == calls.StatusCompleted {
			out.Revenue = out.Revenue.Add(c.Cost)
			ct.Revenue = ct.Revenue.Add(c.Cost)
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}

	out.ByCountry = make([]CountryTotal, 0, len(byCountry))
	for _, ct := range byCountry {
		out.ByCountry = append(out.ByCountry, *ct)
	}
	sort.Slice(out.ByCountry, func(i, j int) bool {
		a, b := out.ByCountry[i], out.ByCountry[j]
		if !a.Revenue.Equal(b.Revenue) {
			return a.Revenue.GreaterThan(b.Revenue)
		}
		return a.CountryCode < b.CountryCode
	})
	return out, nil
}

func (s *Service) LedgerSummary(ctx context.Context, r TimeRange) (LedgerSummary, error) {
	if err := validRange(r); err != nil {
		return LedgerSummary{}, err
	}
	if s.ledger == nil {
		return LedgerSummary{}, errors.New("reporting: ledger source not configured")
	}

	totals, err := s.ledger.TotalsBetween(ctx, r.From, r.To)
	if err != nil {
		return LedgerSummary{}, err
	}

	out := LedgerSummary{
		Range:          r,
		CallCharges:    decimal.Zero,
		CallRefunds:    decimal.Zero,
		PaymentCredits: decimal.Zero,
		PaymentRefunds: decimal.Zero,
		AdminCredits:   decimal.Zero,
		TotalCredits:   decimal.Zero,
		TotalDebits:    decimal.Zero,
	}
	for _, t := range totals {
		out.Entries += t.Count
		abs := t.Amount.Abs()
		if t.Amount.IsNegative() {
			out.TotalDebits = out.TotalDebits.Add(abs)
		} else {
			out.TotalCredits = out.TotalCredits.Add(abs)
		}

		switch t.Reason {
		case wallet.ReasonCallCharge:
			out.CallCharges = out.CallCharges.Add(abs)
		case wallet.ReasonCallRefund:
			out.CallRefunds = out.CallRefunds.Add(abs)
		case wallet.ReasonPaymentCredit:
			out.PaymentCredits = out.PaymentCredits.Add(abs)
		case wallet.ReasonPaymentRefund:
			out.PaymentRefunds = out.PaymentRefunds.Add(abs)
		case wallet.ReasonAdminCredit:
			out.AdminCredits = out.AdminCredits.Add(abs)
		}
	}
	out.Net = out.TotalCredits.Sub(out.TotalDebits)
	return out, nil
}

// Dashboard combines both summaries over r; a zero range means DefaultRange.
func (s *Service) Dashboard(ctx context.Context, r TimeRange) (Dashboard, error) {
	if r.From.IsZero() && r.To.IsZero() {
		r = s.DefaultRange()
	}
	cs, err := s.CallsSummary(ctx, r)
	if err != nil {
		return Dashboard{}, err
	}
	ls, err := s.LedgerSummary(ctx, r)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{Calls: cs, Ledger: ls}, nil
}

func validRange(r TimeRange) error {
	if r.From.IsZero() || r.To.IsZero() || !r.To.After(r.From) {
		return ErrInvalidRange
	}
	return nil
}
