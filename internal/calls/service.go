package calls

import (
	"context"
	"log/slog"
	"time"

	"voip-platform/internal/apperr"
	"voip-platform/internal/callerid"
	"voip-platform/internal/metrics"
	"voip-platform/internal/pricing"
	"voip-platform/internal/telephony"
	"voip-platform/internal/wallet"
	"voip-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RateResolver finds the active rate for a dialed number.
type RateResolver interface {
	Resolve(ctx context.Context, callerIDCountry, dialed string) (pricing.Rate, error)
}

// Ledger is the slice of the balance ledger the call lifecycle uses.
type Ledger interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	Debit(ctx context.Context, userID string, amount decimal.Decimal, p wallet.Posting) (wallet.Entry, error)
	Credit(ctx context.Context, userID string, amount decimal.Decimal, p wallet.Posting) (wallet.Entry, error)
}

// VerifiedCallerIDs looks up a user's verified numbers.
type VerifiedCallerIDs interface {
	FindVerified(ctx context.Context, userID, phone string) (callerid.CallerID, error)
}

type Deps struct {
	Store     Store
	Tx        utils.Transactor
	Rates     RateResolver
	Ledger    Ledger
	CallerIDs VerifiedCallerIDs
	Limiter   Limiter
	Log       *slog.Logger
}

type Options struct {
	// DefaultCallerID is presented when the user does not pick a verified number.
	DefaultCallerID        string
	DefaultCallerIDCountry string
	// IncrementSeconds is the billing step; 1 bills exact seconds.
	IncrementSeconds int
}

// Service owns the call record state machine and its ledger effects.
//
// Invariants:
// - Cost is computed from the rate captured at creation
// - Finalize debits at most once per call; repeats return the recorded call
// - A call is never left COMPLETED without its debit (same transaction)
type Service struct {
	store     Store
	tx        utils.Transactor
	rates     RateResolver
	ledger    Ledger
	callerIDs VerifiedCallerIDs
	limiter   Limiter
	opts      Options
	log       *slog.Logger
	clock     func() time.Time
}

func NewService(d Deps, opts Options) *Service {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Tx == nil {
		d.Tx = utils.NoopTransactor{}
	}
	if d.Limiter == nil {
		d.Limiter = NoLimit{}
	}
	if opts.IncrementSeconds <= 0 {
		opts.IncrementSeconds = 1
	}
	return &Service{
		store:     d.Store,
		tx:        d.Tx,
		rates:     d.Rates,
		ledger:    d.Ledger,
		callerIDs: d.CallerIDs,
		limiter:   d.Limiter,
		opts:      opts,
		log:       d.Log,
		clock:     time.Now,
	}
}

type CreateRequest struct {
	UserID string `json:"user_id"`
	To     string `json:"to"`
	// CallerID selects a verified number; empty uses the platform default.
	CallerID string `json:"caller_id,omitempty"`
}

// Create resolves the caller ID and destination rate and records an
// INITIATED call with zero cost.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Call, error) {
	c, err := s.prepare(ctx, req)
	if err != nil {
		return Call{}, err
	}
	if err := s.store.Insert(ctx, c); err != nil {
		return Call{}, err
	}
	s.log.InfoContext(ctx, "call created",
		"call_id", c.ID, "user_id", c.UserID, "country_code", c.CountryCode, "rate", c.RatePerMinute.String())
	return c, nil
}

func (s *Service) prepare(ctx context.Context, req CreateRequest) (Call, error) {
	from, country, typ := s.opts.DefaultCallerID, s.opts.DefaultCallerIDCountry, CallerIDDefault
	if req.CallerID != "" {
		if s.callerIDs == nil {
			return Call{}, ErrCallerIDNotVerified
		}
		cid, err := s.callerIDs.FindVerified(ctx, req.UserID, req.CallerID)
		if err != nil {
			switch apperr.KindOf(err) {
			case apperr.KindNotFound, apperr.KindInvalidArgument:
				return Call{}, ErrCallerIDNotVerified
			}
			return Call{}, err
		}
		from, country, typ = cid.PhoneNumber, cid.Country, CallerIDVerified
	}
	if from == "" {
		return Call{}, ErrNoDefaultCallerID
	}

	digits := pricing.CleanDigits(req.To)
	if len(digits) < 7 || len(digits) > 15 {
		return Call{}, telephony.ErrInvalidNumber
	}
	rate, err := s.rates.Resolve(ctx, country, digits)
	if err != nil {
		return Call{}, err
	}

	now := s.clock().UTC()
	return Call{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		From:          from,
		To:            "+" + digits,
		CountryName:   rate.CountryName,
		CountryCode:   rate.CountryCode,
		Status:        StatusInitiated,
		Cost:          decimal.Zero,
		RatePerMinute: rate.RatePerMinute,
		Currency:      rate.Currency,
		CallerIDType:  typ,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// MarkProviderAccepted stores the provider's call id. Status is unchanged.
func (s *Service) MarkProviderAccepted(ctx context.Context, callID, providerCallID string) error {
	return s.store.SetProviderCallID(ctx, callID, providerCallID, s.clock().UTC())
}

// Advance applies RINGING or ANSWERED. Out-of-order or late updates return
// ErrInvalidTransition and leave the call unchanged.
func (s *Service) Advance(ctx context.Context, callID string, status Status) (Call, error) {
	if status != StatusRinging && status != StatusAnswered {
		return Call{}, apperr.Errorf(apperr.KindInvalidArgument, "advance needs RINGING or ANSWERED, got %s", status)
	}
	c, ok, err := s.store.Transition(ctx, callID, sourcesFor(status), status, s.clock().UTC())
	if err != nil {
		return Call{}, err
	}
	if !ok {
		return c, ErrInvalidTransition
	}
	s.log.InfoContext(ctx, "call advanced", "call_id", callID, "status", status)
	return c, nil
}

// Finalize moves the call to a terminal status and debits its cost. Only
// COMPLETED calls are billed. A call that already ended is returned as
// recorded, without a second debit.
func (s *Service) Finalize(ctx context.Context, callID string, durationSeconds int, status Status) (Call, error) {
	if !status.Terminal() {
		return Call{}, apperr.Errorf(apperr.KindInvalidArgument, "finalize needs a terminal status, got %s", status)
	}
	if durationSeconds < 0 {
		durationSeconds = 0
	}

	var (
		out     Call
		applied bool
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		cur, err := s.store.Get(ctx, callID)
		if err != nil {
			return err
		}
		if cur.Status.Terminal() {
			out = cur
			return nil
		}

		cost := decimal.Zero
		if status == StatusCompleted {
			cost = pricing.CallCost(cur.RatePerMinute, durationSeconds, s.opts.IncrementSeconds)
		}

		c, ok, err := s.store.Finalize(ctx, callID, status, durationSeconds, cost, s.clock().UTC())
		if err != nil {
			return err
		}
		if !ok {
			out = c
			return nil
		}
		if cost.IsPositive() {
			if _, err := s.ledger.Debit(ctx, c.UserID, cost, wallet.Posting{Reason: wallet.ReasonCallCharge, Reference: c.ID}); err != nil {
				return err
			}
		}
		out, applied = c, true
		return nil
	})
	if err != nil {
		return Call{}, err
	}

	if !applied {
		s.log.InfoContext(ctx, "call already finalized", "call_id", callID, "status", out.Status, "cost", out.Cost.String())
		return out, nil
	}

	s.releaseSlot(ctx, out.UserID, out.ID)
	m := metrics.Get()
	m.CallsFinalized.WithLabelValues(string(out.Status)).Inc()
	m.CallCharges.Add(out.Cost.InexactFloat64())
	s.log.InfoContext(ctx, "call finalized",
		"call_id", out.ID,
		"user_id", out.UserID,
		"status", out.Status,
		"duration_seconds", out.DurationSeconds,
		"cost", out.Cost.String(),
	)
	return out, nil
}

// FailOnProvider records a synchronous provider rejection: FAILED, cost 0.
func (s *Service) FailOnProvider(ctx context.Context, callID string) (Call, error) {
	return s.Finalize(ctx, callID, 0, StatusFailed)
}

// Refund credits a COMPLETED call's cost back and marks it CANCELLED.
// The status guard makes a second refund fail with ErrNotRefundable.
func (s *Service) Refund(ctx context.Context, callID string) (Call, error) {
	var out Call
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.store.MarkRefunded(ctx, callID, s.clock().UTC())
		if err != nil {
			return err
		}
		if c.Cost.IsPositive() {
			if _, err := s.ledger.Credit(ctx, c.UserID, c.Cost, wallet.Posting{Reason: wallet.ReasonCallRefund, Reference: c.ID}); err != nil {
				return err
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return Call{}, err
	}
	s.log.InfoContext(ctx, "call refunded", "call_id", out.ID, "user_id", out.UserID, "amount", out.Cost.String())
	return out, nil
}

// SetRecording attaches a recording to the call identified by callID or,
// when that is empty, providerCallID.
func (s *Service) SetRecording(ctx context.Context, callID, providerCallID, recordingURL string) error {
	c, err := s.lookup(ctx, callID, providerCallID)
	if err != nil {
		return err
	}
	return s.store.SetRecording(ctx, c.ID, recordingURL, s.clock().UTC())
}

func (s *Service) Get(ctx context.Context, callID string) (Call, error) {
	return s.store.Get(ctx, callID)
}

// GetForUser hides other users' calls behind NotFound.
func (s *Service) GetForUser(ctx context.Context, userID, callID string) (Call, error) {
	c, err := s.store.Get(ctx, callID)
	if err != nil {
		return Call{}, err
	}
	if c.UserID != userID {
		return Call{}, ErrCallNotFound
	}
	return c, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string, limit, offset int) ([]Call, error) {
	return s.ListAll(ctx, Filter{UserID: userID, Limit: limit, Offset: offset})
}

func (s *Service) ListAll(ctx context.Context, f Filter) ([]Call, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.List(ctx, f)
}

// ListStale returns calls still non-terminal olderThan after creation.
func (s *Service) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]Call, error) {
	return s.store.ListStale(ctx, s.clock().UTC().Add(-olderThan), limit)
}

func (s *Service) ListBetween(ctx context.Context, from, to time.Time) ([]Call, error) {
	return s.store.ListBetween(ctx, from, to)
}

func (s *Service) lookup(ctx context.Context, callID, providerCallID string) (Call, error) {
	if callID != "" {
		return s.store.Get(ctx, callID)
	}
	if providerCallID != "" {
		return s.store.GetByProviderID(ctx, providerCallID)
	}
	return Call{}, ErrCallNotFound
}

func (s *Service) releaseSlot(ctx context.Context, userID, callID string) {
	if err := s.limiter.Release(ctx, userID, callID); err != nil {
		s.log.WarnContext(ctx, "concurrency slot release failed", "user_id", userID, "call_id", callID, "err", err)
	}
}
