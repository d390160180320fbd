package calls

import (
	"context"
	"log/slog"

	"voip-platform/internal/apperr"
	"voip-platform/internal/metrics"
	"voip-platform/internal/telephony"
	"voip-platform/internal/topup"

	"github.com/shopspring/decimal"
)

// Admitter is the pre-call balance check.
type Admitter interface {
	CheckBalanceBeforeCall(ctx context.Context, userID string, minimumReserve decimal.Decimal) (topup.Admission, error)
}

// Initiator runs the outbound call flow: caller ID and rate resolution,
// admission, concurrency slot, record creation, provider dial.
type Initiator struct {
	calls     *Service
	admission Admitter
	provider  telephony.Provider
	reserve   decimal.Decimal
	record    bool
	log       *slog.Logger
}

type InitiatorOptions struct {
	// MinimumReserve is the balance required to start a call.
	MinimumReserve decimal.Decimal
	Record         bool
}

func NewInitiator(calls *Service, admission Admitter, provider telephony.Provider, opts InitiatorOptions, log *slog.Logger) *Initiator {
	if log == nil {
		log = slog.Default()
	}
	return &Initiator{
		calls:     calls,
		admission: admission,
		provider:  provider,
		reserve:   opts.MinimumReserve,
		record:    opts.Record,
		log:       log,
	}
}

type StartResult struct {
	Call           Call `json:"call"`
	TopupTriggered bool `json:"topup_triggered"`
}

// Start places a call. A provider failure leaves the call FAILED at zero
// cost and returns ErrCallFailed; the provider detail is only logged.
func (in *Initiator) Start(ctx context.Context, req CreateRequest) (StartResult, error) {
	started := metrics.Get().CallsStarted
	log := in.log.With("user_id", req.UserID)

	c, err := in.calls.prepare(ctx, req)
	if err != nil {
		started.WithLabelValues("rejected").Inc()
		return StartResult{}, err
	}

	adm, err := in.admission.CheckBalanceBeforeCall(ctx, req.UserID, in.reserve)
	if err != nil {
		return StartResult{}, err
	}
	if !adm.CanProceed {
		started.WithLabelValues("rejected").Inc()
		log.InfoContext(ctx, "call refused by admission", "topup_attempted", adm.TopupAttempted)
		return StartResult{}, adm.Err()
	}

	ok, err := in.calls.limiter.Acquire(ctx, req.UserID, c.ID)
	if err != nil {
		return StartResult{}, err
	}
	if !ok {
		started.WithLabelValues("rejected").Inc()
		return StartResult{}, ErrTooManyCalls
	}

	if err := in.calls.store.Insert(ctx, c); err != nil {
		in.calls.releaseSlot(ctx, req.UserID, c.ID)
		return StartResult{}, err
	}
	log = log.With("call_id", c.ID)

	res, err := in.provider.PlaceCall(ctx, telephony.PlaceCallRequest{
		CallID:         c.ID,
		From:           c.From,
		To:             c.To,
		ClientIdentity: c.UserID,
		Record:         in.record,
	})
	if err != nil {
		started.WithLabelValues("provider_error").Inc()
		log.ErrorContext(ctx, "provider rejected call", "provider", in.provider.Name(), "err", err)

		failed, ferr := in.calls.FailOnProvider(ctx, c.ID)
		if ferr != nil {
			log.ErrorContext(ctx, "failed to record provider failure", "err", ferr)
		}
		if apperr.KindOf(err) == apperr.KindInvalidArgument {
			return StartResult{Call: failed}, telephony.ErrInvalidNumber
		}
		return StartResult{Call: failed}, ErrCallFailed
	}

	if err := in.calls.MarkProviderAccepted(ctx, c.ID, res.ProviderCallID); err != nil {
		// Status callbacks can still find the call by the id echoed in their URL.
		log.ErrorContext(ctx, "failed to store provider call id", "provider_call_id", res.ProviderCallID, "err", err)
	}
	c.ProviderCallID = res.ProviderCallID

	started.WithLabelValues("placed").Inc()
	log.InfoContext(ctx, "call placed",
		"provider", in.provider.Name(),
		"provider_call_id", res.ProviderCallID,
		"topup_triggered", adm.TopupTriggered,
	)
	return StartResult{Call: c, TopupTriggered: adm.TopupTriggered}, nil
}
