package calls

import (
	"context"
	"log/slog"

	"voip-platform/internal/telephony"

	"github.com/shopspring/decimal"
)

// maxDialSeconds is the longest bridge we ask the provider for.
const maxDialSeconds = 4 * 60 * 60

// FromProviderState maps a provider call state to a call status. Queued and
// initiated map to "" and change nothing.
func FromProviderState(st telephony.CallState) Status {
	switch st {
	case telephony.CallStateRinging:
		return StatusRinging
	case telephony.CallStateInProgress:
		return StatusAnswered
	case telephony.CallStateCompleted:
		return StatusCompleted
	case telephony.CallStateBusy, telephony.CallStateNoAnswer, telephony.CallStateFailed:
		return StatusFailed
	case telephony.CallStateCanceled:
		return StatusCancelled
	}
	return ""
}

// StatusHandler feeds provider callbacks into the call lifecycle. It
// implements telephony.StatusSink and telephony.VoiceResolver.
type StatusHandler struct {
	calls *Service
	log   *slog.Logger
}

func NewStatusHandler(calls *Service, log *slog.Logger) *StatusHandler {
	if log == nil {
		log = slog.Default()
	}
	return &StatusHandler{calls: calls, log: log}
}

// Apply is safe to call repeatedly with the same update.
func (h *StatusHandler) Apply(ctx context.Context, up telephony.StatusUpdate) error {
	c, err := h.calls.lookup(ctx, up.CallID, up.ProviderCallID)
	if err != nil {
		return err
	}
	if c.ProviderCallID == "" && up.ProviderCallID != "" {
		// The callback beat the PlaceCall response.
		if err := h.calls.MarkProviderAccepted(ctx, c.ID, up.ProviderCallID); err != nil {
			return err
		}
	}

	status := FromProviderState(up.State)
	switch {
	case status == "":
		return nil
	case status.Terminal():
		_, err = h.calls.Finalize(ctx, c.ID, up.DurationSeconds, status)
		return err
	default:
		_, err = h.calls.Advance(ctx, c.ID, status)
		if err != nil && c.Status.Terminal() {
			h.log.DebugContext(ctx, "late status ignored", "call_id", c.ID, "status", status, "current", c.Status)
		}
		return err
	}
}

func (h *StatusHandler) AttachRecording(ctx context.Context, callID, providerCallID, recordingURL string) error {
	return h.calls.SetRecording(ctx, callID, providerCallID, recordingURL)
}

// DialTarget bridges the answered call to the caller's browser client. The
// time limit keeps the call within what the balance covers.
func (h *StatusHandler) DialTarget(ctx context.Context, callID, providerCallID string) (telephony.DialTarget, error) {
	c, err := h.calls.lookup(ctx, callID, providerCallID)
	if err != nil {
		return telephony.DialTarget{}, err
	}
	if c.Status.Terminal() {
		return telephony.DialTarget{}, ErrInvalidTransition
	}

	t := telephony.DialTarget{CallerID: c.From, Client: c.UserID}
	if c.RatePerMinute.IsPositive() {
		bal, err := h.calls.ledger.GetBalance(ctx, c.UserID)
		if err != nil {
			return telephony.DialTarget{}, err
		}
		t.TimeLimitSeconds = dialLimit(bal, c.RatePerMinute)
	}
	return t, nil
}

// dialLimit is the whole seconds bal buys at ratePerMinute, at least one
// minute and at most maxDialSeconds.
func dialLimit(bal, ratePerMinute decimal.Decimal) int {
	secs := bal.Mul(decimal.NewFromInt(60)).Div(ratePerMinute).IntPart()
	switch {
	case secs < 60:
		return 60
	case secs > maxDialSeconds:
		return maxDialSeconds
	}
	return int(secs)
}
