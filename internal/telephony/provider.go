package telephony

import (
	"context"
	"strings"

	"voip-platform/internal/apperr"
)

// Provider defines the provider-agnostic interface used by business logic.
//
// Rules:
// - No provider REST calls outside telephony adapters.
// - Keep request/response types provider-agnostic.
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// PlaceCall dials To presenting From and bridges the answered leg to the
	// caller's browser client.
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)
	// FetchCall polls the provider for the current state of a call.
	FetchCall(ctx context.Context, providerCallID string) (CallInfo, error)
	// SendVerificationCode places a short call that reads code to the number.
	SendVerificationCode(ctx context.Context, to, code string) error
}

type PlaceCallRequest struct {
	// CallID is the internal call id; adapters echo it on callbacks.
	CallID string `json:"call_id"`

	// From and To are E.164.
	From string `json:"from"`
	To   string `json:"to"`

	// ClientIdentity is the browser client the answered call is bridged to.
	ClientIdentity string `json:"client_identity"`

	Record bool `json:"record"`
}

type PlaceCallResult struct {
	ProviderCallID string    `json:"provider_call_id"`
	State          CallState `json:"state"`
}

// CallInfo is a provider-agnostic call detail snapshot.
type CallInfo struct {
	ProviderCallID  string    `json:"provider_call_id"`
	State           CallState `json:"state"`
	DurationSeconds int       `json:"duration_seconds"`
}

// CallState is the provider's view of a call leg.
type CallState string

const (
	CallStateQueued     CallState = "queued"
	CallStateInitiated  CallState = "initiated"
	CallStateRinging    CallState = "ringing"
	CallStateInProgress CallState = "in-progress"
	CallStateCompleted  CallState = "completed"
	CallStateBusy       CallState = "busy"
	CallStateNoAnswer   CallState = "no-answer"
	CallStateFailed     CallState = "failed"
	CallStateCanceled   CallState = "canceled"
)

// ParseCallState normalizes provider spellings ("in_progress", "answered",
// "cancelled"). Unknown values return "".
func ParseCallState(s string) CallState {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	switch s {
	case "answered":
		return CallStateInProgress
	case "cancelled":
		return CallStateCanceled
	}
	switch st := CallState(s); st {
	case CallStateQueued, CallStateInitiated, CallStateRinging, CallStateInProgress,
		CallStateCompleted, CallStateBusy, CallStateNoAnswer, CallStateFailed, CallStateCanceled:
		return st
	}
	return ""
}

// Terminal reports whether the provider will send no further updates.
func (s CallState) Terminal() bool {
	switch s {
	case CallStateCompleted, CallStateBusy, CallStateNoAnswer, CallStateFailed, CallStateCanceled:
		return true
	}
	return false
}

// StatusUpdate is a status callback or poll result handed to the call lifecycle.
type StatusUpdate struct {
	// CallID is set when the provider echoed our id on the callback URL.
	CallID          string
	ProviderCallID  string
	State           CallState
	DurationSeconds int
}

var (
	ErrProviderUnavailable = apperr.New(apperr.KindProvider, "telephony provider unavailable")
	ErrInvalidNumber       = apperr.New(apperr.KindInvalidArgument, "invalid phone number")
	ErrCallNotFound        = apperr.New(apperr.KindNotFound, "provider call not found")
)
