package telephony

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// SandboxProvider is an in-process adapter for local environments and tests.
// Calls stay in the state they were last set to; verification codes are
// logged instead of spoken.
//
// Keep this adapter free of business logic.
type SandboxProvider struct {
	mu    sync.Mutex
	calls map[string]CallInfo
	codes map[string]string
	log   *slog.Logger

	// PlaceErr, when set, is returned by PlaceCall.
	PlaceErr error
}

func NewSandboxProvider(log *slog.Logger) *SandboxProvider {
	if log == nil {
		log = slog.Default()
	}
	return &SandboxProvider{calls: map[string]CallInfo{}, codes: map[string]string{}, log: log}
}

func (p *SandboxProvider) Name() string { return "sandbox" }

func (p *SandboxProvider) HealthCheck(ctx context.Context) error {
	return nil
}

func (p *SandboxProvider) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PlaceErr != nil {
		return PlaceCallResult{}, p.PlaceErr
	}
	sid := "SB" + uuid.NewString()
	p.calls[sid] = CallInfo{ProviderCallID: sid, State: CallStateQueued}
	p.log.InfoContext(ctx, "sandbox call placed", "call_id", req.CallID, "provider_call_id", sid, "to", req.To)
	return PlaceCallResult{ProviderCallID: sid, State: CallStateQueued}, nil
}

func (p *SandboxProvider) FetchCall(ctx context.Context, providerCallID string) (CallInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.calls[providerCallID]
	if !ok {
		return CallInfo{}, ErrCallNotFound
	}
	return info, nil
}

func (p *SandboxProvider) SendVerificationCode(ctx context.Context, to, code string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes[to] = code
	p.log.InfoContext(ctx, "sandbox verification code", "to", to, "code", code)
	return nil
}

// SetCall overrides the state FetchCall reports.
func (p *SandboxProvider) SetCall(info CallInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[info.ProviderCallID] = info
}

// LastCode returns the most recent code sent to number.
func (p *SandboxProvider) LastCode(number string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.codes[number]
}
