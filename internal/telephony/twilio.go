package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"voip-platform/internal/apperr"
	"voip-platform/internal/breaker"
)

const twilioAPIVersion = "2010-04-01"

type TwilioOptions struct {
	AccountSID string
	AuthToken  string
	// BaseURL is the REST API root, "https://api.twilio.com".
	BaseURL string
	// PublicBaseURL is where Twilio reaches our webhooks.
	PublicBaseURL string
	// VerificationFrom is the number verification calls are placed from.
	VerificationFrom string
	Timeout          time.Duration
}

// TwilioProvider places calls through the Twilio Programmable Voice REST API.
// Requests go through a circuit breaker; 4xx responses do not trip it.
type TwilioProvider struct {
	opts    TwilioOptions
	client  *http.Client
	breaker *breaker.Breaker
	log     *slog.Logger
}

func NewTwilioProvider(opts TwilioOptions, log *slog.Logger) *TwilioProvider {
	if log == nil {
		log = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")

	return &TwilioProvider{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		breaker: breaker.New("twilio", breaker.Options{
			IsSuccessful: func(err error) bool {
				return err == nil || apperr.KindOf(err) != apperr.KindProvider
			},
		}, log),
		log: log,
	}
}

func (p *TwilioProvider) Name() string { return "twilio" }

// BreakerState exposes the breaker for the admin provider listing.
func (p *TwilioProvider) BreakerState() string { return p.breaker.State() }

func (p *TwilioProvider) HealthCheck(ctx context.Context) error {
	return p.breaker.Do(func() error {
		return p.do(ctx, http.MethodGet, p.accountURL(".json"), nil, nil)
	})
}

func (p *TwilioProvider) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	form := url.Values{}
	form.Set("From", req.From)
	form.Set("To", req.To)
	form.Set("Url", p.callbackURL("/webhooks/twilio/voice", req.CallID))
	form.Set("Method", http.MethodPost)
	form.Set("StatusCallback", p.callbackURL("/webhooks/twilio/status", req.CallID))
	form.Set("StatusCallbackMethod", http.MethodPost)
	for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
		form.Add("StatusCallbackEvent", ev)
	}
	if req.Record {
		form.Set("Record", "true")
		form.Set("RecordingStatusCallback", p.callbackURL("/webhooks/twilio/recording", req.CallID))
	}

	res, err := breaker.Execute(p.breaker, func() (twilioCall, error) {
		var out twilioCall
		err := p.do(ctx, http.MethodPost, p.accountURL("/Calls.json"), form, &out)
		return out, err
	})
	if err != nil {
		return PlaceCallResult{}, err
	}
	return PlaceCallResult{ProviderCallID: res.SID, State: ParseCallState(res.Status)}, nil
}

func (p *TwilioProvider) FetchCall(ctx context.Context, providerCallID string) (CallInfo, error) {
	if providerCallID == "" {
		return CallInfo{}, ErrCallNotFound
	}
	res, err := breaker.Execute(p.breaker, func() (twilioCall, error) {
		var out twilioCall
		err := p.do(ctx, http.MethodGet, p.accountURL("/Calls/"+url.PathEscape(providerCallID)+".json"), nil, &out)
		return out, err
	})
	if err != nil {
		return CallInfo{}, err
	}
	dur, _ := strconv.Atoi(res.Duration)
	return CallInfo{ProviderCallID: res.SID, State: ParseCallState(res.Status), DurationSeconds: dur}, nil
}

func (p *TwilioProvider) SendVerificationCode(ctx context.Context, to, code string) error {
	twiml, err := RenderSay(VerificationMessage(code), 2)
	if err != nil {
		return err
	}
	form := url.Values{}
	form.Set("From", p.opts.VerificationFrom)
	form.Set("To", to)
	form.Set("Twiml", twiml)

	return p.breaker.Do(func() error {
		return p.do(ctx, http.MethodPost, p.accountURL("/Calls.json"), form, nil)
	})
}

type twilioCall struct {
	SID      string `json:"sid"`
	Status   string `json:"status"`
	Duration string `json:"duration"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (p *TwilioProvider) accountURL(suffix string) string {
	return fmt.Sprintf("%s/%s/Accounts/%s%s", p.opts.BaseURL, twilioAPIVersion, p.opts.AccountSID, suffix)
}

func (p *TwilioProvider) callbackURL(path, callID string) string {
	u := p.opts.PublicBaseURL + path
	if callID != "" {
		u += "?call_id=" + url.QueryEscape(callID)
	}
	return u
}

// do sends one request. Transport errors and 5xx map to ErrProviderUnavailable;
// 4xx map to ErrInvalidNumber or ErrCallNotFound.
func (p *TwilioProvider) do(ctx context.Context, method, endpoint string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("twilio: build request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(p.opts.AccountSID, p.opts.AuthToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindProvider, ErrProviderUnavailable.Msg, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperr.Wrap(apperr.KindProvider, ErrProviderUnavailable.Msg, err)
	}

	if resp.StatusCode >= 300 {
		var te twilioError
		_ = json.Unmarshal(raw, &te)
		cause := fmt.Errorf("twilio %s %d: code=%d %s", method, resp.StatusCode, te.Code, te.Message)
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return apperr.Wrap(apperr.KindNotFound, ErrCallNotFound.Msg, cause)
		case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusUnauthorized:
			return apperr.Wrap(apperr.KindInvalidArgument, ErrInvalidNumber.Msg, cause)
		default:
			return apperr.Wrap(apperr.KindProvider, ErrProviderUnavailable.Msg, cause)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(apperr.KindProvider, ErrProviderUnavailable.Msg, errors.Join(errors.New("twilio: decode response"), err))
	}
	return nil
}
