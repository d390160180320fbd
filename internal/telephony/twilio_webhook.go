package telephony

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // Twilio signs webhooks with HMAC-SHA1
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// TwilioStatusForm captures the subset of status callback fields we care about.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/api/call-resource#statuscallback
type TwilioStatusForm struct {
	CallID       string // our id, echoed from the callback query string
	CallSid      string
	AccountSid   string
	CallStatus   string
	CallDuration int
	From         string
	To           string
	Direction    string
}

func ParseTwilioStatusCallback(r *http.Request) (TwilioStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioStatusForm{}, err
	}
	dur, _ := strconv.Atoi(r.PostFormValue("CallDuration"))
	if dur < 0 {
		dur = 0
	}
	return TwilioStatusForm{
		CallID:       r.URL.Query().Get("call_id"),
		CallSid:      r.PostFormValue("CallSid"),
		AccountSid:   r.PostFormValue("AccountSid"),
		CallStatus:   r.PostFormValue("CallStatus"),
		CallDuration: dur,
		From:         strings.TrimSpace(r.PostFormValue("From")),
		To:           strings.TrimSpace(r.PostFormValue("To")),
		Direction:    r.PostFormValue("Direction"),
	}, nil
}

func (f TwilioStatusForm) ToStatusUpdate() StatusUpdate {
	return StatusUpdate{
		CallID:          f.CallID,
		ProviderCallID:  f.CallSid,
		State:           ParseCallState(f.CallStatus),
		DurationSeconds: f.CallDuration,
	}
}

// TwilioRecordingForm is the recording status callback.
type TwilioRecordingForm struct {
	CallID            string
	CallSid           string
	RecordingSid      string
	RecordingURL      string
	RecordingStatus   string
	RecordingDuration int
}

func ParseTwilioRecordingCallback(r *http.Request) (TwilioRecordingForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioRecordingForm{}, err
	}
	dur, _ := strconv.Atoi(r.PostFormValue("RecordingDuration"))
	return TwilioRecordingForm{
		CallID:            r.URL.Query().Get("call_id"),
		CallSid:           r.PostFormValue("CallSid"),
		RecordingSid:      r.PostFormValue("RecordingSid"),
		RecordingURL:      r.PostFormValue("RecordingUrl"),
		RecordingStatus:   r.PostFormValue("RecordingStatus"),
		RecordingDuration: dur,
	}, nil
}

// TwilioSignatureHeader carries the request signature.
const TwilioSignatureHeader = "X-Twilio-Signature"

// ComputeTwilioSignature returns base64(HMAC-SHA1(authToken, url + sorted key/value pairs)).
func ComputeTwilioSignature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range params[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidTwilioSignature compares in constant time.
func ValidTwilioSignature(authToken, fullURL string, params url.Values, signature string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	expected := ComputeTwilioSignature(authToken, fullURL, params)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
