package telephony

import (
	"context"
	"net/http"

	"voip-platform/internal/apperr"
	"voip-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// StatusSink receives provider call events. Implemented by the call lifecycle.
type StatusSink interface {
	Apply(ctx context.Context, up StatusUpdate) error
	AttachRecording(ctx context.Context, callID, providerCallID, recordingURL string) error
}

// VoiceResolver decides how an answered call is connected.
type VoiceResolver interface {
	DialTarget(ctx context.Context, callID, providerCallID string) (DialTarget, error)
}

// TwilioWebhookHandler converts Twilio webhooks to internal types, delegates
// to the call lifecycle, and writes TwiML.
//
// No business logic here.
type TwilioWebhookHandler struct {
	Calls StatusSink
	Voice VoiceResolver

	AuthToken          string
	PublicBaseURL      string
	ValidateSignatures bool
}

// VerifySignature rejects requests without a valid X-Twilio-Signature.
func (h TwilioWebhookHandler) VerifySignature() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.ValidateSignatures {
			c.Next()
			return
		}
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
			return
		}
		fullURL := h.PublicBaseURL + c.Request.URL.RequestURI()
		if !ValidTwilioSignature(h.AuthToken, fullURL, c.Request.PostForm, c.GetHeader(TwilioSignatureHeader)) {
			logger.FromGin(c).Warn("twilio signature rejected", "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}

func (h TwilioWebhookHandler) HandleVoice(c *gin.Context) {
	log := logger.FromGin(c)

	if err := c.Request.ParseForm(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	callID := c.Query("call_id")
	callSid := c.Request.PostFormValue("CallSid")

	target, err := h.Voice.DialTarget(c.Request.Context(), callID, callSid)
	var twiml string
	if err != nil {
		log.Warn("voice webhook for unknown call", "call_id", callID, "call_sid", callSid, "err", err)
		twiml, err = RenderHangup()
	} else {
		twiml, err = RenderDial(target)
	}
	if err != nil {
		log.Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}

	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}

func (h TwilioWebhookHandler) HandleStatus(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseTwilioStatusCallback(c.Request)
	if err != nil {
		log.Warn("twilio status parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	up := form.ToStatusUpdate()
	if up.State == "" {
		log.Warn("twilio status unknown", "call_sid", form.CallSid, "status", form.CallStatus)
		c.Status(http.StatusNoContent)
		return
	}

	if err := h.Calls.Apply(c.Request.Context(), up); err != nil {
		h.fail(c, "status callback", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h TwilioWebhookHandler) HandleRecording(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseTwilioRecordingCallback(c.Request)
	if err != nil {
		log.Warn("twilio recording parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if form.RecordingStatus != "" && form.RecordingStatus != "completed" {
		c.Status(http.StatusNoContent)
		return
	}
	if err := h.Calls.AttachRecording(c.Request.Context(), form.CallID, form.CallSid, form.RecordingURL); err != nil {
		h.fail(c, "recording callback", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h TwilioWebhookHandler) fail(c *gin.Context, what string, err error) {
	log := logger.FromGin(c)
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		log.Warn(what+" for unknown call", "err", err)
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown call"})
	case apperr.KindInvalidState, apperr.KindInvalidArgument:
		log.Warn(what+" rejected", "err", err)
		c.Status(http.StatusNoContent)
	default:
		log.Error(what+" failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
