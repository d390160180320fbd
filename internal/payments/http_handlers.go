package payments

import (
	"context"
	"io"
	"net/http"

	"voip-platform/internal/apperr"
	"voip-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 64 << 10

// WebhookSink applies authenticated provider callbacks.
type WebhookSink interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// WebhookHandler receives payment provider callbacks. Unknown payments are
// acknowledged so the provider stops retrying; storage errors return 500 so
// it retries.
type WebhookHandler struct {
	Payments WebhookSink
}

func (h WebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	err = h.Payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err == nil {
		c.Status(http.StatusOK)
		return
	}
	switch apperr.KindOf(err) {
	case apperr.KindUnauthorized:
		log.Warn("payment webhook signature rejected", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
	case apperr.KindInvalidArgument:
		log.Warn("malformed payment webhook", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": apperr.Message(err)})
	case apperr.KindNotFound:
		log.Warn("payment webhook for unknown payment", "err", err)
		c.Status(http.StatusOK)
	default:
		log.Error("payment webhook failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// EventSink applies decoded provider events.
type EventSink interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// SandboxCheckoutHandler stands in for the hosted checkout page of the
// sandbox provider: visiting it pays the checkout. Never mount in production.
type SandboxCheckoutHandler struct {
	Payments    EventSink
	RedirectURL string
}

func (h SandboxCheckoutHandler) Complete(c *gin.Context) {
	id := c.Param("payment_id")
	err := h.Payments.HandleEvent(c.Request.Context(), Event{
		ID:                "evt_sandbox_" + id,
		Type:              EventCheckoutCompleted,
		PaymentID:         id,
		SessionID:         "cs_sandbox_" + id,
		ProviderPaymentID: "pi_sandbox_" + id,
		CustomerID:        "cus_sandbox",
		PaymentMethodID:   "pm_sandbox",
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown payment"})
			return
		}
		logger.FromGin(c).Error("sandbox checkout failed", "payment_id", id, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if h.RedirectURL != "" {
		c.Redirect(http.StatusSeeOther, h.RedirectURL)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paid", "payment_id": id})
}
