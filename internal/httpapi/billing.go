package httpapi

import (
	"net/http"

	"voip-platform/internal/accounts"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// --- Wallet ---

func (h Handlers) GetBalance(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	bal, err := h.Wallet.GetBalance(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": bal.StringFixed(2), "currency": h.Currency})
}

func (h Handlers) ListLedgerEntries(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, _ := page(c)
	entries, err := h.Wallet.ListEntries(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// --- Rates ---

// LookupRates lists active rates for a caller ID country and, when number is
// given, the rate a call to it would use.
func (h Handlers) LookupRates(c *gin.Context) {
	country := c.DefaultQuery("caller_id_country", "US")
	res, err := h.Rates.Lookup(c.Request.Context(), country, c.Query("number"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Auto top-up ---

type autoTopupRequest struct {
	Enabled         bool            `json:"enabled"`
	Threshold       decimal.Decimal `json:"threshold" binding:"money_gte0"`
	ReplenishAmount decimal.Decimal `json:"replenish_amount" binding:"money_gte0"`
}

func (h Handlers) GetAutoTopup(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	a, err := h.Topup.Settings(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h Handlers) UpdateAutoTopup(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req autoTopupRequest
	if !bindJSON(c, &req) {
		return
	}
	a, err := h.Topup.UpdateSettings(c.Request.Context(), userID, accounts.AutoTopup{
		Enabled:         req.Enabled,
		Threshold:       req.Threshold,
		ReplenishAmount: req.ReplenishAmount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// --- Payments ---

type checkoutRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"money_gt0"`
}

// CreateCheckout starts a hosted checkout; the ledger is credited when the
// provider webhook confirms payment.
func (h Handlers) CreateCheckout(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req checkoutRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.Payments.CreateCheckout(c.Request.Context(), userID, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h Handlers) ListPayments(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, offset := page(c)
	list, err := h.Payments.ListForUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": list})
}

func (h Handlers) GetPayment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	p, err := h.Payments.GetForUser(c.Request.Context(), userID, c.Param("payment_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
