package httpapi

import (
	"net/http"

	"voip-platform/internal/admin"
	"voip-platform/internal/audit"
	"voip-platform/internal/calls"
	"voip-platform/internal/payments"
	"voip-platform/internal/reporting"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Admin handlers sit behind rbac.RequireAdmin.

func actor(c *gin.Context) (audit.Actor, bool) {
	a, err := admin.ActorFromContext(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return audit.Actor{}, false
	}
	return a, true
}

func (h Handlers) AdminListUsers(c *gin.Context) {
	limit, offset := page(c)
	users, err := h.Admin.Users(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h Handlers) AdminDeleteUser(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.Admin.DeleteUser(c.Request.Context(), a, c.Param("user_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type addCreditsRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"money_gt0"`
	// Reference makes the credit idempotent across retries.
	Reference string `json:"reference" binding:"max=128"`
	Note      string `json:"note" binding:"max=500"`
}

func (h Handlers) AdminAddCredits(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req addCreditsRequest
	if !bindJSON(c, &req) {
		return
	}
	e, err := h.Admin.AddCredits(c.Request.Context(), a, c.Param("user_id"), req.Amount, req.Reference, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": e, "replayed": e.Replayed})
}

func (h Handlers) AdminListCalls(c *gin.Context) {
	limit, offset := page(c)
	f := calls.Filter{UserID: c.Query("user_id"), Limit: limit, Offset: offset}
	if raw := c.Query("status"); raw != "" {
		st, err := calls.ParseStatus(raw)
		if err != nil {
			badRequest(c, "unknown call status")
			return
		}
		f.Status = st
	}
	list, err := h.Admin.Calls(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": list})
}

func (h Handlers) AdminRefundCall(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	call, err := h.Admin.RefundCall(c.Request.Context(), a, c.Param("call_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h Handlers) AdminListPayments(c *gin.Context) {
	limit, offset := page(c)
	f := payments.Filter{UserID: c.Query("user_id"), Limit: limit, Offset: offset}
	if raw := c.Query("status"); raw != "" {
		st, err := payments.ParseStatus(raw)
		if err != nil {
			badRequest(c, "unknown payment status")
			return
		}
		f.Status = st
	}
	list, err := h.Admin.Payments(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": list})
}

func (h Handlers) AdminRefundPayment(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	p, err := h.Admin.RefundPayment(c.Request.Context(), a, c.Param("payment_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h Handlers) AdminListRates(c *gin.Context) {
	rates, err := h.Admin.Rates(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rates": rates})
}

type toggleRateRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h Handlers) AdminToggleRate(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req toggleRateRequest
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.Admin.ToggleRate(c.Request.Context(), a, c.Param("rate_id"), *req.Active)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h Handlers) AdminProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.Admin.Providers(c.Request.Context())})
}

// AdminDashboard takes optional RFC3339 from/to; both empty means the last 30 days.
func (h Handlers) AdminDashboard(c *gin.Context) {
	from, ok := queryTime(c, "from")
	if !ok {
		return
	}
	to, ok := queryTime(c, "to")
	if !ok {
		return
	}
	d, err := h.Admin.Dashboard(c.Request.Context(), reporting.TimeRange{From: from, To: to})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h Handlers) AdminAuditLog(c *gin.Context) {
	limit, offset := page(c)
	events, err := h.Admin.AuditLog(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
