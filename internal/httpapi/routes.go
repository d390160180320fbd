package httpapi

import "github.com/gin-gonic/gin"

// RegisterUser mounts the authenticated user endpoints on g.
func RegisterUser(g *gin.RouterGroup, h Handlers) {
	g.POST("/me", h.Register)
	g.GET("/me", h.Me)

	g.GET("/balance", h.GetBalance)
	g.GET("/ledger", h.ListLedgerEntries)

	g.GET("/auto-topup", h.GetAutoTopup)
	g.PUT("/auto-topup", h.UpdateAutoTopup)

	g.POST("/calls", h.StartCall)
	g.GET("/calls", h.ListCalls)
	g.GET("/calls/:call_id", h.GetCall)

	g.POST("/caller-ids", h.RequestCallerID)
	g.GET("/caller-ids", h.ListCallerIDs)
	g.POST("/caller-ids/:caller_id/verify", h.SubmitCallerIDCode)
	g.DELETE("/caller-ids/:caller_id", h.DeleteCallerID)

	g.POST("/payments/checkout", h.CreateCheckout)
	g.GET("/payments", h.ListPayments)
	g.GET("/payments/:payment_id", h.GetPayment)
}

// RegisterAdmin mounts operator endpoints on g; the caller guards g.
func RegisterAdmin(g *gin.RouterGroup, h Handlers) {
	g.GET("/users", h.AdminListUsers)
	g.DELETE("/users/:user_id", h.AdminDeleteUser)
	g.POST("/users/:user_id/credits", h.AdminAddCredits)

	g.GET("/calls", h.AdminListCalls)
	g.POST("/calls/:call_id/refund", h.AdminRefundCall)

	g.GET("/payments", h.AdminListPayments)
	g.POST("/payments/:payment_id/refund", h.AdminRefundPayment)

	g.GET("/rates", h.AdminListRates)
	g.PATCH("/rates/:rate_id", h.AdminToggleRate)

	g.GET("/providers", h.AdminProviders)
	g.GET("/dashboard", h.AdminDashboard)
	g.GET("/audit", h.AdminAuditLog)
}
