package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"voip-platform/internal/accounts"
	"voip-platform/internal/admin"
	"voip-platform/internal/auth"
	"voip-platform/internal/callerid"
	"voip-platform/internal/calls"
	"voip-platform/internal/payments"
	"voip-platform/internal/pricing"
	"voip-platform/internal/rbac"
	"voip-platform/internal/topup"
	"voip-platform/internal/wallet"
	"voip-platform/pkg/validation"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Accounts  *accounts.Service
	Wallet    *wallet.Service
	Rates     *pricing.Service
	Calls     *calls.Service
	Initiator *calls.Initiator
	CallerIDs *callerid.Service
	Topup     *topup.Policy
	Payments  *payments.Service
	Admin     *admin.Service

	// Currency labels balances in responses.
	Currency string
	// DevLogin enables POST /auth/token for local environments.
	DevLogin bool
}

// ClientIP stores gin's resolved client address on the request context for
// audit capture.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := admin.WithClientIP(c.Request.Context(), c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Email  string `json:"email" binding:"required,email"`
}

// Login issues a JWT pair for an identity asserted by the caller, creating
// the account on first use. Roles come from the stored account.
//
// NOTE: only mounted when DevLogin is set. Production identities are issued
// by the upstream identity provider with the same signing key.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil || !h.DevLogin {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.Accounts.Register(c.Request.Context(), req.UserID, req.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), u.ID, u.Email, rbac.RoleFor(u.IsAdmin))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Account ---

// Register creates the account for the authenticated identity. Repeat calls
// return the existing account.
func (h Handlers) Register(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	u, err := h.Accounts.Register(ctx, userID, auth.Email(ctx))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h Handlers) Me(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	u, err := h.Accounts.Get(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	bal, err := h.Wallet.GetBalance(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	u.Balance = bal
	c.JSON(http.StatusOK, u)
}

// --- Helpers ---

func currentUser(c *gin.Context) (string, bool) {
	id, err := auth.UserID(c.Request.Context())
	if err != nil || id == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return "", false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, validation.Translate(err).Error())
		return false
	}
	return true
}

// page reads limit/offset query params. Services clamp the limit.
func page(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	offset, _ = strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func queryTime(c *gin.Context, key string) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		badRequest(c, key+" must be an RFC3339 timestamp")
		return time.Time{}, false
	}
	return t, true
}
