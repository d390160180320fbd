package httpapi

import (
	"context"
	"net/http"
	"sort"
	"time"

	"voip-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Check is one readiness dependency, e.g. a database ping.
type Check func(ctx context.Context) error

func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz runs every check under timeout and reports 503 if any fails.
func Readyz(checks map[string]Check, timeout time.Duration) gin.HandlerFunc {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				logger.FromGin(c).Warn("readiness check failed", "check", name, "err", err)
				results[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		c.JSON(status, gin.H{"checks": results})
	}
}
