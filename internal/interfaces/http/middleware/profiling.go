package middleware

import (
	"context"
	"strings"

	"github.com/clinic/ledger/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// profilingSkipPaths carry no labels
var profilingSkipPaths = map[string]bool{
	"/health":        true,
	"/api/v1/health": true,
}

// Profiling tags CPU and allocation samples taken while a request runs with
// its method, route pattern and ledger resource. Disabled, it passes through.
func Profiling(enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if profilingSkipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}
		telemetry.WithProfilingLabels(c.Request.Context(), profilingLabels(c), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

func profilingLabels(c *gin.Context) map[string]string {
	route := c.FullPath()
	return map[string]string{
		telemetry.ProfilingLabelMethod:   c.Request.Method,
		telemetry.ProfilingLabelRoute:    route,
		telemetry.ProfilingLabelResource: resourceFromRoute(route),
	}
}

// resourceFromRoute is the first segment after /api/vN, e.g.
// "/api/v1/payment-plans/:id/summary" -> "payment-plans"
func resourceFromRoute(route string) string {
	for _, part := range strings.Split(route, "/") {
		if part == "" || part == "api" || isVersionSegment(part) || strings.HasPrefix(part, ":") {
			continue
		}
		return part
	}
	return ""
}

func isVersionSegment(s string) bool {
	if len(s) < 2 || (s[0] != 'v' && s[0] != 'V') {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
