// 包 middleware：入口限流
package middleware

import (
	"net/http"

	"geodis/internal/logger"
	"geodis/internal/metrics"

	"golang.org/x/time/rate"
)

// RateLimit：令牌桶限流，容量与每秒补充量均为 qps
// 约束：不排队，超限直接返回 429；qps <= 0 时不限流
func RateLimit(qps int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if qps <= 0 {
			return next
		}
		lim := rate.NewLimiter(rate.Limit(qps), qps)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !lim.Allow() {
				metrics.RateLimitedTotal.Inc()
				logger.L().Debug("rate_limited", "path", r.URL.Path, "ip", r.RemoteAddr)
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Wrap：按配置开关包裹限流
func Wrap(next http.Handler, enabled bool, qps int) http.Handler {
	if !enabled {
		return next
	}
	return RateLimit(qps)(next)
}
