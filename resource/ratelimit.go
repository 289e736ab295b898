package resource

import "golang.org/x/time/rate"

// newRateLimiter wraps golang.org/x/time/rate.Limiter as a rateWaiter, the
// same token-bucket pattern the pack uses to pace outbound LLM requests
// (ahrav-go-gavel's infrastructure/llm/middleware_rate_limiter.go), applied
// here to pool acquires instead (PoolConfig.RateLimit, SPEC_FULL.md DOMAIN
// STACK).
func newRateLimiter(requestsPerSecond float64, burst int) rateWaiter {
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}
