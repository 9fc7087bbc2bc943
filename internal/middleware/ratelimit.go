package middleware

import (
	"context"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/buygag/claimdesk/internal/apperr"
	"github.com/buygag/claimdesk/internal/ratelimit"
)

// Limiter is satisfied by *ratelimit.Limiter.
type Limiter interface {
	CheckAndRecord(ctx context.Context, clientKey string) ratelimit.Decision
}

// RateLimit throttles a route group per client IP. Denials answer 429 with
// Retry-After and the rate_limited reason.
func RateLimit(limiter Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		decision := limiter.CheckAndRecord(c.UserContext(), c.IP())
		if decision.Allowed {
			return c.Next()
		}
		limited := apperr.RateLimited(decision.RetryAfter)
		if decision.RetryAfter > 0 {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
		}
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"ok":      false,
			"reason":  limited.Reason,
			"message": limited.Message,
		})
	}
}
