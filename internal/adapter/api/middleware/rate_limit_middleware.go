package middleware

import (
	"log"
	"math"
	"strconv"

	"github.com/labstack/echo/v4"

	"guidebook/internal/infrastructure/ratelimit"
	"guidebook/pkg/errors"
	"guidebook/pkg/response"
)

// RateLimit throttles a route per caller. Authenticated requests are keyed
// by uid, anonymous ones (webhooks) by client IP.
func RateLimit(limiter *ratelimit.RateLimiter, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key, ok := c.Get("uid").(string)
			if !ok || key == "" {
				key = "ip:" + c.RealIP()
			}

			allowed, wait := limiter.Allow(key, action)
			if !allowed {
				log.Printf("RATE LIMIT: Blocked %s on %s (retry in %v)", key, action, wait)
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				return response.Error(c, errors.TooManyRequests("Rate limit exceeded"))
			}

			return next(c)
		}
	}
}
