package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	kycRatePrefix    = "rl:kyc:"
	kycRateWindow    = time.Minute
	defaultKYCPerMin = 3
)

// KYCSubmitRateLimit caps verification submissions per user per minute.
// The limiter fails open when Redis is absent or erroring.
func KYCSubmitRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = defaultKYCPerMin
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		subject := c.Params("userId")
		if subject == "" {
			subject = c.IP()
		}
		key := kycRatePrefix + subject

		count, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			logger.Warn("kyc rate limit unavailable", slog.String("key", key), slog.Any("error", err))
			return c.Next()
		}
		if count == 1 {
			cache.Expire(c.UserContext(), key, kycRateWindow)
		}
		if count > int64(maxPerMin) {
			retry := kycRateWindow
			if ttl, err := cache.TTL(c.UserContext(), key).Result(); err == nil && ttl > 0 {
				retry = ttl
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retry.Round(time.Second)/time.Second)))
			return fiber.NewError(http.StatusTooManyRequests, "too many verification attempts, try again later")
		}
		return c.Next()
	}
}
