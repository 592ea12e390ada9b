package middleware

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// HeaderConsoleKey carries the per-process key the built-in console presents
// when it calls the co-located evaluation API.
const HeaderConsoleKey = "X-Console-Key"

// RateLimit creates a per-caller rate limiter. Authenticated callers are keyed
// by token subject, anonymous ones by IP. Requests for which skip returns true
// are not counted.
func RateLimit(identifier string, max int, window time.Duration, respond ErrorResponder, skip func(c *fiber.Ctx) bool) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	cfg := limiter.Config{
		Next:       skip,
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			caller, _ := c.Locals("user_id").(string)
			if caller == "" {
				caller = c.IP()
			}
			return fmt.Sprintf("%s:%s", identifier, caller)
		},
	}
	if respond != nil {
		cfg.LimitReached = func(c *fiber.Ctx) error {
			return respond(c, fiber.StatusTooManyRequests, "too many requests, please retry later")
		}
	}

	return limiter.New(cfg)
}

// ConsoleCaller reports whether the request presents key in HeaderConsoleKey.
// An empty key matches nothing.
func ConsoleCaller(key string) func(c *fiber.Ctx) bool {
	if key == "" {
		return nil
	}
	expected := []byte(key)
	return func(c *fiber.Ctx) bool {
		presented := c.Get(HeaderConsoleKey)
		return presented != "" && subtle.ConstantTimeCompare([]byte(presented), expected) == 1
	}
}
