package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/humanet/auth-service/internal/config"
)

// FixedWindow returns an Echo middleware that throttles requests per
// client IP using fixed windows: the first request in a window creates a
// counter with the window's TTL, later requests increment it, and once
// the count exceeds cfg.Max the request is rejected with 429 and a
// retryAfter hint in minutes.  Counting happens in Redis when a client is
// available so the window is shared across instances; without Redis an
// in-process counter map serves the single-node development case.  Paths
// listed in bypass (health checks) skip the limiter entirely.
func FixedWindow(cfg config.RateLimitConfig, rdb *redis.Client, bypass ...string) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	skip := make(map[string]bool, len(bypass))
	for _, p := range bypass {
		skip[p] = true
	}

	// INCR and EXPIRE must be atomic so two first-requests in a fresh
	// window cannot both skip the TTL.
	windowScript := redis.NewScript(`
        local key = KEYS[1]
        local ttl_seconds = tonumber(ARGV[1])

        local count = redis.call('INCR', key)
        if count == 1 then
            redis.call('EXPIRE', key, ttl_seconds)
        end
        return count
    `)

	fallback := newWindowCounter()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip[c.Path()] {
				return next(c)
			}

			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			key := cfg.Prefix + ":" + ip

			var count int64
			if rdb != nil {
				v, err := windowScript.Run(c.Request().Context(), rdb,
					[]string{key}, int64(cfg.Window/time.Second)).Result()
				if err != nil {
					// Redis trouble falls back to the local counter rather
					// than failing open.
					count = fallback.incr(key, cfg.Window)
				} else {
					count, _ = v.(int64)
				}
			} else {
				count = fallback.incr(key, cfg.Window)
			}

			remaining := int64(cfg.Max) - count
			if remaining < 0 {
				remaining = 0
			}
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(cfg.Max) {
				retryMin := int(math.Ceil(cfg.Window.Minutes()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(cfg.Window/time.Second)))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"success":    false,
					"message":    "too many requests, please try again later",
					"retryAfter": retryMin,
				})
			}
			return next(c)
		}
	}
}

// windowCounter is the in-process fallback: a mutex-guarded map of
// counters with their window reset times.
type windowCounter struct {
	mu      sync.Mutex
	windows map[string]*windowEntry
}

type windowEntry struct {
	count    int64
	resetsAt time.Time
}

func newWindowCounter() *windowCounter {
	return &windowCounter{windows: make(map[string]*windowEntry)}
}

func (w *windowCounter) incr(key string, window time.Duration) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	e, ok := w.windows[key]
	if !ok || now.After(e.resetsAt) {
		// A new window is the cheap moment to drop every stale entry,
		// otherwise the map grows with each distinct client IP ever seen.
		for k, old := range w.windows {
			if now.After(old.resetsAt) {
				delete(w.windows, k)
			}
		}
		e = &windowEntry{resetsAt: now.Add(window)}
		w.windows[key] = e
	}
	e.count++
	return e.count
}
