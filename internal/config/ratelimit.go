package config

import "time"

// RateLimitConfig describes a fixed-window throttle applied to a group of
// endpoints.  Requests are counted per client IP inside a window of the
// given duration; once Max is exceeded every further request in the same
// window is rejected with HTTP 429.
type RateLimitConfig struct {
    Enabled bool          // disables the limiter entirely when false
    Max     int           // maximum requests per window
    Window  time.Duration // window duration
    Prefix  string        // key namespace in Redis
}

// LoadLoginRateLimit returns the throttle for the login endpoint:
// 5 attempts per 15 minutes.  All attempts count, including successful
// logins, which deliberately blunts credential stuffing.
func LoadLoginRateLimit() RateLimitConfig {
    return RateLimitConfig{
        Enabled: envBool("RATE_LIMIT_ENABLED", true),
        Max:     envInt("LOGIN_RATE_LIMIT_MAX", 5),
        Window:  time.Duration(envInt("LOGIN_RATE_LIMIT_WINDOW_MIN", 15)) * time.Minute,
        Prefix:  "rl:login",
    }
}

// LoadResetRateLimit returns the throttle for password-reset requests:
// 3 per hour.
func LoadResetRateLimit() RateLimitConfig {
    return RateLimitConfig{
        Enabled: envBool("RATE_LIMIT_ENABLED", true),
        Max:     envInt("RESET_RATE_LIMIT_MAX", 3),
        Window:  time.Duration(envInt("RESET_RATE_LIMIT_WINDOW_MIN", 60)) * time.Minute,
        Prefix:  "rl:reset",
    }
}

// LoadAPIRateLimit returns the general API throttle: 100 requests per
// 15 minutes.  Health-check paths bypass this limiter.
func LoadAPIRateLimit() RateLimitConfig {
    return RateLimitConfig{
        Enabled: envBool("RATE_LIMIT_ENABLED", true),
        Max:     envInt("API_RATE_LIMIT_MAX", 100),
        Window:  time.Duration(envInt("API_RATE_LIMIT_WINDOW_MIN", 15)) * time.Minute,
        Prefix:  "rl:api",
    }
}
