package config // package config loads application configuration from environment variables

import (
    "log"      // log is used to report configuration errors and halt execution
    "os"       // os provides access to environment variables
    "strconv"  // strconv converts strings to other types
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints for durations
// and costs.  Access and refresh tokens are signed with different secrets
// so that one class of token can never be replayed as the other.
type Config struct {
    Env             string // application environment (e.g. "dev", "prod")
    Port            string // HTTP port to listen on
    DBUser          string // database username
    DBPass          string // database password (optional)
    DBHost          string // database host address
    DBPort          string // database port number
    DBName          string // database name
    DBTLSSkipVerify bool   // skip TLS certificate verification for local development
    AccessSecret    string // secret used to sign access and password-reset tokens
    RefreshSecret   string // secret used to sign refresh tokens
    AccessTTLHours  int    // access token time-to-live in hours
    RefreshTTLDays  int    // refresh token time-to-live in days
    ResetTTLMin     int    // password-reset token time-to-live in minutes
    BcryptCost      int    // bcrypt cost for password hashing
    ResetBaseURL    string // base URL used to build password-reset links
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Optional values
// fall back to the defaults used throughout the HR platform: 24 hour
// access tokens, 7 day refresh tokens, 1 hour reset tokens, bcrypt cost 12.
func Load() Config {
    return Config{
        Env:             getenv("APP_ENV", "dev"),             // environment (dev/test/prod)
        Port:            getenv("APP_PORT", "8080"),           // port to bind the HTTP server
        DBUser:          os.Getenv("DB_USER"),                 // database user (empty -> in-memory fallback)
        DBPass:          os.Getenv("DB_PASS"),                 // database password (empty allowed)
        DBHost:          getenv("DB_HOST", "localhost"),       // database host
        DBPort:          getenv("DB_PORT", "3306"),            // database port
        DBName:          getenv("DB_NAME", "humanet_auth"),    // database name
        DBTLSSkipVerify: envBool("DB_TLS_SKIP_VERIFY", false), // lenient TLS for local development
        AccessSecret:    must("ACCESS_TOKEN_SECRET"),          // signing secret for access/reset tokens
        RefreshSecret:   must("REFRESH_TOKEN_SECRET"),         // signing secret for refresh tokens
        AccessTTLHours:  envInt("ACCESS_TOKEN_TTL_HOURS", 24), // TTL for access tokens in hours
        RefreshTTLDays:  envInt("REFRESH_TOKEN_TTL_DAYS", 7),  // TTL for refresh tokens in days
        ResetTTLMin:     envInt("RESET_TOKEN_TTL_MIN", 60),    // TTL for password-reset tokens in minutes
        BcryptCost:      envInt("BCRYPT_COST", 12),            // bcrypt cost factor
        ResetBaseURL:    getenv("RESET_BASE_URL", "http://localhost:3000/reset-password"), // reset link base
    }
}

// IsProduction reports whether the service runs in the production
// environment.  Cookie hardening (secure flag, strict same-site) keys
// off this value.
func (c Config) IsProduction() bool { return c.Env == "prod" }

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// getenv returns the value of an environment variable or a default when
// the variable is unset or empty.
func getenv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

// envInt is like getenv() but converts the retrieved string into an
// integer, falling back to the default on parse failure.
func envInt(key string, def int) int {
    v := os.Getenv(key)
    if v == "" {
        return def
    }
    if n, err := strconv.Atoi(v); err == nil {
        return n
    }
    return def
}

// envBool interprets common truthy/falsy spellings of an environment
// variable, falling back to the default for anything unrecognized.
func envBool(key string, def bool) bool {
    v := os.Getenv(key)
    if v == "" {
        return def
    }
    switch v {
    case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
        return true
    case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
        return false
    }
    return def
}
