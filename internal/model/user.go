package model

import "time"

// Roles recognized by the HR platform.  The role is embedded in issued
// tokens and checked by the role middleware on gated endpoints.
const (
    RoleAdmin     = "admin"
    RoleHR        = "hr"
    RoleEmployee  = "employee"
    RoleCandidate = "candidate"
)

// ValidRole reports whether the value is one of the recognized roles.
func ValidRole(role string) bool {
    switch role {
    case RoleAdmin, RoleHR, RoleEmployee, RoleCandidate:
        return true
    }
    return false
}

// PasswordHistoryLimit bounds how many prior password hashes are retained
// per user for the reuse check.
const PasswordHistoryLimit = 3

// LockoutThreshold is the number of consecutive failed logins after which
// an account is locked.
const LockoutThreshold = 5

// User represents an identity record as stored in the `users` table.
// Each field corresponds to a column.  The json tags are omitted here
// because these structs are used internally by the repository layer;
// handlers define separate sanitized response types.
//
// Fields:
//  ID                – unique user identifier (UUID string).
//  Email             – unique email address, stored lowercase.
//  Name              – display name.
//  Role              – one of the Role* constants.
//  PasswordHash      – bcrypt hashed password.
//  PasswordHistory   – most-recent-first prior hashes, capped at PasswordHistoryLimit.
//  LoginAttempts     – consecutive failed login count, reset on success.
//  IsLocked          – set once LoginAttempts reaches LockoutThreshold.
//  LastLoginAt       – timestamp of the last successful login (nil if never).
//  PasswordChangedAt – timestamp of the last password rotation (nil if never).
//  ResetToken        – outstanding password-reset token, single slot (empty if none).
//  ResetExpiresAt    – expiry of the outstanding reset token.
//  CreatedAt         – timestamp of creation.
//  UpdatedAt         – timestamp of last update.
type User struct {
    ID                string
    Email             string
    Name              string
    Role              string
    PasswordHash      string
    PasswordHistory   []string
    LoginAttempts     int
    IsLocked          bool
    LastLoginAt       *time.Time
    PasswordChangedAt *time.Time
    ResetToken        string
    ResetExpiresAt    *time.Time
    CreatedAt         time.Time
    UpdatedAt         time.Time
}

// SessionState enumerates the lifecycle of a login session.  A session is
// created Active, moves to Invalidated on logout / logout-all / password
// reset, and is Expired once its TTL elapses.  Authentication requires the
// single Active state instead of checking a flag and an expiry separately.
type SessionState string

const (
    SessionActive      SessionState = "active"
    SessionInvalidated SessionState = "invalidated"
    SessionExpired     SessionState = "expired"
)

// Session models an entry in the `sessions` table.  One row exists per
// issued refresh token; the row is keyed by the token's embedded
// identifier so a refresh token maps directly to its session.
//
// Fields:
//  TokenID       – unique identifier embedded in the refresh token.
//  SessionID     – correlates the access/refresh pair minted at one login.
//  UserID        – owner of the session.
//  Email         – owner email at login time.
//  Role          – owner role at login time.
//  IPAddress     – client address recorded at login.
//  UserAgent     – client user agent recorded at login.
//  CreatedAt     – when the session was created.
//  ExpiresAt     – natural expiry, mirrors the refresh token TTL.
//  LastActivity  – touched on every authenticated request.
//  InvalidatedAt – when the session was revoked (nil while active).
type Session struct {
    TokenID       string
    SessionID     string
    UserID        string
    Email         string
    Role          string
    IPAddress     string
    UserAgent     string
    CreatedAt     time.Time
    ExpiresAt     time.Time
    LastActivity  time.Time
    InvalidatedAt *time.Time
}

// State derives the lifecycle state of the session at the given instant.
func (s Session) State(now time.Time) SessionState {
    if s.InvalidatedAt != nil {
        return SessionInvalidated
    }
    if now.After(s.ExpiresAt) {
        return SessionExpired
    }
    return SessionActive
}

// BlacklistedToken models an entry in the `token_blacklist` table.  A
// token on the list must be rejected for its entire natural lifetime even
// though its signature still verifies.  Rows are removed by the periodic
// sweep once ExpiresAt has passed.
type BlacklistedToken struct {
    Token         string
    BlacklistedAt time.Time
    ExpiresAt     time.Time
}
