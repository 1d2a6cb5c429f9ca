package repository

import (
	"context"
	"time"

	"github.com/humanet/auth-service/internal/model"
)

// NewUser carries the fields required to insert an identity record.  The
// password hash and history are computed by the user directory before the
// record reaches a store.
type NewUser struct {
	ID              string
	Email           string
	Name            string
	Role            string
	PasswordHash    string
	PasswordHistory []string
}

// PasswordUpdate is the fixed set of fields mutated by a password
// rotation.  Applying it also clears the lockout state and the failed
// attempt counter.
type PasswordUpdate struct {
	Hash      string
	History   []string
	ChangedAt time.Time
}

// ProfileUpdate is the fixed set of fields mutable through the
// administrative profile operation.  Empty fields are left untouched.
type ProfileUpdate struct {
	Name string
	Role string
}

// UserStore persists identity records, login-attempt counters and the
// single-slot password-reset token per user.  Implementations must treat
// email case-insensitively by normalizing to lowercase.
type UserStore interface {
	// Create inserts a record, returning ErrEmailExists when the
	// normalized email is already taken.
	Create(ctx context.Context, u NewUser) (model.User, error)
	// GetByEmail returns the user with the normalized email or ErrUserNotFound.
	GetByEmail(ctx context.Context, email string) (model.User, error)
	// GetByID returns the user with the given id or ErrUserNotFound.
	GetByID(ctx context.Context, id string) (model.User, error)
	// UpdatePassword rotates the hash and history, stamps the change time
	// and clears the lockout state and attempt counter.
	UpdatePassword(ctx context.Context, userID string, up PasswordUpdate) error
	// RecordLoginSuccess resets the attempt counter, clears the lock and
	// stamps the last login time.
	RecordLoginSuccess(ctx context.Context, userID string) error
	// RecordLoginFailure increments the attempt counter and locks the
	// account in the same operation once the threshold is reached.  It
	// reports whether the account is now locked.
	RecordLoginFailure(ctx context.Context, userID string) (bool, error)
	// StoreResetToken saves the outstanding reset token, replacing any
	// prior one.
	StoreResetToken(ctx context.Context, userID, tok string, expiresAt time.Time) error
	// ClearResetToken removes the outstanding reset token, if any.
	ClearResetToken(ctx context.Context, userID string) error
	// List returns every identity record.
	List(ctx context.Context) ([]model.User, error)
	// UpdateProfile applies the administrative profile fields.
	UpdateProfile(ctx context.Context, userID string, up ProfileUpdate) error
	// Delete removes the record entirely, reset-token state included.
	Delete(ctx context.Context, userID string) error
}

// SessionStore persists one record per active login plus the independent
// token blacklist.  Both the session check and the blacklist check are
// required on every authenticated request, so a narrow propagation window
// on either side still fails closed.
type SessionStore interface {
	// Create inserts a new active session keyed uniquely by its token id.
	Create(ctx context.Context, s model.Session) error
	// Get returns the session only while it is active and unexpired;
	// otherwise ErrSessionNotFound.
	Get(ctx context.Context, tokenID string) (model.Session, error)
	// TouchActivity updates the last-activity timestamp by token id.
	// Best-effort: callers log failures and never block a request on them.
	TouchActivity(ctx context.Context, tokenID string) error
	// TouchActivityBySession updates the last-activity timestamp by the
	// session id carried in access tokens.  Same best-effort contract.
	TouchActivityBySession(ctx context.Context, sessionID string) error
	// Invalidate marks one session inactive.
	Invalidate(ctx context.Context, tokenID string) error
	// InvalidateAllForUser marks every active session of the user inactive.
	InvalidateAllForUser(ctx context.Context, userID string) error
	// ActiveForUser lists the user's active sessions, most recent
	// activity first.
	ActiveForUser(ctx context.Context, userID string) ([]model.Session, error)
	// BlacklistToken records a revoked raw token until its natural expiry.
	BlacklistToken(ctx context.Context, raw string, expiresAt time.Time) error
	// IsTokenBlacklisted reports whether the raw token has been revoked.
	IsTokenBlacklisted(ctx context.Context, raw string) (bool, error)
	// CleanupExpired deletes session and blacklist rows past their expiry.
	// Maintenance only, never part of the request path.
	CleanupExpired(ctx context.Context) error
}
