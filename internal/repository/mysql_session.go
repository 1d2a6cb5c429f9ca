package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/humanet/auth-service/internal/model"
)

// SessionRepo is the MySQL-backed SessionStore.  Sessions live in the
// `sessions` table keyed by the refresh token's identifier; revoked raw
// tokens live in the separate `token_blacklist` table.  The two tables
// are independent on purpose: a token can be blacklisted after its
// session was already invalidated and vice versa.
type SessionRepo struct{ DB *sql.DB }

// NewSessionRepo wraps an open database handle.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

var _ SessionStore = (*SessionRepo)(nil)

const sessionColumns = "token_id,session_id,user_id,email,role,ip_address,user_agent,created_at,expires_at,last_activity,invalidated_at"

// Create inserts a new active session row.
func (r *SessionRepo) Create(ctx context.Context, s model.Session) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO sessions (token_id, session_id, user_id, email, role, ip_address, user_agent, created_at, expires_at, last_activity) VALUES (?,?,?,?,?,?,?,?,?,?)",
		s.TokenID, s.SessionID, s.UserID, s.Email, s.Role, s.IPAddress, s.UserAgent,
		s.CreatedAt, s.ExpiresAt, s.LastActivity)
	return err
}

// Get returns the session only while active and unexpired.
func (r *SessionRepo) Get(ctx context.Context, tokenID string) (model.Session, error) {
	s, err := scanSession(r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE token_id=? LIMIT 1", tokenID).Scan)
	if err == sql.ErrNoRows {
		return model.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, err
	}
	if s.State(time.Now().UTC()) != model.SessionActive {
		return model.Session{}, ErrSessionNotFound
	}
	return s, nil
}

// TouchActivity stamps the last-activity column.
func (r *SessionRepo) TouchActivity(ctx context.Context, tokenID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET last_activity=NOW() WHERE token_id=? AND invalidated_at IS NULL", tokenID)
	return err
}

// TouchActivityBySession stamps the last-activity column by session id,
// the correlation key carried in access tokens.
func (r *SessionRepo) TouchActivityBySession(ctx context.Context, sessionID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET last_activity=NOW() WHERE session_id=? AND invalidated_at IS NULL", sessionID)
	return err
}

// Invalidate marks one session inactive.
func (r *SessionRepo) Invalidate(ctx context.Context, tokenID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET invalidated_at=NOW() WHERE token_id=? AND invalidated_at IS NULL", tokenID)
	return err
}

// InvalidateAllForUser marks every active session of the user inactive.
func (r *SessionRepo) InvalidateAllForUser(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET invalidated_at=NOW() WHERE user_id=? AND invalidated_at IS NULL", userID)
	return err
}

// ActiveForUser lists the user's active sessions, most recent activity first.
func (r *SessionRepo) ActiveForUser(ctx context.Context, userID string) ([]model.Session, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE user_id=? AND invalidated_at IS NULL AND expires_at>NOW() ORDER BY last_activity DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// BlacklistToken records the raw token until its natural expiry.
// Re-blacklisting the same token is a no-op via the unique key.
func (r *SessionRepo) BlacklistToken(ctx context.Context, raw string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO token_blacklist (token, blacklisted_at, expires_at) VALUES (?,NOW(),?)",
		raw, expiresAt)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "1062") {
		return nil
	}
	return err
}

// IsTokenBlacklisted reports whether the raw token has been revoked.
func (r *SessionRepo) IsTokenBlacklisted(ctx context.Context, raw string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM token_blacklist WHERE token=? LIMIT 1", raw).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CleanupExpired deletes session and blacklist rows past their expiry.
func (r *SessionRepo) CleanupExpired(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at<NOW()"); err != nil {
		return err
	}
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM token_blacklist WHERE expires_at<NOW()")
	return err
}

func scanSession(scan func(dest ...any) error) (model.Session, error) {
	var (
		s           model.Session
		invalidated sql.NullTime
	)
	err := scan(&s.TokenID, &s.SessionID, &s.UserID, &s.Email, &s.Role,
		&s.IPAddress, &s.UserAgent, &s.CreatedAt, &s.ExpiresAt, &s.LastActivity, &invalidated)
	if err != nil {
		return model.Session{}, err
	}
	if invalidated.Valid {
		s.InvalidatedAt = &invalidated.Time
	}
	return s, nil
}
