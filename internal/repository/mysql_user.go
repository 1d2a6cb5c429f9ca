package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/humanet/auth-service/internal/model"
)

// UserRepo is the MySQL-backed UserStore.  It mirrors the `users` table;
// the password history is stored as a JSON array in a TEXT column.
type UserRepo struct{ DB *sql.DB }

// NewUserRepo wraps an open database handle.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var _ UserStore = (*UserRepo)(nil)

const userColumns = "id,email,name,role,password_hash,password_history,login_attempts,is_locked,last_login_at,password_changed_at,reset_token,reset_expires_at,created_at,updated_at"

// Create inserts a user row.  Duplicate emails surface as ErrEmailExists
// via the MySQL duplicate-key error code.
func (r *UserRepo) Create(ctx context.Context, u NewUser) (model.User, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	history, err := json.Marshal(u.PasswordHistory)
	if err != nil {
		return model.User{}, err
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO users (id, email, name, role, password_hash, password_history) VALUES (?,?,?,?,?,?)",
		u.ID, email, u.Name, u.Role, u.PasswordHash, string(history))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, err
	}
	return r.GetByID(ctx, u.ID)
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// UpdatePassword rotates hash and history and clears the lockout state in
// a single statement.
func (r *UserRepo) UpdatePassword(ctx context.Context, userID string, up PasswordUpdate) error {
	history, err := json.Marshal(up.History)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, password_history=?, password_changed_at=?, login_attempts=0, is_locked=0 WHERE id=?",
		up.Hash, string(history), up.ChangedAt, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// RecordLoginSuccess resets the attempt counter and stamps the login time.
func (r *UserRepo) RecordLoginSuccess(ctx context.Context, userID string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET login_attempts=0, is_locked=0, last_login_at=NOW() WHERE id=?", userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// RecordLoginFailure increments the counter and sets the lock in the same
// UPDATE, so two concurrent failures cannot both observe a pre-lock count.
func (r *UserRepo) RecordLoginFailure(ctx context.Context, userID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET login_attempts=login_attempts+1, is_locked=(is_locked OR login_attempts>=?) WHERE id=?",
		model.LockoutThreshold, userID)
	if err != nil {
		return false, err
	}
	if err := requireRow(res); err != nil {
		return false, err
	}
	var locked bool
	err = r.DB.QueryRowContext(ctx,
		"SELECT is_locked FROM users WHERE id=? LIMIT 1", userID).Scan(&locked)
	if err == sql.ErrNoRows {
		return false, ErrUserNotFound
	}
	return locked, err
}

// StoreResetToken overwrites the single reset-token slot.
func (r *UserRepo) StoreResetToken(ctx context.Context, userID, tok string, expiresAt time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET reset_token=?, reset_expires_at=? WHERE id=?", tok, expiresAt, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ClearResetToken empties the reset-token slot.
func (r *UserRepo) ClearResetToken(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET reset_token='', reset_expires_at=NULL WHERE id=?", userID)
	return err
}

// List returns every user row.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateProfile applies the administrative fields; empty values keep the
// current column via COALESCE-style guards.
func (r *UserRepo) UpdateProfile(ctx context.Context, userID string, up ProfileUpdate) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET name=IF(?='',name,?), role=IF(?='',role,?) WHERE id=?",
		up.Name, up.Name, up.Role, up.Role, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes the user row; the reset-token slot lives on the same row
// so deletion cascades by construction.
func (r *UserRepo) Delete(ctx context.Context, userID string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	u, err := scanUser(row.Scan)
	if err == sql.ErrNoRows {
		return model.User{}, ErrUserNotFound
	}
	return u, err
}

// scanUser reads a full user row through any Scan-shaped function, which
// lets single-row and multi-row queries share the column mapping.
func scanUser(scan func(dest ...any) error) (model.User, error) {
	var (
		u         model.User
		history   string
		lastLogin sql.NullTime
		pwChanged sql.NullTime
		resetTok  sql.NullString
		resetExp  sql.NullTime
	)
	err := scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &history,
		&u.LoginAttempts, &u.IsLocked, &lastLogin, &pwChanged, &resetTok, &resetExp,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	if history != "" {
		if err := json.Unmarshal([]byte(history), &u.PasswordHistory); err != nil {
			return model.User{}, err
		}
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	if pwChanged.Valid {
		u.PasswordChangedAt = &pwChanged.Time
	}
	if resetTok.Valid {
		u.ResetToken = resetTok.String
	}
	if resetExp.Valid {
		u.ResetExpiresAt = &resetExp.Time
	}
	return u, nil
}

// requireRow converts a zero-row UPDATE or DELETE into ErrUserNotFound.
// The connection is opened with clientFoundRows=true, so RowsAffected
// counts matched rows and a no-op UPDATE on an existing row still passes.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
