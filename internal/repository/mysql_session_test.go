package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanet/auth-service/internal/model"
)

func newSessionRepoMock(t *testing.T) (*SessionRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSessionRepo(db), mock
}

func sessionRow(expires time.Time, invalidated *time.Time) *sqlmock.Rows {
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"token_id", "session_id", "user_id", "email", "role",
		"ip_address", "user_agent", "created_at", "expires_at", "last_activity", "invalidated_at",
	})
	if invalidated != nil {
		rows.AddRow("tok-1", "sess-1", "u-1", "hr@humanet.com", model.RoleHR,
			"127.0.0.1", "test", now, expires, now, *invalidated)
	} else {
		rows.AddRow("tok-1", "sess-1", "u-1", "hr@humanet.com", model.RoleHR,
			"127.0.0.1", "test", now, expires, now, nil)
	}
	return rows
}

func TestSessionRepoGetActive(t *testing.T) {
	repo, mock := newSessionRepoMock(t)

	mock.ExpectQuery("SELECT .* FROM sessions WHERE token_id=\\?").
		WithArgs("tok-1").
		WillReturnRows(sessionRow(time.Now().UTC().Add(time.Hour), nil))

	s, err := repo.Get(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", s.SessionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepoGetInvalidated(t *testing.T) {
	repo, mock := newSessionRepoMock(t)

	inv := time.Now().UTC()
	mock.ExpectQuery("SELECT .* FROM sessions WHERE token_id=\\?").
		WithArgs("tok-1").
		WillReturnRows(sessionRow(time.Now().UTC().Add(time.Hour), &inv))

	_, err := repo.Get(context.Background(), "tok-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepoGetExpired(t *testing.T) {
	repo, mock := newSessionRepoMock(t)

	mock.ExpectQuery("SELECT .* FROM sessions WHERE token_id=\\?").
		WithArgs("tok-1").
		WillReturnRows(sessionRow(time.Now().UTC().Add(-time.Minute), nil))

	_, err := repo.Get(context.Background(), "tok-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepoGetMissing(t *testing.T) {
	repo, mock := newSessionRepoMock(t)

	mock.ExpectQuery("SELECT .* FROM sessions WHERE token_id=\\?").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepoInvalidateAllForUser(t *testing.T) {
	repo, mock := newSessionRepoMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET invalidated_at=NOW() WHERE user_id=? AND invalidated_at IS NULL")).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.InvalidateAllForUser(context.Background(), "u-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepoBlacklist(t *testing.T) {
	repo, mock := newSessionRepoMock(t)
	exp := time.Now().UTC().Add(time.Hour)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_blacklist")).
		WithArgs("raw-token", exp).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.BlacklistToken(context.Background(), "raw-token", exp))

	// Duplicate insert is swallowed: the token is already revoked.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_blacklist")).
		WithArgs("raw-token", exp).
		WillReturnError(&mysqlError{msg: "Error 1062 (23000): Duplicate entry"})
	require.NoError(t, repo.BlacklistToken(context.Background(), "raw-token", exp))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM token_blacklist WHERE token=?")).
		WithArgs("raw-token").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	ok, err := repo.IsTokenBlacklisted(context.Background(), "raw-token")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM token_blacklist WHERE token=?")).
		WithArgs("other").
		WillReturnError(sql.ErrNoRows)
	ok, err = repo.IsTokenBlacklisted(context.Background(), "other")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepoCleanupExpired(t *testing.T) {
	repo, mock := newSessionRepoMock(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE expires_at<NOW()")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM token_blacklist WHERE expires_at<NOW()")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CleanupExpired(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
