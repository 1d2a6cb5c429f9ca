package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanet/auth-service/internal/model"
)

func newTestUser(t *testing.T, store UserStore, email string) model.User {
	t.Helper()
	u, err := store.Create(context.Background(), NewUser{
		ID:              "id-" + email,
		Email:           email,
		Name:            "Test User",
		Role:            model.RoleEmployee,
		PasswordHash:    "hash",
		PasswordHistory: []string{"hash"},
	})
	require.NoError(t, err)
	return u
}

func TestMemoryUserCreateInsertOnly(t *testing.T) {
	store := NewMemoryUserStore()
	newTestUser(t, store, "hr@humanet.com")

	_, err := store.Create(context.Background(), NewUser{
		ID:    "other",
		Email: "HR@Humanet.com", // normalization makes this a duplicate
	})
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestMemoryUserEmailNormalization(t *testing.T) {
	store := NewMemoryUserStore()
	created := newTestUser(t, store, "HR@Humanet.com")
	assert.Equal(t, "hr@humanet.com", created.Email)

	got, err := store.GetByEmail(context.Background(), "  hr@HUMANET.com ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = store.GetByEmail(context.Background(), "nobody@humanet.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryUserLockoutThreshold(t *testing.T) {
	store := NewMemoryUserStore()
	u := newTestUser(t, store, "hr@humanet.com")
	ctx := context.Background()

	for i := 1; i < model.LockoutThreshold; i++ {
		locked, err := store.RecordLoginFailure(ctx, u.ID)
		require.NoError(t, err)
		assert.False(t, locked, "attempt %d should not lock", i)
	}
	locked, err := store.RecordLoginFailure(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, locked)

	got, err := store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsLocked)
	assert.Equal(t, model.LockoutThreshold, got.LoginAttempts)
}

func TestMemoryUserLoginSuccessResetsCounters(t *testing.T) {
	store := NewMemoryUserStore()
	u := newTestUser(t, store, "hr@humanet.com")
	ctx := context.Background()

	for i := 0; i < model.LockoutThreshold; i++ {
		_, err := store.RecordLoginFailure(ctx, u.ID)
		require.NoError(t, err)
	}
	require.NoError(t, store.RecordLoginSuccess(ctx, u.ID))

	got, err := store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.IsLocked)
	assert.Zero(t, got.LoginAttempts)
	assert.NotNil(t, got.LastLoginAt)
}

func TestMemoryUserUpdatePasswordClearsLockout(t *testing.T) {
	store := NewMemoryUserStore()
	u := newTestUser(t, store, "hr@humanet.com")
	ctx := context.Background()

	for i := 0; i < model.LockoutThreshold; i++ {
		_, err := store.RecordLoginFailure(ctx, u.ID)
		require.NoError(t, err)
	}

	changed := time.Now().UTC()
	require.NoError(t, store.UpdatePassword(ctx, u.ID, PasswordUpdate{
		Hash:      "newhash",
		History:   []string{"newhash", "hash"},
		ChangedAt: changed,
	}))

	got, err := store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.IsLocked)
	assert.Zero(t, got.LoginAttempts)
	assert.Equal(t, "newhash", got.PasswordHash)
	assert.Equal(t, []string{"newhash", "hash"}, got.PasswordHistory)
	require.NotNil(t, got.PasswordChangedAt)
}

func TestMemoryUserResetTokenSingleSlot(t *testing.T) {
	store := NewMemoryUserStore()
	u := newTestUser(t, store, "hr@humanet.com")
	ctx := context.Background()
	exp := time.Now().UTC().Add(time.Hour)

	require.NoError(t, store.StoreResetToken(ctx, u.ID, "tok-1", exp))
	require.NoError(t, store.StoreResetToken(ctx, u.ID, "tok-2", exp))

	got, err := store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got.ResetToken)

	require.NoError(t, store.ClearResetToken(ctx, u.ID))
	got, err = store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ResetToken)
	assert.Nil(t, got.ResetExpiresAt)
}

func TestMemoryUserUpdateProfile(t *testing.T) {
	store := NewMemoryUserStore()
	u := newTestUser(t, store, "hr@humanet.com")
	ctx := context.Background()

	require.NoError(t, store.UpdateProfile(ctx, u.ID, ProfileUpdate{Name: "Renamed", Role: model.RoleHR}))
	got, err := store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, model.RoleHR, got.Role)

	// Empty fields keep the current values.
	require.NoError(t, store.UpdateProfile(ctx, u.ID, ProfileUpdate{Role: model.RoleAdmin}))
	got, err = store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, model.RoleAdmin, got.Role)

	err = store.UpdateProfile(ctx, "missing", ProfileUpdate{Name: "X"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryUserDelete(t *testing.T) {
	store := NewMemoryUserStore()
	u := newTestUser(t, store, "hr@humanet.com")
	ctx := context.Background()

	require.NoError(t, store.Delete(ctx, u.ID))
	_, err := store.GetByID(ctx, u.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = store.GetByEmail(ctx, "hr@humanet.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func newTestSession(userID, tokenID, sessionID string, expires time.Time) model.Session {
	now := time.Now().UTC()
	return model.Session{
		TokenID:      tokenID,
		SessionID:    sessionID,
		UserID:       userID,
		Email:        "hr@humanet.com",
		Role:         model.RoleHR,
		IPAddress:    "127.0.0.1",
		UserAgent:    "test",
		CreatedAt:    now,
		ExpiresAt:    expires,
		LastActivity: now,
	}
}

func TestMemorySessionLifecycle(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	exp := time.Now().UTC().Add(time.Hour)

	require.NoError(t, store.Create(ctx, newTestSession("u-1", "tok-1", "sess-1", exp)))

	got, err := store.Get(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, got.State(time.Now().UTC()))

	require.NoError(t, store.Invalidate(ctx, "tok-1"))
	_, err = store.Get(ctx, "tok-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemorySessionExpiredNotQueryable(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTestSession("u-1", "tok-1", "sess-1", time.Now().UTC().Add(-time.Minute))))
	_, err := store.Get(ctx, "tok-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemorySessionInvalidateAllForUser(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	exp := time.Now().UTC().Add(time.Hour)

	require.NoError(t, store.Create(ctx, newTestSession("u-1", "tok-1", "sess-1", exp)))
	require.NoError(t, store.Create(ctx, newTestSession("u-1", "tok-2", "sess-2", exp)))
	require.NoError(t, store.Create(ctx, newTestSession("u-2", "tok-3", "sess-3", exp)))

	require.NoError(t, store.InvalidateAllForUser(ctx, "u-1"))

	_, err := store.Get(ctx, "tok-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Get(ctx, "tok-2")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Get(ctx, "tok-3")
	assert.NoError(t, err)
}

func TestMemorySessionActiveForUserSorted(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	exp := time.Now().UTC().Add(time.Hour)

	older := newTestSession("u-1", "tok-1", "sess-1", exp)
	older.LastActivity = time.Now().UTC().Add(-time.Hour)
	newer := newTestSession("u-1", "tok-2", "sess-2", exp)

	require.NoError(t, store.Create(ctx, older))
	require.NoError(t, store.Create(ctx, newer))

	got, err := store.ActiveForUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "sess-2", got[0].SessionID)
	assert.Equal(t, "sess-1", got[1].SessionID)
}

func TestMemorySessionTouchActivity(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	exp := time.Now().UTC().Add(time.Hour)

	s := newTestSession("u-1", "tok-1", "sess-1", exp)
	s.LastActivity = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Create(ctx, s))

	require.NoError(t, store.TouchActivityBySession(ctx, "sess-1"))
	got, err := store.Get(ctx, "tok-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), got.LastActivity, time.Minute)

	// Touching an unknown id is a no-op, never an error.
	assert.NoError(t, store.TouchActivity(ctx, "missing"))
	assert.NoError(t, store.TouchActivityBySession(ctx, "missing"))
}

func TestMemoryBlacklist(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	ok, err := store.IsTokenBlacklisted(ctx, "raw-token")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.BlacklistToken(ctx, "raw-token", time.Now().UTC().Add(time.Hour)))
	ok, err = store.IsTokenBlacklisted(ctx, "raw-token")
	require.NoError(t, err)
	assert.True(t, ok)

	// Idempotent re-blacklisting.
	assert.NoError(t, store.BlacklistToken(ctx, "raw-token", time.Now().UTC().Add(time.Hour)))
}

func TestMemoryCleanupExpired(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)

	require.NoError(t, store.Create(ctx, newTestSession("u-1", "tok-old", "sess-old", past)))
	require.NoError(t, store.Create(ctx, newTestSession("u-1", "tok-new", "sess-new", future)))
	require.NoError(t, store.BlacklistToken(ctx, "old-token", past))
	require.NoError(t, store.BlacklistToken(ctx, "new-token", future))

	require.NoError(t, store.CleanupExpired(ctx))

	_, err := store.Get(ctx, "tok-new")
	assert.NoError(t, err)
	ok, err := store.IsTokenBlacklisted(ctx, "old-token")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = store.IsTokenBlacklisted(ctx, "new-token")
	require.NoError(t, err)
	assert.True(t, ok)
}
