package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/humanet/auth-service/internal/model"
)

// MemoryUserStore is the in-process UserStore fallback used when no
// database is configured.  State is not persisted across restarts, which
// is acceptable for single-node development only.  All maps are guarded
// by one RWMutex since request handlers run concurrently.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]*model.User
	byEmail map[string]string // normalized email -> id
}

// NewMemoryUserStore returns an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[string]*model.User),
		byEmail: make(map[string]string),
	}
}

var _ UserStore = (*MemoryUserStore)(nil)

func (m *MemoryUserStore) Create(_ context.Context, u NewUser) (model.User, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[email]; ok {
		return model.User{}, ErrEmailExists
	}
	now := time.Now().UTC()
	rec := &model.User{
		ID:              u.ID,
		Email:           email,
		Name:            u.Name,
		Role:            u.Role,
		PasswordHash:    u.PasswordHash,
		PasswordHistory: append([]string(nil), u.PasswordHistory...),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.byID[u.ID] = rec
	m.byEmail[email] = u.ID
	return *rec, nil
}

func (m *MemoryUserStore) GetByEmail(_ context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[email]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return cloneUser(m.byID[id]), nil
}

func (m *MemoryUserStore) GetByID(_ context.Context, id string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[id]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return cloneUser(rec), nil
}

func (m *MemoryUserStore) UpdatePassword(_ context.Context, userID string, up PasswordUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	changed := up.ChangedAt
	rec.PasswordHash = up.Hash
	rec.PasswordHistory = append([]string(nil), up.History...)
	rec.PasswordChangedAt = &changed
	rec.LoginAttempts = 0
	rec.IsLocked = false
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryUserStore) RecordLoginSuccess(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	now := time.Now().UTC()
	rec.LoginAttempts = 0
	rec.IsLocked = false
	rec.LastLoginAt = &now
	rec.UpdatedAt = now
	return nil
}

// RecordLoginFailure checks the incremented count against the threshold
// under the write lock, mirroring the single-statement behavior of the
// MySQL store.
func (m *MemoryUserStore) RecordLoginFailure(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[userID]
	if !ok {
		return false, ErrUserNotFound
	}
	rec.LoginAttempts++
	if rec.LoginAttempts >= model.LockoutThreshold {
		rec.IsLocked = true
	}
	rec.UpdatedAt = time.Now().UTC()
	return rec.IsLocked, nil
}

func (m *MemoryUserStore) StoreResetToken(_ context.Context, userID, tok string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	rec.ResetToken = tok
	rec.ResetExpiresAt = &expiresAt
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryUserStore) ClearResetToken(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[userID]
	if !ok {
		return nil
	}
	rec.ResetToken = ""
	rec.ResetExpiresAt = nil
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryUserStore) List(_ context.Context) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.User, 0, len(m.byID))
	for _, rec := range m.byID {
		out = append(out, cloneUser(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryUserStore) UpdateProfile(_ context.Context, userID string, up ProfileUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	if up.Name != "" {
		rec.Name = up.Name
	}
	if up.Role != "" {
		rec.Role = up.Role
	}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryUserStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	delete(m.byEmail, rec.Email)
	delete(m.byID, userID)
	return nil
}

// cloneUser copies the record so callers never share the stored slice or
// pointers with concurrent mutators.
func cloneUser(rec *model.User) model.User {
	out := *rec
	out.PasswordHistory = append([]string(nil), rec.PasswordHistory...)
	if rec.LastLoginAt != nil {
		t := *rec.LastLoginAt
		out.LastLoginAt = &t
	}
	if rec.PasswordChangedAt != nil {
		t := *rec.PasswordChangedAt
		out.PasswordChangedAt = &t
	}
	if rec.ResetExpiresAt != nil {
		t := *rec.ResetExpiresAt
		out.ResetExpiresAt = &t
	}
	return out
}

// MemorySessionStore is the in-process SessionStore fallback.  Sessions
// are keyed by token id; the blacklist is an independent map keyed by the
// raw token string, matching the durable store's two tables.
type MemorySessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]*model.Session
	blacklist map[string]model.BlacklistedToken
}

// NewMemorySessionStore returns an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions:  make(map[string]*model.Session),
		blacklist: make(map[string]model.BlacklistedToken),
	}
}

var _ SessionStore = (*MemorySessionStore)(nil)

func (m *MemorySessionStore) Create(_ context.Context, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := s
	m.sessions[s.TokenID] = &cp
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, tokenID string) (model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[tokenID]
	if !ok || rec.State(time.Now().UTC()) != model.SessionActive {
		return model.Session{}, ErrSessionNotFound
	}
	return *rec, nil
}

func (m *MemorySessionStore) TouchActivity(_ context.Context, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.sessions[tokenID]; ok && rec.InvalidatedAt == nil {
		rec.LastActivity = time.Now().UTC()
	}
	return nil
}

func (m *MemorySessionStore) TouchActivityBySession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, rec := range m.sessions {
		if rec.SessionID == sessionID && rec.InvalidatedAt == nil {
			rec.LastActivity = now
		}
	}
	return nil
}

func (m *MemorySessionStore) Invalidate(_ context.Context, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.sessions[tokenID]; ok && rec.InvalidatedAt == nil {
		now := time.Now().UTC()
		rec.InvalidatedAt = &now
	}
	return nil
}

func (m *MemorySessionStore) InvalidateAllForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, rec := range m.sessions {
		if rec.UserID == userID && rec.InvalidatedAt == nil {
			t := now
			rec.InvalidatedAt = &t
		}
	}
	return nil
}

func (m *MemorySessionStore) ActiveForUser(_ context.Context, userID string) ([]model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now().UTC()
	var out []model.Session
	for _, rec := range m.sessions {
		if rec.UserID == userID && rec.State(now) == model.SessionActive {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}

func (m *MemorySessionStore) BlacklistToken(_ context.Context, raw string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blacklist[raw]; ok {
		return nil
	}
	m.blacklist[raw] = model.BlacklistedToken{
		Token:         raw,
		BlacklistedAt: time.Now().UTC(),
		ExpiresAt:     expiresAt,
	}
	return nil
}

func (m *MemorySessionStore) IsTokenBlacklisted(_ context.Context, raw string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blacklist[raw]
	return ok, nil
}

func (m *MemorySessionStore) CleanupExpired(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for id, rec := range m.sessions {
		if now.After(rec.ExpiresAt) {
			delete(m.sessions, id)
		}
	}
	for raw, rec := range m.blacklist {
		if now.After(rec.ExpiresAt) {
			delete(m.blacklist, raw)
		}
	}
	return nil
}
