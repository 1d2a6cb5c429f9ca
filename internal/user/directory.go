// Package user implements the identity directory: account creation with
// policy enforcement, credential verification and password rotation on
// top of a pluggable store.
package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/humanet/auth-service/internal/model"
	"github.com/humanet/auth-service/internal/password"
	"github.com/humanet/auth-service/internal/repository"
)

// ErrPasswordReused is returned when a new password matches one of the
// user's recent hashes.
var ErrPasswordReused = errors.New("password matches a recently used password")

// WeakPasswordError reports the itemized rules a candidate password
// failed to meet.
type WeakPasswordError struct {
	Failures []string
}

func (e *WeakPasswordError) Error() string { return "password does not meet strength requirements" }

// Directory wraps a UserStore with the platform's credential policy.
type Directory struct {
	Store      repository.UserStore
	BcryptCost int
}

// NewDirectory builds a Directory over the given store.
func NewDirectory(store repository.UserStore, bcryptCost int) *Directory {
	return &Directory{Store: store, BcryptCost: bcryptCost}
}

// CreateParams carries the fields accepted at signup or seed time.  Force
// skips the strength check and exists only for bootstrap accounts.
type CreateParams struct {
	ID       string // optional; generated when empty
	Email    string
	Name     string
	Role     string
	Password string
	Force    bool
}

// CreateUser validates and hashes the password, seeds a one-entry
// history and inserts the record.  Insert-only: an existing email yields
// repository.ErrEmailExists and the record is never overwritten.
func (d *Directory) CreateUser(ctx context.Context, p CreateParams) (model.User, error) {
	if !p.Force {
		if st := password.ValidateStrength(p.Password); !st.IsValid {
			return model.User{}, &WeakPasswordError{Failures: st.Failures}
		}
	}
	hash, err := password.Hash(p.Password, d.BcryptCost)
	if err != nil {
		return model.User{}, err
	}
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	return d.Store.Create(ctx, repository.NewUser{
		ID:              id,
		Email:           p.Email,
		Name:            p.Name,
		Role:            p.Role,
		PasswordHash:    hash,
		PasswordHistory: []string{hash},
	})
}

// VerifyPassword checks a plain password against the user's current hash.
func (d *Directory) VerifyPassword(u model.User, plain string) bool {
	return password.Verify(u.PasswordHash, plain)
}

// UpdatePassword rotates a user's password.  It rejects reuse of the
// recent history before rejecting weak passwords, so a reused-but-weak
// password surfaces as the reuse violation.  On success the store clears
// the lockout state and attempt counter.
func (d *Directory) UpdatePassword(ctx context.Context, userID, newPassword string) error {
	u, err := d.Store.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if password.IsReused(newPassword, u.PasswordHistory) {
		return ErrPasswordReused
	}
	if st := password.ValidateStrength(newPassword); !st.IsValid {
		return &WeakPasswordError{Failures: st.Failures}
	}
	hash, err := password.Hash(newPassword, d.BcryptCost)
	if err != nil {
		return err
	}
	return d.Store.UpdatePassword(ctx, userID, repository.PasswordUpdate{
		Hash:      hash,
		History:   password.UpdateHistory(u.PasswordHistory, hash),
		ChangedAt: time.Now().UTC(),
	})
}

// Profile is the sanitized view of a user.  Password material never
// appears here.
type Profile struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	Name              string     `json:"name"`
	Role              string     `json:"role"`
	IsLocked          bool       `json:"isLocked"`
	LastLoginAt       *time.Time `json:"lastLoginAt,omitempty"`
	PasswordChangedAt *time.Time `json:"passwordChangedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// Sanitize strips credential material from a user record.
func Sanitize(u model.User) Profile {
	return Profile{
		ID:                u.ID,
		Email:             u.Email,
		Name:              u.Name,
		Role:              u.Role,
		IsLocked:          u.IsLocked,
		LastLoginAt:       u.LastLoginAt,
		PasswordChangedAt: u.PasswordChangedAt,
		CreatedAt:         u.CreatedAt,
	}
}

// SanitizeAll maps Sanitize over a list.
func SanitizeAll(users []model.User) []Profile {
	out := make([]Profile, 0, len(users))
	for _, u := range users {
		out = append(out, Sanitize(u))
	}
	return out
}
