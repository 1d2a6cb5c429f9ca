// Package token issues and verifies the signed credentials used by the
// auth API: short-lived access tokens, longer-lived refresh tokens and
// single-purpose password-reset tokens.  Every token is an HS256 JWT
// carrying a type discriminator and a unique identifier; access and
// refresh tokens are signed with different secrets so a leaked token of
// one class can never be replayed as the other.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token type discriminators embedded in the "type" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
	TypeReset   = "password-reset"
)

var (
	// ErrTokenExpired is returned when a token's signature verifies but its
	// expiry has passed.  Callers can prompt for refresh instead of re-login.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidToken covers every other verification failure: malformed
	// token, bad signature, wrong signing method or wrong token type.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the payload carried by every token class.  TokenID is the
// JWT ID (jti); SessionID correlates the access/refresh pair minted at
// the same login and is empty on password-reset tokens.
type Claims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *Claims) UserID() string { return c.Subject }

// TokenID returns the unique token identifier (jti).
func (c *Claims) TokenID() string { return c.ID }

// Issued bundles a freshly signed token with its identifier and expiry.
type Issued struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
}

// Service signs and verifies tokens.  The reset TTL rides on the access
// secret; only refresh tokens use the second secret.
type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	resetTTL      time.Duration
}

// NewService builds a token Service from the two signing secrets and the
// per-class lifetimes.
func NewService(accessSecret, refreshSecret string, accessTTL, refreshTTL, resetTTL time.Duration) *Service {
	return &Service{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		resetTTL:      resetTTL,
	}
}

// GenerateAccessToken signs an access token for the user.  The sessionID
// must match the one embedded in the refresh token issued at the same
// login so the pair can be correlated.
func (s *Service) GenerateAccessToken(userID, email, role, sessionID string) (Issued, error) {
	return s.generate(s.accessSecret, TypeAccess, userID, email, role, sessionID, s.accessTTL)
}

// GenerateRefreshToken signs a refresh token for the user using the
// refresh secret.
func (s *Service) GenerateRefreshToken(userID, email, role, sessionID string) (Issued, error) {
	return s.generate(s.refreshSecret, TypeRefresh, userID, email, role, sessionID, s.refreshTTL)
}

// GeneratePasswordResetToken signs a single-purpose reset token.  It is
// signed with the access secret and carries no session.
func (s *Service) GeneratePasswordResetToken(userID, email string) (Issued, error) {
	return s.generate(s.accessSecret, TypeReset, userID, email, "", "", s.resetTTL)
}

// VerifyAccessToken validates signature, expiry and the "access" type.
func (s *Service) VerifyAccessToken(raw string) (*Claims, error) {
	return s.verify(raw, s.accessSecret, TypeAccess)
}

// VerifyRefreshToken validates signature, expiry and the "refresh" type.
func (s *Service) VerifyRefreshToken(raw string) (*Claims, error) {
	return s.verify(raw, s.refreshSecret, TypeRefresh)
}

// VerifyPasswordResetToken validates signature, expiry and the reset type.
func (s *Service) VerifyPasswordResetToken(raw string) (*Claims, error) {
	return s.verify(raw, s.accessSecret, TypeReset)
}

func (s *Service) generate(secret []byte, typ, userID, email, role, sessionID string, ttl time.Duration) (Issued, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	tokenID := uuid.NewString()
	claims := &Claims{
		Email:     email,
		Role:      role,
		Type:      typ,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        tokenID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: signed, TokenID: tokenID, ExpiresAt: exp}, nil
}

func (s *Service) verify(raw string, secret []byte, wantType string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		// Reject tokens signed with anything but HMAC.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !tok.Valid || claims.Type != wantType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
