package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/humanet/auth-service/internal/config"
	"github.com/humanet/auth-service/internal/middleware"
	"github.com/humanet/auth-service/internal/model"
	"github.com/humanet/auth-service/internal/password"
	"github.com/humanet/auth-service/internal/queue"
	"github.com/humanet/auth-service/internal/repository"
	queue_publisher "github.com/humanet/auth-service/internal/service"
	"github.com/humanet/auth-service/internal/token"
	"github.com/humanet/auth-service/internal/user"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Dir      *user.Directory
	Sessions repository.SessionStore
	Tokens   *token.Service
}

func NewAuthHandler(cfg config.Config, dir *user.Directory, sessions repository.SessionStore, tokens *token.Service) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Dir: dir, Sessions: sessions, Tokens: tokens}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type forgotReq struct {
	Email string `json:"email"`
}
type resetReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}
type changeReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}
type validateReq struct {
	Password string `json:"password"`
}
type updateUserReq struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type sessionPart struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	IPAddress    string    `json:"ipAddress"`
	UserAgent    string    `json:"userAgent"`
}

// Messages deliberately shared between distinct failure branches so
// responses never reveal whether an email or token exists.
const (
	msgInvalidCredentials = "invalid email or password"
	msgForgotGeneric      = "if an account with that email exists, a password reset link has been sent"
	msgResetInvalid       = "invalid or expired reset token"
)

// Login verifies credentials and establishes a session: one refresh token
// persisted as a session row plus an access token sharing the same
// session id, both delivered as scoped http-only cookies.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false, "message": "email and password are required", "code": "MISSING_CREDENTIALS",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Dir.Store.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Same message as a wrong password; existence is not revealed.
			return c.JSON(http.StatusUnauthorized, echo.Map{
				"success": false, "message": msgInvalidCredentials, "code": "INVALID_CREDENTIALS",
			})
		}
		return h.internalError(c, "login lookup", err)
	}
	if u.IsLocked {
		return c.JSON(http.StatusLocked, echo.Map{
			"success": false, "message": "account is locked due to repeated failed logins", "code": "ACCOUNT_LOCKED",
		})
	}
	if !h.Dir.VerifyPassword(u, req.Password) {
		if _, err := h.Dir.Store.RecordLoginFailure(ctx, u.ID); err != nil {
			log.Printf("auth: record login failure: %v", err)
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"success": false, "message": msgInvalidCredentials, "code": "INVALID_CREDENTIALS",
		})
	}

	if err := h.Dir.Store.RecordLoginSuccess(ctx, u.ID); err != nil {
		return h.internalError(c, "record login success", err)
	}

	sessionID := uuid.NewString()
	refresh, err := h.Tokens.GenerateRefreshToken(u.ID, u.Email, u.Role, sessionID)
	if err != nil {
		return h.internalError(c, "issue refresh token", err)
	}
	now := time.Now().UTC()
	if err := h.Sessions.Create(ctx, model.Session{
		TokenID:      refresh.TokenID,
		SessionID:    sessionID,
		UserID:       u.ID,
		Email:        u.Email,
		Role:         u.Role,
		IPAddress:    c.RealIP(),
		UserAgent:    c.Request().UserAgent(),
		CreatedAt:    now,
		ExpiresAt:    refresh.ExpiresAt,
		LastActivity: now,
	}); err != nil {
		return h.internalError(c, "create session", err)
	}
	access, err := h.Tokens.GenerateAccessToken(u.ID, u.Email, u.Role, sessionID)
	if err != nil {
		return h.internalError(c, "issue access token", err)
	}

	h.setAuthCookies(c, access, refresh)
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "login successful",
		"user":    user.Sanitize(u),
	})
}

// Refresh mints a new access token from the refresh cookie.  The refresh
// token itself is not rotated.  Both the blacklist and the session row
// must still be good: either one failing denies the refresh.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := readCookie(c, "refreshToken")
	if raw == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"success": false, "message": "refresh token required", "code": "MISSING_TOKEN",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if blacklisted, err := h.Sessions.IsTokenBlacklisted(ctx, raw); err != nil {
		return h.internalError(c, "refresh blacklist check", err)
	} else if blacklisted {
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"success": false, "message": "token has been revoked", "code": "TOKEN_REVOKED",
		})
	}

	claims, err := h.Tokens.VerifyRefreshToken(raw)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return c.JSON(http.StatusUnauthorized, echo.Map{
				"success": false, "message": "refresh token expired", "code": "TOKEN_EXPIRED",
			})
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"success": false, "message": "invalid refresh token", "code": "INVALID_TOKEN",
		})
	}

	if _, err := h.Sessions.Get(ctx, claims.TokenID()); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{
				"success": false, "message": "session is no longer active", "code": "TOKEN_REVOKED",
			})
		}
		return h.internalError(c, "refresh session lookup", err)
	}

	u, err := h.Dir.Store.GetByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{
				"success": false, "message": "invalid refresh token", "code": "INVALID_TOKEN",
			})
		}
		return h.internalError(c, "refresh user lookup", err)
	}

	// New access token carries the same session id so the pair stays
	// correlated across rotations.
	access, err := h.Tokens.GenerateAccessToken(u.ID, u.Email, u.Role, claims.SessionID)
	if err != nil {
		return h.internalError(c, "issue access token", err)
	}
	if err := h.Sessions.TouchActivity(ctx, claims.TokenID()); err != nil {
		log.Printf("auth: session activity touch failed: %v", err)
	}

	h.setCookie(c, "accessToken", access.Token, time.Until(access.ExpiresAt))
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "access token refreshed"})
}

// Logout blacklists the current access and refresh tokens and invalidates
// the session behind the refresh token.  Cookies are always cleared and
// the response is always success: stale cookies in the browser are worse
// than an unrevoked-but-expiring token, so bookkeeping failures are only
// logged.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if raw, ok := c.Get(middleware.CtxAccessToken).(string); ok && raw != "" {
		exp := time.Now().UTC().Add(time.Duration(h.Cfg.AccessTTLHours) * time.Hour)
		if claims, err := h.Tokens.VerifyAccessToken(raw); err == nil {
			exp = claims.ExpiresAt.Time
		}
		if err := h.Sessions.BlacklistToken(ctx, raw, exp); err != nil {
			log.Printf("auth: blacklist access token: %v", err)
		}
	}

	if raw := readCookie(c, "refreshToken"); raw != "" {
		exp := time.Now().UTC().Add(time.Duration(h.Cfg.RefreshTTLDays) * 24 * time.Hour)
		if claims, err := h.Tokens.VerifyRefreshToken(raw); err == nil {
			exp = claims.ExpiresAt.Time
			if err := h.Sessions.Invalidate(ctx, claims.TokenID()); err != nil {
				log.Printf("auth: invalidate session: %v", err)
			}
		}
		if err := h.Sessions.BlacklistToken(ctx, raw, exp); err != nil {
			log.Printf("auth: blacklist refresh token: %v", err)
		}
	}

	h.clearAuthCookies(c)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "logged out"})
}

// LogoutAll invalidates every active session of the authenticated user,
// then clears the caller's own cookies.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	uid, _ := c.Get(middleware.CtxUserID).(string)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Sessions.InvalidateAllForUser(ctx, uid); err != nil {
		log.Printf("auth: invalidate all sessions: %v", err)
	}

	h.clearAuthCookies(c)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "logged out of all sessions"})
}

// ListSessions returns the authenticated user's active sessions.  Raw
// tokens never appear in the response.
func (h *AuthHandler) ListSessions(c echo.Context) error {
	uid, _ := c.Get(middleware.CtxUserID).(string)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sessions, err := h.Sessions.ActiveForUser(ctx, uid)
	if err != nil {
		return h.internalError(c, "list sessions", err)
	}
	out := make([]sessionPart, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionPart{
			ID:           s.SessionID,
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "sessions": out})
}

// ForgotPassword mints a one-hour reset token for the account, if it
// exists.  The response message is identical either way so email
// enumeration is impossible.  The token also rides in the response body
// for this environment's convenience; a production deployment would send
// it by email only, which is what the published queue event stands in for.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false, "message": "email is required", "code": "MISSING_CREDENTIALS",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Dir.Store.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusOK, echo.Map{"success": true, "message": msgForgotGeneric})
		}
		return h.internalError(c, "forgot lookup", err)
	}

	issued, err := h.Tokens.GeneratePasswordResetToken(u.ID, u.Email)
	if err != nil {
		return h.internalError(c, "issue reset token", err)
	}
	if err := h.Dir.Store.StoreResetToken(ctx, u.ID, issued.Token, issued.ExpiresAt); err != nil {
		return h.internalError(c, "store reset token", err)
	}

	// Notify out of band; a broker outage must not break the request.
	event := queue.PasswordResetRequestedEvent{
		UserID:      u.ID,
		Email:       u.Email,
		ResetLink:   h.Cfg.ResetBaseURL + "?token=" + issued.Token,
		ExpiresAt:   issued.ExpiresAt.Format(time.RFC3339),
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
	}
	go func() {
		pubCtx, pubCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer pubCancel()
		_ = queue_publisher.PublishPasswordResetRequested(pubCtx, event)
	}()

	return c.JSON(http.StatusOK, echo.Map{
		"success":    true,
		"message":    msgForgotGeneric,
		"resetToken": issued.Token,
	})
}

// ResetPassword rotates the password on a valid reset token, clears the
// stored token and invalidates every session of the user so all devices
// must log in again.  Invalid, expired, superseded and unknown-user cases
// all collapse into one generic 400.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil || req.Token == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false, "message": "token and newPassword are required", "code": "MISSING_CREDENTIALS",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	claims, err := h.Tokens.VerifyPasswordResetToken(req.Token)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false, "message": msgResetInvalid, "code": "INVALID_TOKEN",
		})
	}
	u, err := h.Dir.Store.GetByID(ctx, claims.UserID())
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false, "message": msgResetInvalid, "code": "INVALID_TOKEN",
		})
	}
	// The slot holds at most one outstanding token; an older token is
	// rejected once a newer request overwrote it.
	if u.ResetToken != req.Token || u.ResetExpiresAt == nil || time.Now().UTC().After(*u.ResetExpiresAt) {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false, "message": msgResetInvalid, "code": "INVALID_TOKEN",
		})
	}

	if err := h.applyPasswordUpdate(ctx, c, u.ID, req.NewPassword); err != nil {
		return err
	}

	if err := h.Dir.Store.ClearResetToken(ctx, u.ID); err != nil {
		log.Printf("auth: clear reset token: %v", err)
	}
	if err := h.Sessions.InvalidateAllForUser(ctx, u.ID); err != nil {
		log.Printf("auth: invalidate sessions after reset: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true, "message": "password has been reset, please log in again",
	})
}

// ChangePassword rotates the password of the authenticated user after
// verifying the current one.  Unlike reset, other sessions stay alive.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req changeReq
	if err := c.Bind(&req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false, "message": "currentPassword and newPassword are required", "code": "MISSING_CREDENTIALS",
		})
	}
	uid, _ := c.Get(middleware.CtxUserID).(string)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Dir.Store.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{
				"success": false, "message": "user not found", "code": "USER_NOT_FOUND",
			})
		}
		return h.internalError(c, "change password lookup", err)
	}
	if !h.Dir.VerifyPassword(u, req.CurrentPassword) {
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"success": false, "message": "current password is incorrect", "code": "INVALID_CREDENTIALS",
		})
	}

	if err := h.applyPasswordUpdate(ctx, c, u.ID, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "password changed"})
}

// ValidatePassword runs the strength check without mutating any state,
// for live client-side feedback.
func (h *AuthHandler) ValidatePassword(c echo.Context) error {
	var req validateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "invalid body"})
	}
	st := password.ValidateStrength(req.Password)
	return c.JSON(http.StatusOK, echo.Map{
		"success":       true,
		"isValid":       st.IsValid,
		"failures":      st.Failures,
		"strengthScore": st.Score,
	})
}

// Me returns the authenticated user's sanitized profile.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, _ := c.Get(middleware.CtxUserID).(string)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Dir.Store.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{
				"success": false, "message": "user not found", "code": "USER_NOT_FOUND",
			})
		}
		return h.internalError(c, "me lookup", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": user.Sanitize(u)})
}

// ListUsers is the administrative listing; responses are sanitized,
// password material never leaves the store layer.
func (h *AuthHandler) ListUsers(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	users, err := h.Dir.Store.List(ctx)
	if err != nil {
		return h.internalError(c, "list users", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "users": user.SanitizeAll(users)})
}

// UpdateUser is the administrative profile update.  Empty fields keep
// their current values; a non-empty role must be one of the recognized
// roles.  The refreshed record is returned sanitized.
func (h *AuthHandler) UpdateUser(c echo.Context) error {
	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": "invalid body"})
	}
	if req.Name == "" && req.Role == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false, "message": "nothing to update", "code": "MISSING_FIELDS",
		})
	}
	if req.Role != "" && !model.ValidRole(req.Role) {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false, "message": "unknown role", "code": "INVALID_ROLE",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	id := c.Param("id")
	if err := h.Dir.Store.UpdateProfile(ctx, id, repository.ProfileUpdate{
		Name: req.Name,
		Role: req.Role,
	}); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{
				"success": false, "message": "user not found", "code": "USER_NOT_FOUND",
			})
		}
		return h.internalError(c, "update profile", err)
	}

	u, err := h.Dir.Store.GetByID(ctx, id)
	if err != nil {
		return h.internalError(c, "update profile readback", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": user.Sanitize(u)})
}

// applyPasswordUpdate maps the directory's policy errors onto the wire:
// reuse gets its own specific message, weak passwords carry the itemized
// unmet rules.
func (h *AuthHandler) applyPasswordUpdate(ctx context.Context, c echo.Context, userID, newPassword string) error {
	err := h.Dir.UpdatePassword(ctx, userID, newPassword)
	if err == nil {
		return nil
	}
	var weak *user.WeakPasswordError
	switch {
	case errors.Is(err, user.ErrPasswordReused):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false,
			"message": "new password must not match any of your recent passwords",
			"code":    "PASSWORD_REUSED",
		})
	case errors.As(err, &weak):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success":  false,
			"message":  "password does not meet strength requirements",
			"code":     "WEAK_PASSWORD",
			"failures": weak.Failures,
		})
	default:
		return h.internalError(c, "update password", err)
	}
}

func (h *AuthHandler) internalError(c echo.Context, op string, err error) error {
	log.Printf("auth: %s failed: %v", op, err)
	return c.JSON(http.StatusInternalServerError, echo.Map{
		"success": false, "message": "internal server error",
	})
}

// ----- cookies -----

func (h *AuthHandler) setAuthCookies(c echo.Context, access, refresh token.Issued) {
	h.setCookie(c, "accessToken", access.Token, time.Until(access.ExpiresAt))
	h.setCookie(c, "refreshToken", refresh.Token, time.Until(refresh.ExpiresAt))
}

func (h *AuthHandler) clearAuthCookies(c echo.Context) {
	h.setCookie(c, "accessToken", "", -time.Hour)
	h.setCookie(c, "refreshToken", "", -time.Hour)
}

// setCookie applies the platform cookie policy: http-only, path "/",
// secure and strict same-site in production, lax otherwise.
func (h *AuthHandler) setCookie(c echo.Context, name, value string, maxAge time.Duration) {
	sameSite := http.SameSiteLaxMode
	if h.Cfg.IsProduction() {
		sameSite = http.SameSiteStrictMode
	}
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   h.Cfg.IsProduction(),
		SameSite: sameSite,
	})
}

func readCookie(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil || ck == nil {
		return ""
	}
	return ck.Value
}
