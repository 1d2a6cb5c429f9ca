package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/humanet/auth-service/internal/repository"
	"github.com/humanet/auth-service/internal/token"
)

// Context keys under which the authenticated identity is stored.  Handlers
// read these via c.Get().
const (
	CtxUserID      = "user_id"
	CtxEmail       = "email"
	CtxRole        = "role"
	CtxSessionID   = "session_id"
	CtxAccessToken = "access_token"
)

// Authenticate returns an Echo middleware that validates the access token
// from the accessToken cookie or the Authorization header.  It rejects
// missing, blacklisted, expired and malformed tokens with 401 and a code
// the client can act on (TOKEN_EXPIRED may be recoverable via refresh;
// everything else requires a full re-login).  On success the identity is
// attached to the context and the session's activity timestamp is touched
// in the background, best-effort.
func Authenticate(tokens *token.Service, sessions repository.SessionStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := ExtractAccessToken(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"success": false, "message": "authentication required", "code": "MISSING_TOKEN",
				})
			}

			// The blacklist check comes before signature verification on
			// purpose: a revoked token stays revoked even while it still
			// verifies.
			blacklisted, err := sessions.IsTokenBlacklisted(c.Request().Context(), raw)
			if err != nil {
				log.Printf("auth: blacklist check failed: %v", err)
				return c.JSON(http.StatusInternalServerError, echo.Map{
					"success": false, "message": "authentication unavailable",
				})
			}
			if blacklisted {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"success": false, "message": "token has been revoked", "code": "TOKEN_REVOKED",
				})
			}

			claims, err := tokens.VerifyAccessToken(raw)
			if err != nil {
				if errors.Is(err, token.ErrTokenExpired) {
					return c.JSON(http.StatusUnauthorized, echo.Map{
						"success": false, "message": "token expired", "code": "TOKEN_EXPIRED",
					})
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"success": false, "message": "invalid token", "code": "INVALID_TOKEN",
				})
			}

			c.Set(CtxUserID, claims.UserID())
			c.Set(CtxEmail, claims.Email)
			c.Set(CtxRole, claims.Role)
			c.Set(CtxSessionID, claims.SessionID)
			c.Set(CtxAccessToken, raw)

			// Touch the session off the request path; a failed touch is
			// logged and never blocks the request.
			if claims.SessionID != "" {
				sessionID := claims.SessionID
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
					defer cancel()
					if err := sessions.TouchActivityBySession(ctx, sessionID); err != nil {
						log.Printf("auth: session activity touch failed: %v", err)
					}
				}()
			}

			return next(c)
		}
	}
}

// RequireRole returns a middleware that enforces that the authenticated
// user has one of the given roles.  It assumes Authenticate already ran:
// a missing identity yields 401, a role outside the allowed set 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			v := c.Get(CtxRole)
			role, ok := v.(string)
			if !ok || role == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"success": false, "message": "authentication required", "code": "MISSING_TOKEN",
				})
			}
			if !allowed[role] {
				return c.JSON(http.StatusForbidden, echo.Map{
					"success": false, "message": "insufficient permissions",
				})
			}
			return next(c)
		}
	}
}

// OptionalAuth performs the same token checks as Authenticate but never
// fails the request: on any problem the request proceeds without an
// attached identity, so endpoints can behave differently for anonymous
// callers.
func OptionalAuth(tokens *token.Service, sessions repository.SessionStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := ExtractAccessToken(c)
			if raw == "" {
				return next(c)
			}
			if blacklisted, err := sessions.IsTokenBlacklisted(c.Request().Context(), raw); err != nil || blacklisted {
				return next(c)
			}
			claims, err := tokens.VerifyAccessToken(raw)
			if err != nil {
				return next(c)
			}
			c.Set(CtxUserID, claims.UserID())
			c.Set(CtxEmail, claims.Email)
			c.Set(CtxRole, claims.Role)
			c.Set(CtxSessionID, claims.SessionID)
			c.Set(CtxAccessToken, raw)
			return next(c)
		}
	}
}

// ExtractAccessToken reads the access token from the accessToken cookie,
// falling back to a Bearer Authorization header.  Cookies are the primary
// channel; the header keeps non-browser clients working.
func ExtractAccessToken(c echo.Context) string {
	if ck, err := c.Cookie("accessToken"); err == nil && ck.Value != "" {
		return ck.Value
	}
	auth := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
