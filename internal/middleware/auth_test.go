package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanet/auth-service/internal/repository"
	"github.com/humanet/auth-service/internal/token"
)

func newAuthFixture() (*token.Service, *repository.MemorySessionStore) {
	tokens := token.NewService("access-secret", "refresh-secret", time.Hour, 24*time.Hour, time.Minute)
	return tokens, repository.NewMemorySessionStore()
}

func invoke(t *testing.T, mw echo.MiddlewareFunc, decorate func(*http.Request)) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	if decorate != nil {
		decorate(req)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	h := mw(func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"success": true})
	})
	require.NoError(t, h(c))
	return rec, c
}

func decodeCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

func TestAuthenticateMissingToken(t *testing.T) {
	tokens, sessions := newAuthFixture()
	rec, _ := invoke(t, Authenticate(tokens, sessions), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "MISSING_TOKEN", decodeCode(t, rec))
}

func TestAuthenticateValidCookie(t *testing.T) {
	tokens, sessions := newAuthFixture()
	issued, err := tokens.GenerateAccessToken("u-1", "hr@humanet.com", "hr", "sess-1")
	require.NoError(t, err)

	rec, c := invoke(t, Authenticate(tokens, sessions), func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: "accessToken", Value: issued.Token})
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", c.Get(CtxUserID))
	assert.Equal(t, "hr@humanet.com", c.Get(CtxEmail))
	assert.Equal(t, "hr", c.Get(CtxRole))
	assert.Equal(t, "sess-1", c.Get(CtxSessionID))
	assert.Equal(t, issued.Token, c.Get(CtxAccessToken))
}

func TestAuthenticateBearerFallback(t *testing.T) {
	tokens, sessions := newAuthFixture()
	issued, err := tokens.GenerateAccessToken("u-1", "hr@humanet.com", "hr", "sess-1")
	require.NoError(t, err)

	rec, _ := invoke(t, Authenticate(tokens, sessions), func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+issued.Token)
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticateBlacklistedToken(t *testing.T) {
	tokens, sessions := newAuthFixture()
	issued, err := tokens.GenerateAccessToken("u-1", "hr@humanet.com", "hr", "sess-1")
	require.NoError(t, err)
	require.NoError(t, sessions.BlacklistToken(context.Background(), issued.Token, issued.ExpiresAt))

	// The signature still verifies; the blacklist alone must reject it.
	rec, _ := invoke(t, Authenticate(tokens, sessions), func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: "accessToken", Value: issued.Token})
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_REVOKED", decodeCode(t, rec))
}

func TestAuthenticateExpiredToken(t *testing.T) {
	expired := token.NewService("access-secret", "refresh-secret", -time.Minute, time.Hour, time.Hour)
	issued, err := expired.GenerateAccessToken("u-1", "hr@humanet.com", "hr", "sess-1")
	require.NoError(t, err)

	tokens, sessions := newAuthFixture()
	rec, _ := invoke(t, Authenticate(tokens, sessions), func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: "accessToken", Value: issued.Token})
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_EXPIRED", decodeCode(t, rec))
}

func TestAuthenticateWrongTypeToken(t *testing.T) {
	tokens, sessions := newAuthFixture()
	refresh, err := tokens.GenerateRefreshToken("u-1", "hr@humanet.com", "hr", "sess-1")
	require.NoError(t, err)

	rec, _ := invoke(t, Authenticate(tokens, sessions), func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: "accessToken", Value: refresh.Token})
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", decodeCode(t, rec))
}

func TestRequireRole(t *testing.T) {
	mw := RequireRole("admin", "hr")

	run := func(role any) *httptest.ResponseRecorder {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if role != nil {
			c.Set(CtxRole, role)
		}
		h := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
		require.NoError(t, h(c))
		return rec
	}

	assert.Equal(t, http.StatusOK, run("admin").Code)
	assert.Equal(t, http.StatusOK, run("hr").Code)
	assert.Equal(t, http.StatusForbidden, run("employee").Code)
	assert.Equal(t, http.StatusUnauthorized, run(nil).Code)
}

func TestOptionalAuthNeverRejects(t *testing.T) {
	tokens, sessions := newAuthFixture()
	mw := OptionalAuth(tokens, sessions)

	// Anonymous request proceeds without identity.
	rec, c := invoke(t, mw, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, c.Get(CtxUserID))

	// Garbage token also proceeds, still without identity.
	rec, c = invoke(t, mw, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: "accessToken", Value: "garbage"})
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, c.Get(CtxUserID))

	// Valid token attaches identity.
	issued, err := tokens.GenerateAccessToken("u-1", "hr@humanet.com", "hr", "sess-1")
	require.NoError(t, err)
	rec, c = invoke(t, mw, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: "accessToken", Value: issued.Token})
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", c.Get(CtxUserID))
}
