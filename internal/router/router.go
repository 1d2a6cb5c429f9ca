package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/humanet/auth-service/internal/config"
	"github.com/humanet/auth-service/internal/handler"
	"github.com/humanet/auth-service/internal/middleware"
	"github.com/humanet/auth-service/internal/model"
	"github.com/humanet/auth-service/internal/repository"
	"github.com/humanet/auth-service/internal/token"
)

// RegisterRoutes wires every route of the auth API onto the Echo
// instance.  Unauthenticated operations live under /v1/auth; protected
// endpoints apply the Authenticate middleware.  The login and forgot
// endpoints carry their own stricter per-IP throttles on top of the
// general API limiter, which /healthz bypasses so monitoring is never
// throttled.
func RegisterRoutes(e *echo.Echo, a *handler.AuthHandler, tokens *token.Service, sessions repository.SessionStore, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)

	e.Use(middleware.FixedWindow(config.LoadAPIRateLimit(), rdb, "/healthz"))

	authn := middleware.Authenticate(tokens, sessions)

	g := e.Group("/v1/auth")
	g.POST("/login", a.Login, middleware.FixedWindow(config.LoadLoginRateLimit(), rdb))
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout, authn)
	g.POST("/logout-all", a.LogoutAll, authn)
	g.GET("/sessions", a.ListSessions, authn)
	g.POST("/password/forgot", a.ForgotPassword, middleware.FixedWindow(config.LoadResetRateLimit(), rdb))
	g.POST("/password/reset", a.ResetPassword)
	g.POST("/password/change", a.ChangePassword, authn)
	g.POST("/password/validate", a.ValidatePassword)

	auth := e.Group("/v1")
	auth.Use(authn)
	auth.GET("/me", a.Me)
	auth.GET("/users", a.ListUsers, middleware.RequireRole(model.RoleAdmin))
	auth.PUT("/users/:id", a.UpdateUser, middleware.RequireRole(model.RoleAdmin))
}
