package main // Entry point package

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/humanet/auth-service/internal/config"
	"github.com/humanet/auth-service/internal/database"
	"github.com/humanet/auth-service/internal/handler"
	"github.com/humanet/auth-service/internal/model"
	"github.com/humanet/auth-service/internal/queue"
	"github.com/humanet/auth-service/internal/repository"
	"github.com/humanet/auth-service/internal/router"
	"github.com/humanet/auth-service/internal/token"
	"github.com/humanet/auth-service/internal/user"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()

	// Select the store implementations once at startup: MySQL when
	// configured and reachable, otherwise the in-memory development
	// fallback.  Business logic only ever sees the interfaces.
	var (
		users    repository.UserStore
		sessions repository.SessionStore
	)
	if cfg.DBUser != "" {
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBTLSSkipVerify)
		if err != nil {
			log.Printf("mysql unavailable (%v); falling back to in-memory stores", err)
		} else {
			users = repository.NewUserRepo(db)
			sessions = repository.NewSessionRepo(db)
		}
	}
	if users == nil {
		log.Printf("using in-memory stores; state will not survive a restart")
		users = repository.NewMemoryUserStore()
		sessions = repository.NewMemorySessionStore()
	}

	tokens := token.NewService(
		cfg.AccessSecret,
		cfg.RefreshSecret,
		time.Duration(cfg.AccessTTLHours)*time.Hour,
		time.Duration(cfg.RefreshTTLDays)*24*time.Hour,
		time.Duration(cfg.ResetTTLMin)*time.Minute,
	)
	dir := user.NewDirectory(users, cfg.BcryptCost)

	seedUsers(dir)

	// Periodic sweep of expired sessions and blacklist rows.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := sessions.CleanupExpired(ctx); err != nil {
				log.Printf("session sweep failed: %v", err)
			}
			cancel()
		}
	}()

	// Reset-notification consumer keeps its own reconnect loop.
	go func() {
		if err := queue.StartResetConsumer(); err != nil {
			log.Printf("reset consumer stopped: %v", err)
		}
	}()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting uses in-process counters")
	}

	e := echo.New()
	a := handler.NewAuthHandler(cfg, dir, sessions, tokens)
	router.RegisterRoutes(e, a, tokens, sessions, rdb)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}

// seedUsers provisions the demo accounts.  Creation is insert-if-absent,
// so restarts against a durable store leave existing records untouched.
func seedUsers(dir *user.Directory) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	seeds := []user.CreateParams{
		{Email: "admin@humanet.com", Name: "Platform Admin", Role: model.RoleAdmin, Password: "Admin@Secure123", Force: true},
		{Email: "hr@humanet.com", Name: "HR Manager", Role: model.RoleHR, Password: "Hr@Secure123", Force: true},
		{Email: "employee@humanet.com", Name: "Demo Employee", Role: model.RoleEmployee, Password: "Employee@123", Force: true},
	}
	for _, s := range seeds {
		if _, err := dir.CreateUser(ctx, s); err != nil && err != repository.ErrEmailExists {
			log.Printf("seed %s failed: %v", s.Email, err)
		}
	}
}
