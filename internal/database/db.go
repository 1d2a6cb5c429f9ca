package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.  skipTLSVerify
// maps to tls=skip-verify in the DSN for local development against a
// managed database with a self-signed certificate.
func Open(user, pass, host, port, name string, skipTLSVerify bool) (*sql.DB, error) {
	db, err := sql.Open("mysql", buildDSN(user, pass, host, port, name, skipTLSVerify))
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// buildDSN assembles the connection string.  clientFoundRows=true makes
// RowsAffected report matched rows rather than changed rows, so an
// UPDATE that sets columns to their current values (a repeated login
// success within the same DATETIME second) still counts the row and the
// repositories can treat zero rows as "no such record".
func buildDSN(user, pass, host, port, name string, skipTLSVerify bool) string {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		auth, host, port, name)
	if skipTLSVerify {
		dsn += "&tls=skip-verify"
	}
	return dsn
}
