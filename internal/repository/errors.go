// Package repository defines the store contracts for users, sessions and
// the token blacklist, together with a MySQL implementation and an
// in-memory fallback.  Sentinel errors let higher layers such as handlers
// distinguish failure scenarios without inspecting driver errors: for
// example ErrEmailExists signals a duplicate signup, while
// ErrSessionNotFound covers both a missing and an already revoked or
// expired session.
package repository

import "errors"

// ErrEmailExists is returned when a create collides with an existing
// account.  Creation is insert-only; existing records are never
// overwritten.
var ErrEmailExists = errors.New("email already exists")

// ErrUserNotFound is returned when no user matches the lookup key.
var ErrUserNotFound = errors.New("user not found")

// ErrSessionNotFound is returned when no active, unexpired session
// matches the token identifier.
var ErrSessionNotFound = errors.New("session not found")
