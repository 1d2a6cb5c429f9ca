// Package password implements the credential policy for the HR platform:
// strength validation, bcrypt hashing and a bounded reuse history.
package password

import (
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/humanet/auth-service/internal/model"
)

// Failure messages returned by ValidateStrength, one per unmet rule.
const (
	FailLength    = "password must be at least 8 characters long"
	FailUppercase = "password must contain at least one uppercase letter"
	FailLowercase = "password must contain at least one lowercase letter"
	FailDigit     = "password must contain at least one number"
	FailSymbol    = "password must contain at least one special character"
)

// Strength is the result of a password policy check.  Score is a 0-100
// informational value and never gates validity: a long password of one
// character class can score well while still being rejected.
type Strength struct {
	IsValid  bool     `json:"isValid"`
	Failures []string `json:"failures"`
	Score    int      `json:"strengthScore"`
}

// ValidateStrength checks a candidate password against the platform rules:
// length >= 8 plus at least one uppercase letter, lowercase letter, digit
// and symbol.  The score blends 60% length (relative to 12 characters)
// with 40% character-class coverage.
func ValidateStrength(pw string) Strength {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	var failures []string
	if len(pw) < 8 {
		failures = append(failures, FailLength)
	}
	if !hasUpper {
		failures = append(failures, FailUppercase)
	}
	if !hasLower {
		failures = append(failures, FailLowercase)
	}
	if !hasDigit {
		failures = append(failures, FailDigit)
	}
	if !hasSymbol {
		failures = append(failures, FailSymbol)
	}

	classes := 0
	for _, ok := range []bool{hasUpper, hasLower, hasDigit, hasSymbol} {
		if ok {
			classes++
		}
	}
	lengthPart := float64(len(pw)) / 12.0
	if lengthPart > 1 {
		lengthPart = 1
	}
	score := int((0.6*lengthPart + 0.4*float64(classes)/4.0) * 100)
	if score > 100 {
		score = 100
	}

	return Strength{
		IsValid:  len(failures) == 0,
		Failures: failures,
		Score:    score,
	}
}

// Hash returns a bcrypt hash of the plain password using the given cost.
func Hash(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify safely compares a bcrypt hash and a plain password.
func Verify(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// IsReused reports whether the plain password matches any of the most
// recent historical hashes.  History is most-recent-first and only the
// first model.PasswordHistoryLimit entries are consulted.
func IsReused(plain string, history []string) bool {
	limit := len(history)
	if limit > model.PasswordHistoryLimit {
		limit = model.PasswordHistoryLimit
	}
	for _, h := range history[:limit] {
		if Verify(h, plain) {
			return true
		}
	}
	return false
}

// UpdateHistory prepends the new hash and truncates the history to
// model.PasswordHistoryLimit entries, most-recent-first.
func UpdateHistory(history []string, newHash string) []string {
	out := make([]string, 0, model.PasswordHistoryLimit)
	out = append(out, newHash)
	for _, h := range history {
		if len(out) == model.PasswordHistoryLimit {
			break
		}
		out = append(out, h)
	}
	return out
}
