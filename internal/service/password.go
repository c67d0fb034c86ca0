package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the fixed work factor for password hashing.
const BcryptCost = 12

// MinPasswordLength is the hard minimum enforced at registration.
const MinPasswordLength = 12

// commonSubstrings are rejected anywhere inside a candidate password,
// case-insensitively. The product name is on the list; users reuse it
// constantly.
var commonSubstrings = []string{
	"password",
	"qwerty",
	"123456",
	"letmein",
	"welcome",
	"abc123",
	"admin",
	"kidvue",
}

// HashPassword hashes a plaintext password with bcrypt at the fixed
// cost. Empty plaintext is rejected; policy checks beyond that belong
// to CheckPasswordPolicy and run at registration, not here.
func HashPassword(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext candidate against a stored bcrypt
// digest. It returns false for any mismatch, including a malformed
// digest; it never errors.
func VerifyPassword(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// PolicyResult is the outcome of a registration-time password check.
// Score is 0-4; Issues lists every failed requirement so the client can
// surface all of them at once.
type PolicyResult struct {
	Score  int      `json:"score"`
	Issues []string `json:"issues,omitempty"`
}

// OK reports whether the password satisfies every hard requirement and
// is strong enough to accept.
func (r PolicyResult) OK() bool {
	return len(r.Issues) == 0 && r.Score >= 3
}

// CheckPasswordPolicy evaluates a candidate password: minimum length,
// all four character classes, no common substrings, no run of three or
// more identical characters.
func CheckPasswordPolicy(plaintext string) PolicyResult {
	var res PolicyResult

	if len(plaintext) < MinPasswordLength {
		res.Issues = append(res.Issues, fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range plaintext {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}
	if !hasUpper {
		res.Issues = append(res.Issues, "must contain an uppercase letter")
	}
	if !hasLower {
		res.Issues = append(res.Issues, "must contain a lowercase letter")
	}
	if !hasDigit {
		res.Issues = append(res.Issues, "must contain a digit")
	}
	if !hasSpecial {
		res.Issues = append(res.Issues, "must contain a special character")
	}

	lower := strings.ToLower(plaintext)
	clean := true
	for _, sub := range commonSubstrings {
		if strings.Contains(lower, sub) {
			res.Issues = append(res.Issues, fmt.Sprintf("must not contain %q", sub))
			clean = false
			break
		}
	}
	if hasRepeatRun(plaintext, 3) {
		res.Issues = append(res.Issues, "must not repeat a character 3 or more times in a row")
		clean = false
	}

	if len(plaintext) >= MinPasswordLength {
		res.Score++
	}
	if len(plaintext) >= 16 {
		res.Score++
	}
	if hasUpper && hasLower && hasDigit && hasSpecial {
		res.Score++
	}
	if clean {
		res.Score++
	}
	return res
}

func hasRepeatRun(s string, n int) bool {
	run := 0
	var prev rune
	for i, r := range s {
		if i > 0 && r == prev {
			run++
			if run+1 >= n {
				return true
			}
		} else {
			run = 0
		}
		prev = r
	}
	return false
}
