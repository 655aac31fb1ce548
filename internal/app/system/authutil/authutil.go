// internal/app/system/authutil/authutil.go
package authutil

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// BcryptCost for hashing passwords.
const BcryptCost = 10

// Rule describes one password requirement. Rules are evaluated
// independently so a single form round-trip can report every violation
// at once.
type Rule string

const (
	// RuleMinLength requires at least MinPasswordLength characters.
	RuleMinLength Rule = "be at least 8 characters long"
	// RuleLetter requires at least one letter.
	RuleLetter Rule = "contain at least one letter"
	// RuleDigit requires at least one digit.
	RuleDigit Rule = "contain at least one digit"
)

// allRules in the order they are reported.
var allRules = []Rule{RuleMinLength, RuleLetter, RuleDigit}

// Check evaluates every password rule and returns the violated ones.
// A nil result means the password satisfies all requirements. Pure
// function, no I/O.
func Check(password string) []Rule {
	var violated []Rule
	for _, rule := range allRules {
		if !satisfies(password, rule) {
			violated = append(violated, rule)
		}
	}
	return violated
}

func satisfies(password string, rule Rule) bool {
	switch rule {
	case RuleMinLength:
		return len([]rune(password)) >= MinPasswordLength
	case RuleLetter:
		return strings.ContainsFunc(password, unicode.IsLetter)
	case RuleDigit:
		return strings.ContainsFunc(password, unicode.IsDigit)
	default:
		return true
	}
}

// PasswordRules returns a human-readable description of the password
// requirements, suitable for display next to a password field.
func PasswordRules() string {
	parts := make([]string, len(allRules))
	for i, r := range allRules {
		parts[i] = string(r)
	}
	return "Password must " + strings.Join(parts, ", ") + "."
}

// ValidatePassword returns an error naming every violated rule, or nil
// when the password is acceptable.
func ValidatePassword(password string) error {
	violated := Check(password)
	if len(violated) == 0 {
		return nil
	}
	parts := make([]string, len(violated))
	for i, r := range violated {
		parts[i] = string(r)
	}
	return errors.New("password must " + strings.Join(parts, ", "))
}

// HashPassword hashes a password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether a password matches a bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
