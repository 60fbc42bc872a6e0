package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codes are six-digit numeric strings in "100000".."999999"; the first digit
// is never zero so the string length is stable across storage and email.
const codeSpan = 900000

// GenerateCode returns a random six-digit activation/verification code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("failed to generate random number: %w", err)
	}
	return fmt.Sprintf("%d", 100000+n.Int64()), nil
}

// ValidFormat reports whether code looks like a code this package generates.
func ValidFormat(code string) bool {
	if len(code) != 6 || code[0] == '0' {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Matches compares a submitted code with a stored one. Comparison is exact
// string equality; no trimming or case folding.
func Matches(submitted, stored string) bool {
	return submitted == stored
}
