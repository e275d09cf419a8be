// Package phone normalises and validates Korean mobile numbers and generates
// one-time verification codes.
package phone

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

var (
	countryCodePattern = regexp.MustCompile(`^\+?82-?`)
	separatorPattern   = regexp.MustCompile(`[-\s()]`)
	mobilePattern      = regexp.MustCompile(`^01[0-9]\d{8}$`)
)

// CodeLength is the number of digits in a verification code.
const CodeLength = 6

// Normalize converts any accepted input format (+82-10-1234-5678,
// 010 1234 5678, (010)1234-5678, ...) to the 11-digit domestic form.
func Normalize(p string) string {
	n := strings.TrimSpace(p)
	n = countryCodePattern.ReplaceAllString(n, "")
	n = separatorPattern.ReplaceAllString(n, "")

	// International form drops the trunk 0.
	if len(n) == 10 && strings.HasPrefix(n, "1") {
		n = "0" + n
	}
	return n
}

// IsValid reports whether p is a mobile number once normalised.
func IsValid(p string) bool {
	return mobilePattern.MatchString(Normalize(p))
}

// Format renders a number as 010-1234-5678. Invalid input is returned as is.
func Format(p string) string {
	n := Normalize(p)
	if !mobilePattern.MatchString(n) {
		return p
	}
	return fmt.Sprintf("%s-%s-%s", n[:3], n[3:7], n[7:])
}

// Mask hides the middle block, e.g. 010****5678.
func Mask(p string) string {
	n := Normalize(p)
	if len(n) < 7 {
		return strings.Repeat("*", len(n))
	}
	return n[:3] + strings.Repeat("*", len(n)-7) + n[len(n)-4:]
}

// GenerateCode returns a uniformly random code in [100000, 999999].
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generating verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
