package utils

import (
	"regexp"
	"strings"
)

var dsnPasswordRegex = regexp.MustCompile(`(:)([^:@]+)(@)`)

func MaskDSN(dsn string) string {
	return dsnPasswordRegex.ReplaceAllString(dsn, ":***@")
}

// MaskIdentifier masks an account identifier (card number, customer number or
// email) for log output, keeping enough of it to tell accounts apart.
// Secrets (passwords, birthdates, postal codes) must never be logged at all.
func MaskIdentifier(id string) string {
	if at := strings.IndexByte(id, '@'); at > 0 {
		local := id[:at]
		if len(local) <= 2 {
			return local[:1] + "***" + id[at:]
		}
		return local[:2] + "***" + id[at:]
	}
	if len(id) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(id)-4) + id[len(id)-4:]
}
