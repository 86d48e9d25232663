// Package codes defines the fixed universe of access codes, the role each
// code grants and the one-way digests used to verify them.
package codes

import (
	"fmt"
	"regexp"
	"strings"
)

// Role is the access level granted by a code.
type Role string

const (
	// RoleTraining is granted by standard staff codes.
	RoleTraining Role = "training"
	// RoleSuperAdmin is granted by the privileged SG/SGA codes.
	RoleSuperAdmin Role = "superadmin"
)

const (
	privilegedPrefix = "MINUCST2026"
	standardPrefix   = "MINUCST-STAFF"
	standardCount    = 30
)

var (
	privilegedPattern = regexp.MustCompile(`^MINUCST2026-(SG|SGA)-[A-Z]+$`)
	standardPattern   = regexp.MustCompile(`^MINUCST-STAFF-(0[1-9]|[12][0-9]|30)$`)

	// Stripped from user input before any other processing.
	unsafeChars = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "", "&", "")
)

// GenerateValidCodes returns the fixed code universe: the two privileged
// codes followed by the standard codes 01 through 30.
func GenerateValidCodes() []string {
	codes := make([]string, 0, 2+standardCount)
	codes = append(codes,
		privilegedPrefix+"-SG-DIEGO",
		privilegedPrefix+"-SGA-NATASHA",
	)

	for i := 1; i <= standardCount; i++ {
		codes = append(codes, fmt.Sprintf("%s-%02d", standardPrefix, i))
	}

	return codes
}

// Sanitize strips markup characters, trims whitespace and uppercases the
// input.
func Sanitize(input string) string {
	return strings.ToUpper(strings.TrimSpace(unsafeChars.Replace(input)))
}

// IsValidFormat reports whether code has the privileged or standard shape.
// It expects already-sanitized input.
func IsValidFormat(code string) bool {
	return privilegedPattern.MatchString(code) || standardPattern.MatchString(code)
}

// RoleOf maps a code to its role. Any code carrying the SG- or SGA- tag is
// privileged.
func RoleOf(code string) Role {
	if strings.Contains(code, "SG-") || strings.Contains(code, "SGA-") {
		return RoleSuperAdmin
	}

	return RoleTraining
}
