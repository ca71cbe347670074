package utils

import (
	"fmt"
	"regexp"
)

// MaxIdentifierLength is the Postgres NAMEDATALEN limit minus the terminator.
const MaxIdentifierLength = 63

var (
	identifierPattern   = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	generationIdPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)
)

// ValidateIdentifier accepts lowercase SQL identifiers that never need quoting.
// Table names cannot be bound as query parameters, so every dynamic name goes through here.
func ValidateIdentifier(name string) error {
	if len(name) == 0 || len(name) > MaxIdentifierLength {
		return fmt.Errorf("invalid identifier %q: length must be 1..%d", name, MaxIdentifierLength)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

func IsValidIdentifier(name string) bool {
	return ValidateIdentifier(name) == nil
}

// ValidateGenerationId accepts the alphanumeric product generation ids used as table prefixes.
func ValidateGenerationId(generationId string) error {
	if !generationIdPattern.MatchString(generationId) {
		return fmt.Errorf("invalid generation id %q", generationId)
	}
	return nil
}
