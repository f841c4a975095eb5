package validator

import (
	"strings"
)

// ValidateRequired reports whether value carries any non-whitespace content
func ValidateRequired(value string) bool {
	return strings.TrimSpace(value) != ""
}

// ValidatePositiveHours reports whether an hour amount is usable in a request
func ValidatePositiveHours(amount float64) bool {
	return amount > 0
}

// ValidatePeriodName rejects period names that would break line identity.
// The pipe is the separator in the composite line key.
func ValidatePeriodName(name string) bool {
	return ValidateRequired(name) && !strings.Contains(name, "|")
}
