package validators

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"
	"github.com/plaenen/shopcore/pkg/password"
)

// ToUserFriendlyName converts snake_case field names to user-friendly names:
// "first_name" becomes "First name".
func ToUserFriendlyName(fieldName string) string {
	if fieldName == "" {
		return fieldName
	}
	friendly := strings.ToLower(strings.ReplaceAll(fieldName, "_", " "))
	return strings.ToUpper(friendly[:1]) + friendly[1:]
}

// ValidateRequired fails on an empty or blank value.
func ValidateRequired(fieldName, value string) *ValidationResult {
	name := ToUserFriendlyName(fieldName)
	if strings.TrimSpace(value) == "" {
		return invalid(fieldName, value, ValidationCodeRequired,
			fmt.Sprintf("%s is required.", name),
			fmt.Sprintf("Please provide a valid %s.", strings.ToLower(name)))
	}
	return valid(fieldName, value)
}

// ValidateStringLength checks that value has between minLength and maxLength runes.
func ValidateStringLength(fieldName, value string, minLength, maxLength int) *ValidationResult {
	name := ToUserFriendlyName(fieldName)
	n := utf8.RuneCountInString(value)

	switch {
	case n < minLength:
		return invalid(fieldName, value, ValidationCodeInvalid,
			fmt.Sprintf("%s must be at least %d characters long.", name, minLength),
			fmt.Sprintf("Please provide a %s with at least %d characters.", strings.ToLower(name), minLength))
	case n > maxLength:
		return invalid(fieldName, value, ValidationCodeInvalid,
			fmt.Sprintf("%s must be no more than %d characters long.", name, maxLength),
			fmt.Sprintf("Please provide a %s with no more than %d characters.", strings.ToLower(name), maxLength))
	}
	return valid(fieldName, value)
}

// ValidateStringPattern checks value against pattern. patternName describes the
// expected format to the user.
func ValidateStringPattern(fieldName, value string, pattern *regexp.Regexp, patternName string) *ValidationResult {
	name := ToUserFriendlyName(fieldName)
	if value == "" {
		return ValidateRequired(fieldName, value)
	}
	if !pattern.MatchString(value) {
		return invalid(fieldName, value, ValidationCodeInvalid,
			fmt.Sprintf("Invalid %s format.", strings.ToLower(name)),
			fmt.Sprintf("Please provide a %s matching the %s format.", strings.ToLower(name), patternName))
	}
	return valid(fieldName, value)
}

// ValidateEmail checks that value is a syntactically valid email address.
func ValidateEmail(fieldName, value string) *ValidationResult {
	const action = "Please provide a valid email address, e.g., 'name@example.com'."
	name := ToUserFriendlyName(fieldName)

	if value == "" {
		return invalid(fieldName, value, ValidationCodeRequired, fmt.Sprintf("%s is required.", name), action)
	}
	if !govalidator.IsEmail(value) {
		return invalid(fieldName, MaskEmail(value), ValidationCodeInvalid,
			fmt.Sprintf("Please enter a valid %s.", strings.ToLower(name)), action)
	}
	return valid(fieldName, MaskEmail(value))
}

// ValidatePassword checks presence and minimum entropy. The value is never echoed.
func ValidatePassword(fieldName, value string) *ValidationResult {
	name := ToUserFriendlyName(fieldName)

	if value == "" {
		return invalid(fieldName, MaskPassword(value), ValidationCodeRequired,
			fmt.Sprintf("%s is required.", name),
			fmt.Sprintf("Please provide a valid %s.", strings.ToLower(name)))
	}
	if err := password.ValidateStrength(value); err != nil {
		return invalid(fieldName, MaskPassword(value), ValidationCodeInvalid,
			fmt.Sprintf("%s is too weak.", name),
			err.Error())
	}
	return valid(fieldName, MaskPassword(value))
}

// ValidateAccepted requires a checkbox-style field to be true.
func ValidateAccepted(fieldName string, value bool) *ValidationResult {
	name := ToUserFriendlyName(fieldName)
	if !value {
		return invalid(fieldName, "false", ValidationCodeRequired,
			fmt.Sprintf("%s must be accepted.", name),
			fmt.Sprintf("Please accept the %s.", strings.ToLower(name)))
	}
	return valid(fieldName, "true")
}
