package validators

import "strings"

// MaskString hides all but the last four characters of value.
func MaskString(value string) string {
	if len(value) < 4 {
		return "************"
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(value string) string {
	local, domain, ok := strings.Cut(value, "@")
	if !ok || local == "" {
		return MaskString(value)
	}
	return local[:1] + strings.Repeat("*", len(local)-1) + "@" + domain
}

// MaskPassword returns a fixed-width mask so the length is not revealed.
func MaskPassword(string) string {
	return "*************************"
}
