// Package normalize turns raw FAA registry text fields into typed nullable
// values. All functions are pure and total: malformed input yields nil, never
// an error or panic.
package normalize

import (
	"strconv"
	"strings"
	"time"
)

// ToNullableString trims the value and returns nil for blank or
// whitespace-only input.
func ToNullableString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// ToNullableInt parses a base-10 integer, returning nil on any parse failure.
func ToNullableInt(value string) *int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil
	}
	return &parsed
}

// ToNullableBoolYN maps the registry's Y/N flags to booleans. Anything other
// than a case-insensitive "Y" or "N" is nil.
func ToNullableBoolYN(value string) *bool {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "Y":
		b := true
		return &b
	case "N":
		b := false
		return &b
	default:
		return nil
	}
}

// ToNullableDateYYYYMMDD parses the registry's compact 8-digit date form into
// a UTC calendar date. Non-digit characters are stripped first; anything that
// is not exactly 8 digits, or has an out-of-range month or day, is nil.
func ToNullableDateYYYYMMDD(value string) *time.Time {
	var digits strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	s := digits.String()
	if len(s) != 8 {
		return nil
	}

	year, _ := strconv.Atoi(s[0:4])
	month, _ := strconv.Atoi(s[4:6])
	day, _ := strconv.Atoi(s[6:8])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return &t
}

// TailNumber normalizes an N-number: trimmed and uppercased, empty stays
// empty.
func TailNumber(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// OwnerExternalKey derives a stable natural key for an owner from its name
// and address fields. Parts are uppercased, trimmed and joined with a fixed
// delimiter; the concatenation is order-sensitive so consistent FAA fields
// always collapse to the same key.
func OwnerExternalKey(name, addressLine1, addressLine2, city, state, postalCode, country *string) string {
	parts := []*string{name, addressLine1, addressLine2, city, state, postalCode, country}
	out := make([]string, len(parts))
	for i, p := range parts {
		if p != nil {
			out[i] = strings.ToUpper(strings.TrimSpace(*p))
		}
	}
	return strings.Join(out, "|")
}
