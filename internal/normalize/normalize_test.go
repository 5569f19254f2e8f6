package normalize

import (
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestToNullableString(t *testing.T) {
	tests := []struct {
		in   string
		want *string
	}{
		{"", nil},
		{"   ", nil},
		{"\t\n", nil},
		{"CESSNA", strPtr("CESSNA")},
		{"  CESSNA  ", strPtr("CESSNA")},
	}

	for _, tt := range tests {
		got := ToNullableString(tt.in)
		if (got == nil) != (tt.want == nil) {
			t.Errorf("ToNullableString(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		if got != nil && *got != *tt.want {
			t.Errorf("ToNullableString(%q) = %q, want %q", tt.in, *got, *tt.want)
		}
	}
}

func TestToNullableInt(t *testing.T) {
	tests := []struct {
		in   string
		want *int
	}{
		{"", nil},
		{"  ", nil},
		{"abc", nil},
		{"12.5", nil},
		{"42", intPtr(42)},
		{" 1977 ", intPtr(1977)},
		{"-3", intPtr(-3)},
	}

	for _, tt := range tests {
		got := ToNullableInt(tt.in)
		if (got == nil) != (tt.want == nil) {
			t.Errorf("ToNullableInt(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		if got != nil && *got != *tt.want {
			t.Errorf("ToNullableInt(%q) = %d, want %d", tt.in, *got, *tt.want)
		}
	}
}

func intPtr(i int) *int { return &i }

func TestToNullableBoolYN(t *testing.T) {
	tests := []struct {
		in   string
		want string // "true", "false" or "nil"
	}{
		{"Y", "true"},
		{"y", "true"},
		{" n ", "false"},
		{"N", "false"},
		{"", "nil"},
		{"YES", "nil"},
		{"1", "nil"},
	}

	for _, tt := range tests {
		got := ToNullableBoolYN(tt.in)
		var gotStr string
		switch {
		case got == nil:
			gotStr = "nil"
		case *got:
			gotStr = "true"
		default:
			gotStr = "false"
		}
		if gotStr != tt.want {
			t.Errorf("ToNullableBoolYN(%q) = %s, want %s", tt.in, gotStr, tt.want)
		}
	}
}

func TestToNullableDateYYYYMMDD(t *testing.T) {
	valid := []struct {
		in   string
		want time.Time
	}{
		{"20240115", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"19771231", time.Date(1977, 12, 31, 0, 0, 0, 0, time.UTC)},
		{"2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)}, // separators stripped
	}

	for _, tt := range valid {
		got := ToNullableDateYYYYMMDD(tt.in)
		if got == nil {
			t.Errorf("ToNullableDateYYYYMMDD(%q) = nil, want %v", tt.in, tt.want)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ToNullableDateYYYYMMDD(%q) = %v, want %v", tt.in, *got, tt.want)
		}
	}

	invalid := []string{
		"",
		"   ",
		"2024011",    // 7 digits
		"202401155",  // 9 digits
		"20241315",   // month 13
		"20240100",   // day 0
		"20240132",   // day 32
		"not-a-date",
	}

	for _, in := range invalid {
		if got := ToNullableDateYYYYMMDD(in); got != nil {
			t.Errorf("ToNullableDateYYYYMMDD(%q) = %v, want nil", in, *got)
		}
	}
}

func TestTailNumber(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  ", ""},
		{"n123ab", "N123AB"},
		{" N456CD ", "N456CD"},
	}

	for _, tt := range tests {
		if got := TailNumber(tt.in); got != tt.want {
			t.Errorf("TailNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOwnerExternalKey(t *testing.T) {
	key := OwnerExternalKey(
		strPtr("Acme Aviation"),
		strPtr("100 Main St"),
		nil,
		strPtr("Wichita"),
		strPtr("KS"),
		strPtr("67201"),
		strPtr("US"),
	)
	want := "ACME AVIATION|100 MAIN ST||WICHITA|KS|67201|US"
	if key != want {
		t.Errorf("OwnerExternalKey = %q, want %q", key, want)
	}

	// Incidental whitespace and casing must not change the key.
	same := OwnerExternalKey(
		strPtr("  acme aviation "),
		strPtr("100 MAIN ST  "),
		nil,
		strPtr("wichita"),
		strPtr(" ks"),
		strPtr("67201 "),
		strPtr(" us "),
	)
	if same != key {
		t.Errorf("key not stable under whitespace/case: %q vs %q", same, key)
	}

	// Field order is significant: swapping city and state makes a new owner.
	swapped := OwnerExternalKey(
		strPtr("Acme Aviation"),
		strPtr("100 Main St"),
		nil,
		strPtr("KS"),
		strPtr("Wichita"),
		strPtr("67201"),
		strPtr("US"),
	)
	if swapped == key {
		t.Error("expected order-sensitive key, got identical keys")
	}
}
