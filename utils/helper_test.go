package utils

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

func TestParseDecimal(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1500000", "1500000"},
		{"1,500,000.00", "1500000"},
		{"  250.50  ", "250.5"},
		{"", "0"},
		{"-12,000", "-12000"},
	}
	for _, tc := range cases {
		d, err := ParseDecimal(tc.in)
		if err != nil {
			t.Fatalf("ParseDecimal(%q) error: %v", tc.in, err)
		}
		if d.String() != tc.want {
			t.Fatalf("ParseDecimal(%q) = %s, want %s", tc.in, d, tc.want)
		}
	}

	if _, err := ParseDecimal("abc"); err == nil {
		t.Fatal("expected an error for a non-numeric value")
	}
}

func TestWithinTolerance_Boundary(t *testing.T) {
	tol := decimal.New(100, -2) // 1.00
	cases := []struct {
		a, b string
		want bool
	}{
		{"100.00", "100.00", true},
		{"100.00", "100.50", true},
		{"100.00", "101.00", true}, // inclusive at the boundary
		{"100.00", "99.00", true},
		{"100.00", "101.01", false},
		{"100.00", "98.99", false},
	}
	for _, tc := range cases {
		got := WithinTolerance(mustDecimal(t, tc.a), mustDecimal(t, tc.b), tol)
		if got != tc.want {
			t.Fatalf("WithinTolerance(%s, %s, 1.00) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestConvertToDate_UsesTimezone(t *testing.T) {
	// 22:30Z is 01:30 next day in Kampala (UTC+3).
	instant := time.Date(2026, 3, 9, 22, 30, 0, 0, time.UTC)
	date, err := ConvertToDate(instant, "Africa/Kampala")
	if err != nil {
		t.Fatalf("ConvertToDate error: %v", err)
	}
	if date.Day() != 10 || date.Hour() != 0 {
		t.Fatalf("ConvertToDate = %s, want midnight on the 10th local time", date)
	}
}

func TestContentHash(t *testing.T) {
	h1 := ContentHash([]byte("evening report bytes"))
	h2 := ContentHash([]byte("evening report bytes"))
	h3 := ContentHash([]byte("morning report bytes"))

	if h1 != h2 {
		t.Fatal("identical content must hash identically")
	}
	if h1 == h3 {
		t.Fatal("different content must hash differently")
	}
	if len(h1) != 44 {
		t.Fatalf("base64 sha256 is 44 chars, got %d (%q)", len(h1), h1)
	}
}

func TestRowHash(t *testing.T) {
	parent := ContentHash([]byte("file"))

	same := RowHash(parent, "AIRTEL", "100.00", "50.00")
	if same != RowHash(parent, "AIRTEL", "100.00", "50.00") {
		t.Fatal("row hash must be deterministic")
	}
	if same == RowHash(parent, "AIRTEL", "50.00", "100.00") {
		t.Fatal("row hash must be sensitive to part order")
	}
	if same == RowHash(ContentHash([]byte("other file")), "AIRTEL", "100.00", "50.00") {
		t.Fatal("row hash must be scoped to its parent file")
	}
	if len(same) != 44 {
		t.Fatalf("row hash length = %d, want 44", len(same))
	}
}
