package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		// empty -> default
		{"", 10, 10},
		// valid ints
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		// invalid -> default (no trim)
		{"x", 5, 5},
		{" 42", 7, 7},
		// overflow -> default
		{"999999999999999999999999", -1, -1},
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct {
		s        string
		def, max int
		want     int
	}{
		{"", 50, 100, 50},     // empty -> default
		{"junk", 50, 100, 50}, // unparseable -> default
		{"25", 50, 100, 25},   // in range
		{"0", 50, 100, 1},     // floor
		{"-3", 50, 100, 1},    // floor
		{"500", 50, 100, 100}, // ceiling
	}

	for _, tc := range cases {
		if got := ClampLimit(tc.s, tc.def, tc.max); got != tc.want {
			t.Fatalf("ClampLimit(%q, %d, %d) = %d; want %d", tc.s, tc.def, tc.max, got, tc.want)
		}
	}
}
