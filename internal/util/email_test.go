package util

import "testing"

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"a@x.com", "a@x.com"},
		{"  Alice@Example.COM ", "alice@example.com"},
		{"BOB@x.org\n", "bob@x.org"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeEmail(tt.input); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"a@x.com", true},
		{"first.last+tag@sub.example.org", true},
		{"", false},
		{"not-an-email", false},
		{"a@localhost", false},
		{"Bob <bob@example.com>", false},
		{"<bob@example.com>", false},
		{"two@@example.com", false},
	}

	for _, tt := range tests {
		if got := IsValidEmail(tt.input); got != tt.want {
			t.Errorf("IsValidEmail(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
