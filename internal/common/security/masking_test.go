package security

import (
	"reflect"
	"testing"
)

func TestMaskPassword(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"secretpassword", "se****rd"},
		{"abcde", "ab****de"},
		{"test", "****"},
		{"a", "****"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := MaskPassword(tt.input); got != tt.expected {
			t.Errorf("MaskPassword(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"my-long-client-secret", "my-l****"},
		{"abcde", "abcd****"},
		{"shrt", "****"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := MaskSecret(tt.input); got != tt.expected {
			t.Errorf("MaskSecret(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestMaskIdentifier(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"12345678-1234-1234-1234-123456789012", "12345678****"},
		{"a1b2c3d4e5f6", "a1b2c3d4****"},
		{"short", "short****"},
	}

	for _, tt := range tests {
		if got := MaskIdentifier(tt.input); got != tt.expected {
			t.Errorf("MaskIdentifier(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestMaskAccessToken(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"eyJhbGciOiJSUzI1NiJ9.payload.signature", "eyJhbGci...ture"},
		{"12345678901234567", "12345678...4567"},
		{"1234567890123456", "****"},
		{"short", "****"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := MaskAccessToken(tt.input); got != tt.expected {
			t.Errorf("MaskAccessToken(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"user@example.com", "us****@ex****"},
		{"ab@cd", "****@****"},
		{"noc@peplink.example", "no****@pe****"},
		{"noemail", "no****il"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := MaskEmail(tt.input); got != tt.expected {
			t.Errorf("MaskEmail(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestMaskEmails(t *testing.T) {
	got := MaskEmails([]string{"user@example.com", "ops@corp.example"})
	want := []string{"us****@ex****", "op****@co****"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MaskEmails() = %v, want %v", got, want)
	}
}
