package normalize

import "testing"

func TestUsername(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  alice  ", "alice"},
		{"Alice", "Alice"},
		// "e" + combining acute accent composes to a single rune
		{"Jose\u0301", "Jos\u00e9"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Username(tt.in); got != tt.want {
			t.Fatalf("Username(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestImagePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"images/alice.jpg", "images/alice.jpg"},
		{"./images/alice.jpg", "images/alice.jpg"},
		{`images\bob.png`, "images/bob.png"},
		{"images//x/../carol.jpg", "images/carol.jpg"},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := ImagePath(tt.in); got != tt.want {
			t.Fatalf("ImagePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
