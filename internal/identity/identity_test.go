package identity

import (
	"errors"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		region string
		want   string
	}{
		{"already E.164", "+15551234567", "", "+15551234567"},
		{"US national with dashes", "555-123-4567", "US", "+15551234567"},
		{"US national with parens", "(555) 123-4567", "US", "+15551234567"},
		{"US national with dots", "555.123.4567", "US", "+15551234567"},
		{"US with country code no plus", "1 555 123 4567", "US", "+15551234567"},
		{"empty region defaults to US", "555-123-4567", "", "+15551234567"},
		{"GB national", "020 7946 0958", "GB", "+442079460958"},
		{"GB international from US region", "+44 20 7946 0958", "US", "+442079460958"},
		{"whitespace trimmed", "  +15551234567  ", "", "+15551234567"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := Normalize(tt.raw, tt.region)
			if err != nil {
				t.Fatalf("Normalize(%q, %q) error = %v", tt.raw, tt.region, err)
			}
			if id.Canonical != tt.want {
				t.Errorf("Normalize(%q, %q) = %q, want %q", tt.raw, tt.region, id.Canonical, tt.want)
			}
			if id.Kind != KindPhone {
				t.Errorf("Kind = %v, want KindPhone", id.Kind)
			}
		})
	}
}

func TestNormalizeSurfaceFormsAgree(t *testing.T) {
	forms := []string{"+15551234567", "555-123-4567", "(555) 123-4567", "15551234567"}
	var canonical string
	for i, form := range forms {
		id, err := Normalize(form, "US")
		if err != nil {
			t.Fatalf("Normalize(%q) error = %v", form, err)
		}
		if i == 0 {
			canonical = id.Canonical
			continue
		}
		if id.Canonical != canonical {
			t.Errorf("Normalize(%q) = %q, want %q", form, id.Canonical, canonical)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Alice@Example.COM", "alice@example.com"},
		{"bob@icloud.com", "bob@icloud.com"},
		{"  carol@example.com ", "carol@example.com"},
	}
	for _, tt := range tests {
		id, err := Normalize(tt.raw, "US")
		if err != nil {
			t.Fatalf("Normalize(%q) error = %v", tt.raw, err)
		}
		if id.Canonical != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.raw, id.Canonical, tt.want)
		}
		if id.Kind != KindEmail {
			t.Errorf("Kind = %v, want KindEmail", id.Kind)
		}
	}
}

func TestNormalizeInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"letters", "not a number"},
		{"too short", "12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw, "US")
			if err == nil {
				t.Fatalf("Normalize(%q) = nil error, want ErrInvalidIdentifier", tt.raw)
			}
			if !errors.Is(err, ErrInvalidIdentifier) {
				t.Errorf("error = %v, want ErrInvalidIdentifier", err)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	a, err := Normalize("555-123-4567", "US")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Normalize("+15551234567", "")
	if err != nil {
		t.Fatal(err)
	}
	c, err := Normalize("+15559876543", "")
	if err != nil {
		t.Fatal(err)
	}

	if !Match(a, b) {
		t.Error("Match(a, b) = false for same number in different forms")
	}
	if !Match(b, a) {
		t.Error("Match is not symmetric")
	}
	if Match(a, c) {
		t.Error("Match(a, c) = true for different numbers")
	}
	if Match(Identifier{}, Identifier{}) {
		t.Error("Match of two zero identifiers = true")
	}
}

func TestMatchRaw(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		stored string
		want   bool
	}{
		{"same E.164", "+15551234567", "+15551234567", true},
		{"national vs international", "555-123-4567", "+15551234567", true},
		{"different numbers", "+15551234567", "+15559876543", false},
		{"email case-insensitive", "Alice@Example.com", "alice@example.com", true},
		{"email mismatch", "alice@example.com", "bob@example.com", false},
		{"email vs phone", "alice@example.com", "+15551234567", false},
		{"empty query", "", "+15551234567", false},
		{"empty stored", "+15551234567", "", false},
		{"prefix is not a match", "+1555123", "+15551234567", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchRaw(tt.query, tt.stored, "US"); got != tt.want {
				t.Errorf("MatchRaw(%q, %q) = %v, want %v", tt.query, tt.stored, got, tt.want)
			}
			if got := MatchRaw(tt.stored, tt.query, "US"); got != tt.want {
				t.Errorf("MatchRaw(%q, %q) = %v, want %v (symmetry)", tt.stored, tt.query, got, tt.want)
			}
		})
	}
}

func TestMatchRawSuffixFallback(t *testing.T) {
	// Stored handles occasionally carry bare national digits that no
	// region parses. The trailing-seven-digit fallback still links them.
	if !MatchRaw("+15551234567", "5551234567", "ZZ") {
		t.Error("suffix fallback failed for unparseable region")
	}
	if MatchRaw("+15551234567", "123456", "ZZ") {
		t.Error("matched against fewer than seven digits")
	}
}
