package core

import (
	"fmt"
	"slices"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBuildSearchTokens_SplitsWords(t *testing.T) {
	tokens := BuildSearchTokens(map[string]any{"name": "Ali Hassan"})

	for _, want := range []string{"ali", "al", "ha", "has", "hass", "hassa", "hassan"} {
		if !slices.Contains(tokens, want) {
			t.Errorf("tokens missing %q: %v", want, tokens)
		}
	}
	if slices.Contains(tokens, "ali hassan") {
		t.Errorf("tokens contain the unsplit value: %v", tokens)
	}
}

func TestBuildSearchTokens_Deterministic(t *testing.T) {
	record := map[string]any{
		"name":    "Ali Hassan",
		"email":   "ali@example.com",
		"company": "Acme Corp",
		"score":   42,
	}
	first := BuildSearchTokens(record)
	for i := 0; i < 20; i++ {
		if got := BuildSearchTokens(record); !slices.Equal(got, first) {
			t.Fatalf("run %d produced %v, want %v", i, got, first)
		}
	}
}

func TestBuildSearchTokens_Numbers(t *testing.T) {
	tokens := BuildSearchTokens(map[string]any{
		"amount": 12345.5,
		"count":  int64(77),
		"active": true,
	})

	for _, want := range []string{"12345", "12", "123", "1234", "5", "77"} {
		if !slices.Contains(tokens, want) {
			t.Errorf("tokens missing %q: %v", want, tokens)
		}
	}
	for _, tok := range tokens {
		if tok == "true" {
			t.Errorf("booleans should be ignored, got %v", tokens)
		}
	}
}

func TestBuildSearchTokens_LongWords(t *testing.T) {
	tokens := BuildSearchTokens(map[string]any{"note": "Internationalization"})

	if slices.Contains(tokens, "internationalization") {
		t.Error("words longer than 10 characters should only contribute prefixes")
	}
	if !slices.Contains(tokens, "internatio") {
		t.Errorf("missing 10-character prefix: %v", tokens)
	}
	for _, tok := range tokens {
		if n := utf8.RuneCountInString(tok); n < 1 || n > MaxTokenLength {
			t.Errorf("token %q has length %d", tok, n)
		}
		if tok != strings.ToLower(tok) {
			t.Errorf("token %q is not lowercase", tok)
		}
	}
}

func TestBuildSearchTokens_Deduplicates(t *testing.T) {
	tokens := BuildSearchTokens(map[string]any{
		"a": "Berlin berlin",
		"b": "BERLIN",
	})
	seen := make(map[string]bool)
	for _, tok := range tokens {
		if seen[tok] {
			t.Errorf("duplicate token %q in %v", tok, tokens)
		}
		seen[tok] = true
	}
}

func TestBuildSearchTokens_Cap(t *testing.T) {
	record := make(map[string]any)
	for i := 0; i < 1500; i++ {
		record[fmt.Sprintf("f%04d", i)] = fmt.Sprintf("w%06dx", i)
	}

	tokens := BuildSearchTokens(record)
	if len(tokens) != MaxSearchTokens {
		t.Errorf("len(tokens) = %d, want %d", len(tokens), MaxSearchTokens)
	}
}

func TestBuildSearchTokens_Empty(t *testing.T) {
	if got := BuildSearchTokens(map[string]any{}); len(got) != 0 {
		t.Errorf("empty record produced %v", got)
	}
	if got := BuildSearchTokens(map[string]any{"x": "  --  "}); len(got) != 0 {
		t.Errorf("punctuation-only record produced %v", got)
	}
}

func TestSearchToken(t *testing.T) {
	tests := []struct {
		query, want string
	}{
		{"Ali Hassan", "ali"},
		{"  HASSAN", "hassan"},
		{"internationalization", "internatio"},
		{"--", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := searchToken(tt.query); got != tt.want {
			t.Errorf("searchToken(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}
