package match

import (
	"reflect"
	"testing"
)

func TestNormalizeQuestion(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"whitespace only", "   \t\n ", ""},
		{"question mark", "What is your first name?", "what is your first name"},
		{"collapse spaces", "  Phone    Number  ", "phone number"},
		{"apostrophe", "What's your e-mail?", "whats your e-mail"},
		{"hyphenated kept", "Are you open to full-time work?", "are you open to full-time work"},
		{"standalone hyphen", "Salary - expected", "salary expected"},
		{"dangling hyphens", "-remote- work--", "remote work"},
		{"repeated inner hyphen", "self--employed", "self-employed"},
		{"slash splits words", "First/Last Name*", "first last name"},
		{"digits kept", "Address Line 2:", "address line 2"},
		{"unicode letters", "Nombre Completo (¿cuál?)", "nombre completo cuál"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeQuestion(tc.input)
			if got != tc.expected {
				t.Fatalf("expected %q got %q", tc.expected, got)
			}
		})
	}
}

func TestNormalizeQuestionIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"What is your first name?",
		"  --  ",
		"Re-enter   E-MAIL!!",
		"a - b -- c-d -e f-",
		"Gender / Identité de genre",
		"İstanbul’s postal code",
		"LinkedIn URL (optional)",
	}
	for _, input := range inputs {
		once := NormalizeQuestion(input)
		twice := NormalizeQuestion(once)
		if once != twice {
			t.Fatalf("not idempotent for %q: %q then %q", input, once, twice)
		}
	}
}

func TestPatternKeywords(t *testing.T) {
	tests := []struct {
		source   string
		expected []string
	}{
		{`\b(first|given|preferred) name\b`, []string{"first", "given", "preferred", "name"}},
		{`\be-?mail( address)?\b`, []string{"mail", "address"}},
		{`\bnotice period\b`, []string{"notice", "period"}},
		{`\bname\b.*\bname\b`, []string{"name"}},
		{`(?i)\bcv\b`, nil},
	}

	for _, tc := range tests {
		t.Run(tc.source, func(t *testing.T) {
			got := PatternKeywords(tc.source)
			if !reflect.DeepEqual(got, tc.expected) {
				t.Fatalf("expected %v got %v", tc.expected, got)
			}
		})
	}
}

func TestWordOverlap(t *testing.T) {
	if got := WordOverlap("what is your salary", "what is your salary"); got != 1 {
		t.Fatalf("identical text: expected 1 got %v", got)
	}
	if got := WordOverlap("", "anything"); got != 0 {
		t.Fatalf("empty text: expected 0 got %v", got)
	}
	got := WordOverlap("what is your desired salary", "what is your salary")
	if got != 0.8 {
		t.Fatalf("expected 0.8 got %v", got)
	}
}

func TestCountPresent(t *testing.T) {
	got := CountPresent("period of notice required", []string{"notice", "period", "weeks"})
	if got != 2 {
		t.Fatalf("expected 2 got %d", got)
	}
}
