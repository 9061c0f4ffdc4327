package parser

import (
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "already clean",
			input:    "Iron Man Bobble Head",
			expected: "Iron Man Bobble Head",
		},
		{
			name:     "slash and colon",
			input:    "Spider-Man: Far/From Home",
			expected: "Spider-Man FarFrom Home",
		},
		{
			name:     "every invalid character",
			input:    `a<b>c:d"e/f\g|h?i*j`,
			expected: "abcdefghij",
		},
		{
			name:     "question marks",
			input:    "Who? What?",
			expected: "Who What",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "only invalid characters",
			input:    `<>:"/\|?*`,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSanitizeFilenameTruncates(t *testing.T) {
	long := strings.Repeat("ab", 120)
	result := SanitizeFilename(long)
	if got := len([]rune(result)); got != 150 {
		t.Fatalf("sanitized length = %d, want 150", got)
	}
	if !strings.HasPrefix(long, result) {
		t.Fatalf("truncation should keep the leading characters")
	}
}

func TestSanitizeFilenameStripsBeforeTruncating(t *testing.T) {
	// Invalid characters are removed first, so the cap applies to the
	// cleaned text rather than the raw input.
	input := strings.Repeat("a/", 150) + "zzz"
	result := SanitizeFilename(input)
	if strings.ContainsAny(result, `<>:"/\|?*`) {
		t.Fatalf("result still contains invalid characters: %q", result)
	}
	if got := len([]rune(result)); got != 150 {
		t.Fatalf("sanitized length = %d, want 150", got)
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "protocol relative",
			input:    "//example.com/a.jpg",
			expected: "https://example.com/a.jpg",
		},
		{
			name:     "absolute https",
			input:    "https://x/a.jpg",
			expected: "https://x/a.jpg",
		},
		{
			name:     "absolute http",
			input:    "http://x/a.jpg",
			expected: "http://x/a.jpg",
		},
		{
			name:     "relative path",
			input:    "/media/a.jpg",
			expected: "/media/a.jpg",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ResolveURL(tt.input)
			if result != tt.expected {
				t.Errorf("ResolveURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFileExtension(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "jpg",
			input:    "https://cdn.example.com/media/funko.jpg",
			expected: ".jpg",
		},
		{
			name:     "png",
			input:    "https://cdn.example.com/media/funko.png",
			expected: ".png",
		},
		{
			name:     "query string ignored",
			input:    "https://cdn.example.com/media/funko.webp?width=700&auto=webp",
			expected: ".webp",
		},
		{
			name:     "no extension defaults to jpg",
			input:    "https://cdn.example.com/media/funko",
			expected: ".jpg",
		},
		{
			name:     "dot in directory only",
			input:    "https://cdn.example.com/media.cache/funko",
			expected: ".jpg",
		},
		{
			name:     "protocol relative",
			input:    "//cdn.example.com/media/funko.gif",
			expected: ".gif",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FileExtension(tt.input)
			if result != tt.expected {
				t.Errorf("FileExtension(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
