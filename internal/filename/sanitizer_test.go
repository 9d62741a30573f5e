package filename

import (
	"strings"
	"testing"
)

func TestStripInvalid(t *testing.T) {
	s := New(Options{})
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain topic", "Weekly Team Meeting", "Weekly Team Meeting"},
		{"colon and slash", "Q4 Planning: Budget/Goals", "Q4 Planning BudgetGoals"},
		{"quotes and pipes", `Say "hi" | bye?`, "Say hi  bye"},
		{"control characters", "Tab\there\x01", "Tabhere"},
		{"unicode preserved", "Café Meeting 🎉", "Café Meeting 🎉"},
		{"decomposed accents normalized", "Cafe\u0301", "Caf\u00e9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.StripInvalid(tt.input); got != tt.expected {
				t.Errorf("StripInvalid(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	s := New(Options{})
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"clean name", "2022.11.06-Chapter-1.mp4", "2022.11.06-Chapter-1.mp4"},
		{"invalid characters", "a<b>c:d.mp4", "abcd.mp4"},
		{"trailing dots and spaces", "name. . ", "name"},
		{"empty", "", "untitled"},
		{"only invalid", "???", "untitled"},
		{"reserved device name", "CON.txt", "_CON.txt"},
		{"reserved lower case", "aux", "_aux"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SanitizeFilename(tt.input); got != tt.expected {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeFilenameTruncates(t *testing.T) {
	s := New(Options{MaxNameLength: 10})
	got := s.SanitizeFilename(strings.Repeat("é", 8))
	if len(got) > 10 {
		t.Errorf("Expected at most 10 bytes, got %d (%q)", len(got), got)
	}
	if got != strings.Repeat("é", 5) {
		t.Errorf("Expected whole runes only, got %q", got)
	}
}

func TestSanitizeFilenameTruncationKeepsExtension(t *testing.T) {
	tests := []struct {
		name     string
		max      int
		input    string
		expected string
	}{
		{"long topic", 20, strings.Repeat("a", 30) + ".mp4", strings.Repeat("a", 16) + ".mp4"},
		{"multibyte stem", 12, strings.Repeat("é", 6) + ".m4a", strings.Repeat("é", 4) + ".m4a"},
		{"dot at the cut", 10, "abcde.fghij.mp4", "abcde.mp4"},
		{"short enough", 20, "clip.mp4", "clip.mp4"},
		{"no extension", 5, "abcdefgh", "abcde"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(Options{MaxNameLength: tt.max}).SanitizeFilename(tt.input)
			if got != tt.expected {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
			if len(got) > tt.max {
				t.Errorf("Expected at most %d bytes, got %d", tt.max, len(got))
			}
		})
	}
}

func TestSanitizeFilepath(t *testing.T) {
	s := New(Options{DefaultName: "recording"})
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"single folder", "Chapter-1 - 2022.11.06", "Chapter-1 - 2022.11.06"},
		{"nested folders", "Author/Book Title/Ch: 1", "Author/Book Title/Ch 1"},
		{"parent references dropped", "../../etc/passwd", "etc/passwd"},
		{"backslashes are separators", `a\b`, "a/b"},
		{"empty", "", "recording"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SanitizeFilepath(tt.input); got != tt.expected {
				t.Errorf("SanitizeFilepath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestExtensionForType(t *testing.T) {
	tests := map[string]string{
		"MP4":        "mp4",
		"M4A":        "m4a",
		"TIMELINE":   "json",
		"TRANSCRIPT": "vtt",
		"CHAT":       "txt",
		"unknown":    "bin",
	}
	for input, expected := range tests {
		if got := ExtensionForType(input); got != expected {
			t.Errorf("ExtensionForType(%q) = %q, want %q", input, got, expected)
		}
	}
}
