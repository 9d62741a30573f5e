// Package filename makes rendered recording names safe to use on the local filesystem
package filename

import (
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// invalidChars are rejected by at least one of the filesystems recordings land on
var invalidChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// Options configures a Sanitizer
type Options struct {
	// MaxNameLength caps each path component in bytes (default: 255)
	MaxNameLength int

	// DefaultName replaces components that are empty after cleaning (default: "untitled")
	DefaultName string
}

// Sanitizer cleans topics, file names and folder paths
type Sanitizer struct {
	maxNameLength int
	defaultName   string
	normalizer    transform.Transformer
}

// New creates a Sanitizer with the given options
func New(options Options) *Sanitizer {
	maxLength := options.MaxNameLength
	if maxLength <= 0 {
		maxLength = 255
	}
	defaultName := options.DefaultName
	if defaultName == "" {
		defaultName = "untitled"
	}
	return &Sanitizer{
		maxNameLength: maxLength,
		defaultName:   defaultName,
		normalizer:    transform.Chain(norm.NFC, runes.Remove(runes.In(unicode.Cc))),
	}
}

// StripInvalid NFC-normalizes s and removes characters that are invalid in file names.
// Everything else, spaces and case included, is preserved.
func (s *Sanitizer) StripInvalid(value string) string {
	normalized, _, err := transform.String(s.normalizer, value)
	if err != nil {
		normalized = value
	}
	return invalidChars.ReplaceAllString(normalized, "")
}

// SanitizeFilename cleans a single path component
func (s *Sanitizer) SanitizeFilename(name string) string {
	cleaned := strings.TrimSpace(s.StripInvalid(name))
	cleaned = strings.TrimRight(cleaned, ". ")
	if cleaned == "" {
		return s.defaultName
	}

	base := cleaned
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	if reservedNames[strings.ToUpper(base)] {
		cleaned = "_" + cleaned
	}

	return truncateStem(cleaned, s.maxNameLength)
}

// SanitizeFilepath cleans every component of a slash separated relative path.
// Parent references and empty components are dropped so the result stays below its root.
func (s *Sanitizer) SanitizeFilepath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	var parts []string
	for _, part := range strings.Split(p, "/") {
		part = strings.TrimSpace(part)
		if part == "" || part == "." || part == ".." {
			continue
		}
		parts = append(parts, s.SanitizeFilename(part))
	}
	if len(parts) == 0 {
		return s.defaultName
	}
	return path.Join(parts...)
}

// ExtensionForType returns the extension Zoom uses for a file type when the API omits one
func ExtensionForType(fileType string) string {
	switch strings.ToLower(fileType) {
	case "mp4":
		return "mp4"
	case "m4a":
		return "m4a"
	case "timeline":
		return "json"
	case "transcript", "cc":
		return "vtt"
	case "chat":
		return "txt"
	case "csv":
		return "csv"
	default:
		return "bin"
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
// truncateStem shortens the part before the extension so the extension survives
func truncateStem(s string, n int) string {
	if len(s) <= n {
		return s
	}
	ext := path.Ext(s)
	if ext == "" || len(ext) >= n/2 {
		return truncate(s, n)
	}
	stem := truncate(strings.TrimSuffix(s, ext), n-len(ext))
	if stem == "" {
		return truncate(s, n)
	}
	return stem + ext
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return strings.TrimRight(s[:cut], ". ")
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
