// Package filter decides which users and meetings a run processes using shell-style patterns
package filter

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Policy is one include list and one exclude list of glob patterns
type Policy struct {
	include []glob.Glob
	exclude []glob.Glob
}

// NewPolicy compiles include and exclude patterns. Patterns follow fnmatch:
// * and ? match any character including '/', [...] and [!...] match sets,
// and braces and backslashes are literal.
func NewPolicy(include, exclude []string) (*Policy, error) {
	inc, err := compile(include)
	if err != nil {
		return nil, fmt.Errorf("include pattern: %w", err)
	}
	exc, err := compile(exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude pattern: %w", err)
	}
	return &Policy{include: inc, exclude: exc}, nil
}

func compile(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(literalMeta(p))
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// literalMeta escapes the glob syntax fnmatch does not have ({, }, \) outside
// character classes
func literalMeta(pattern string) string {
	var b strings.Builder
	inClass := false
	classStart := 0
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case inClass:
			// ] closes the class unless it is the first member
			if c == ']' && i > classStart {
				inClass = false
			}
		case c == '[':
			inClass = true
			classStart = i + 1
			if i+1 < len(pattern) && pattern[i+1] == '!' {
				classStart++
			}
		case c == '{' || c == '}' || c == '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

// ShouldIgnore reports whether value is filtered out. A value must match an
// include pattern when any are configured, and must not match any exclude pattern.
func (p *Policy) ShouldIgnore(value string) bool {
	if p == nil {
		return false
	}
	if len(p.include) > 0 && !matchAny(p.include, value) {
		return true
	}
	return matchAny(p.exclude, value)
}

func matchAny(globs []glob.Glob, value string) bool {
	for _, g := range globs {
		if g.Match(value) {
			return true
		}
	}
	return false
}

// Set holds the email and topic policies of a run
type Set struct {
	Emails *Policy
	Topics *Policy
}

// Patterns is the raw pattern configuration for a Set
type Patterns struct {
	EmailsToInclude []string
	EmailsToExclude []string
	TopicsToInclude []string
	TopicsToExclude []string
}

// NewSet compiles both policies
func NewSet(p Patterns) (*Set, error) {
	emails, err := NewPolicy(p.EmailsToInclude, p.EmailsToExclude)
	if err != nil {
		return nil, fmt.Errorf("emails: %w", err)
	}
	topics, err := NewPolicy(p.TopicsToInclude, p.TopicsToExclude)
	if err != nil {
		return nil, fmt.Errorf("topics: %w", err)
	}
	return &Set{Emails: emails, Topics: topics}, nil
}

// ShouldIgnoreUser applies the email policy
func (s *Set) ShouldIgnoreUser(email string) bool {
	return s.Emails.ShouldIgnore(email)
}

// ShouldIgnoreTopic applies the topic policy
func (s *Set) ShouldIgnoreTopic(topic string) bool {
	return s.Topics.ShouldIgnore(topic)
}
