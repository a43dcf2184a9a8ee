package embedding

import (
	"fmt"
	"regexp"
)

// ContentClass is the routing class of a text.
type ContentClass int

// Content classes.
const (
	ClassText ContentClass = iota
	ClassCode
)

// String implements fmt.Stringer.
func (c ContentClass) String() string {
	if c == ClassCode {
		return "code"
	}
	return "text"
}

// DefaultCodePatterns flag declaration-like structure.
var DefaultCodePatterns = []string{
	`\b(class|struct|interface|enum|trait|impl)\s+[A-Za-z_]\w*`,
	`\b(def|func|function|fn)\s+[A-Za-z_]\w*\s*\(`,
	`(?m)^\s*(import|package|#include|using|from\s+\S+\s+import)\b`,
	`(?m)[{};]\s*$`,
}

// DefaultMinCodeMatches is the number of patterns that must match for a text to count as code.
const DefaultMinCodeMatches = 1

// Classifier labels texts as code-like or natural language by counting
// how many of its patterns match.
type Classifier struct {
	patterns   []*regexp.Regexp
	minMatches int
}

// NewClassifier compiles the given patterns. minMatches below 1 is treated as 1.
func NewClassifier(patterns []string, minMatches int) (Classifier, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return Classifier{}, fmt.Errorf("compile code pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	if minMatches < 1 {
		minMatches = 1
	}
	return Classifier{patterns: compiled, minMatches: minMatches}, nil
}

// DefaultClassifier returns a classifier using DefaultCodePatterns.
func DefaultClassifier() Classifier {
	c, err := NewClassifier(DefaultCodePatterns, DefaultMinCodeMatches)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns ClassCode when at least minMatches patterns match.
func (c Classifier) Classify(text string) ContentClass {
	matches := 0
	for _, re := range c.patterns {
		if re.MatchString(text) {
			matches++
			if matches >= c.minMatches {
				return ClassCode
			}
		}
	}
	return ClassText
}

// Routing names the backend that receives each content class.
// An empty name means the first enabled backend.
type Routing struct {
	codeBackend string
	textBackend string
}

// NewRouting creates a Routing.
func NewRouting(codeBackend, textBackend string) Routing {
	return Routing{codeBackend: codeBackend, textBackend: textBackend}
}

// Backend returns the backend name for the class.
func (r Routing) Backend(class ContentClass) string {
	if class == ClassCode {
		return r.codeBackend
	}
	return r.textBackend
}
