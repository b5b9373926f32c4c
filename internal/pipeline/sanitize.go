package pipeline

import (
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"taxelev/internal/pattern"
)

// maxSanitizePasses bounds the fixpoint loop over the built-in rules. Joining
// a wrapped line can expose one more match (an initial at a line end), so a
// single pass is not always stable.
const maxSanitizePasses = 4

var baseRules = mustRules(pattern.SanitizeRules)

func mustRules(rules []pattern.Rule) []pattern.CompiledRule {
	compiled, err := pattern.CompileRules(rules)
	if err != nil {
		panic(err)
	}
	return compiled
}

// Sanitizer turns raw document text into canonical lines. Extra rules run
// once, after the built-in ones, in the order given.
type Sanitizer struct {
	extra []pattern.CompiledRule
}

// NewSanitizer compiles the document specific rules up front so a bad
// expression is reported before any text is processed.
func NewSanitizer(extra []pattern.Rule) (*Sanitizer, error) {
	compiled, err := pattern.CompileRules(extra)
	if err != nil {
		return nil, fmt.Errorf("correction rules: %w", err)
	}
	return &Sanitizer{extra: compiled}, nil
}

// Sanitize never fails: a rule that errors (match timeout) is skipped.
func (s *Sanitizer) Sanitize(raw string) string {
	text := norm.NFC.String(raw)
	for pass := 0; pass < maxSanitizePasses; pass++ {
		next := canonicalLines(applyRules(baseRules, text))
		if next == text {
			break
		}
		text = next
	}
	if len(s.extra) > 0 {
		text = canonicalLines(applyRules(s.extra, text))
	}
	return text
}

// Sanitize applies the built-in rules followed by extra.
func Sanitize(raw string, extra []pattern.Rule) (string, error) {
	s, err := NewSanitizer(extra)
	if err != nil {
		return "", err
	}
	return s.Sanitize(raw), nil
}

func applyRules(rules []pattern.CompiledRule, text string) string {
	for i, rule := range rules {
		out, err := rule.Apply(text)
		if err != nil {
			slog.Warn("sanitize rule skipped", "rule", i+1, "pattern", rule.Pattern, "err", err)
			continue
		}
		text = out
	}
	return text
}

func canonicalLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
