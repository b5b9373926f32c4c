package pipeline

import (
	"log/slog"
	"strings"

	"github.com/dlclark/regexp2"

	"taxelev/internal/pattern"
)

// name matches the full name grammar, falling back to the leading run of
// name-like characters, then normalizes the result.
func (x *Extractor) name(text string) (string, bool) {
	raw, ok := firstMatch(x.set.FullName(), text)
	if !ok {
		raw, ok = firstMatch(pattern.FallbackName(), text)
		if !ok {
			return "", false
		}
		slog.Debug("name recovered by fallback", "record", text, "name", raw)
	}
	if x.set.Upper() {
		raw = LowercaseName(raw)
	}
	name := CleanName(raw)
	return name, name != ""
}

func firstMatch(re *regexp2.Regexp, text string) (string, bool) {
	m, err := pattern.Find(re, text)
	if err != nil || m == nil {
		return "", false
	}
	return m.String(), true
}

// LowercaseName lowers the genus tail, the species epithet and any
// infraspecific rank with its epithet. Author capitals are kept.
func LowercaseName(name string) string {
	out, err := pattern.LowercaseName().ReplaceFunc(name, func(m regexp2.Match) string {
		return strings.ToLower(m.String())
	}, -1, -1)
	if err != nil {
		return name
	}
	return out
}

// CleanName trims non-letters from both ends (a final period stays),
// collapses whitespace and drops the repeated citation of an autonym.
func CleanName(name string) string {
	out := replaceAll(pattern.NameEdges(), name, "")
	out = replaceAll(pattern.SpaceRuns(), out, " ")
	if ok, _ := pattern.Matches(pattern.RankToken(), out); ok {
		out = TrimAutonym(out)
	}
	return out
}

// TrimAutonym cuts the citation after an infraspecific epithet equal to the
// species epithet. Epithets that differ in any way, hyphens included, leave
// the name as is.
func TrimAutonym(name string) string {
	m, err := pattern.Find(pattern.NameLevels(), name)
	if err != nil || m == nil {
		return name
	}
	species, _ := pattern.Group(m, "species")
	infra, _ := pattern.Group(m, "infra")
	if species == "" || species != infra {
		return name
	}
	return replaceAll(pattern.InfraTail(), name, "${keep}")
}

func replaceAll(re *regexp2.Regexp, input, replacement string) string {
	out, err := re.Replace(input, replacement, -1, -1)
	if err != nil {
		return input
	}
	return out
}
