package pattern

import (
	"fmt"

	"github.com/dlclark/regexp2"
)

// Rule is one find/replace step applied to raw survey text.
type Rule struct {
	Pattern     string `yaml:"pattern" json:"pattern"`
	Replacement string `yaml:"replacement" json:"replacement"`
}

// CompiledRule is a Rule ready to run.
type CompiledRule struct {
	Rule
	re *regexp2.Regexp
}

// Apply runs the rule over text. A timed out rule leaves text unchanged.
func (r CompiledRule) Apply(text string) (string, error) {
	out, err := r.re.Replace(text, r.Replacement, -1, -1)
	if err != nil {
		return text, err
	}
	return out, nil
}

// CompileRules compiles rules in order; the first bad expression fails the batch.
func CompileRules(rules []Rule) ([]CompiledRule, error) {
	out := make([]CompiledRule, 0, len(rules))
	for i, r := range rules {
		re, err := Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d %q: %w", i+1, r.Pattern, err)
		}
		out = append(out, CompiledRule{Rule: r, re: re})
	}
	return out, nil
}

// SanitizeRules is the fixed cleanup sequence for raw text.
var SanitizeRules = []Rule{
	{Pattern: ` +`, Replacement: " "},
	{Pattern: `[\n\f\r]{2,}`, Replacement: "\n"},
	{Pattern: `[-—–]+`, Replacement: "-"},
	{Pattern: "[`'‘’“”\"]+", Replacement: "'"},
	{Pattern: `(?i)\b(?:et|and)\b`, Replacement: "&"},
	// initials, hyphen wrap, page numbers, space inside a range
	{
		Pattern: `(?<=\b\p{Lu}\.)\s(?=\p{Lu})` +
			`|(?<=\p{Ll})-\n(?=\p{Ll})` +
			`|(?<=\p{Ll}-)\n(?=\p{Lu})` +
			`|(?<=\n)[0-9]{1,3}\n` +
			`|(?<=[0-9]-)\s+(?=[0-9]+ ?(?:m|ft)\b)`,
		Replacement: "",
	},
	// continuation lines of one entry
	{
		Pattern: `(?<=\([\p{L}. ]+|[\p{Ll}.]\)|&|\bex)\n` +
			`|(?<=\p{Ll}{2})(?=\p{Lu})` +
			`|(?<=` + InfraspecificRank + `(?:\s?[a-z-]+)?)\n` +
			`|(?<=[0-9])\n(?=(?:m|ft)\b)` +
			`|\n(?=` + InfraspecificRank + `)`,
		Replacement: " ",
	},
}

var (
	// lowercaseName picks the genus tail plus species, and an infraspecific
	// rank with its epithet, for names printed in capitals.
	lowercaseName = mustCompile(`(?<=^` + HybridMarker + `[A-Z])\p{L}+\s[\p{L}-]+|(?<=[^.])` + InfraspecificRank + `\s[\p{L}-]+`)
	// nameLevels captures the species epithet and the infraspecific epithet.
	nameLevels = mustCompile(`^` + HybridMarker + `\p{L}+\s(?<species>[\p{L}-]+).+?` + InfraspecificRank + `\s(?<infra>[\p{L}-]+)`)
	// infraTail splits an infraspecific name from the citation that follows it.
	infraTail = mustCompile(`(?<keep>` + InfraspecificRank + `\s[\p{Ll}-]+).*`)
	// fallbackName recovers a leading run of name-like characters.
	fallbackName = mustCompile(`^[\p{L}&()'., -]+`)
	nameEdges    = mustCompile(`^[^A-Za-z]+|(?!\.)[^\p{L}\p{Nd}]+$`)
	spaceRuns    = mustCompile(`\s+`)
	rankTokens   = mustCompile(`\s(?:f|ssp|subsp|var)\.`)
)

func LowercaseName() *regexp2.Regexp { return lowercaseName }

func NameLevels() *regexp2.Regexp { return nameLevels }

func InfraTail() *regexp2.Regexp { return infraTail }

func FallbackName() *regexp2.Regexp { return fallbackName }

func NameEdges() *regexp2.Regexp { return nameEdges }

func SpaceRuns() *regexp2.Regexp { return spaceRuns }

func RankToken() *regexp2.Regexp { return rankTokens }
