// Package pattern holds the grammar of scientific names and elevation tokens
// found in botanical survey text.
//
// Expressions are written for github.com/dlclark/regexp2, which adds the
// lookaround the grammar relies on. Sub-expressions that the grammar would
// call recursively (nested brackets, repeated author joins) are expanded to a
// fixed depth instead.
package pattern

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

const (
	// HybridMarker is an optional leading multiplication sign.
	HybridMarker = `(?:×\s?)?`
	// InfraspecificRank is f., ssp., subsp. or var. in any case.
	InfraspecificRank = `\b(?i:f|ssp|subsp|var)\.`
	// LowercaseEpithet is a word of 3+ lowercase letters, optionally hyphenated.
	LowercaseEpithet = `\p{Ll}{3,}(?:-?\p{Ll}{3,})?`

	authorToken = `\p{Lu}[\p{L}\p{M}\p{Nd}.'-]+(?:\sf\.)?`
	lowerClass  = `\p{Ll}`
	upperClass  = `\p{Lu}`

	bracketDepth = 2
	joinDepth    = 2

	matchTimeout = 2 * time.Second
)

// UnitMarker selects which unit suffix an elevation token must carry.
type UnitMarker int

const (
	Meters UnitMarker = iota
	Feet
	AnyUnit
)

func (u UnitMarker) String() string {
	switch u {
	case Feet:
		return "ft"
	case AnyUnit:
		return "m|ft"
	default:
		return "m"
	}
}

// BracketedQualifier matches an optional parenthesized clause with up to
// bracketDepth levels of nesting, plus one trailing space.
func BracketedQualifier() string {
	return `(?:` + bracketed(bracketDepth) + `\s?)?`
}

func bracketed(depth int) string {
	if depth <= 1 {
		return `\([^()]+\)`
	}
	return `\((?:[^()]|` + bracketed(depth-1) + `)+\)`
}

func prefixExpr() string {
	return `^` + HybridMarker + `[A-Z]\p{Ll}+\s` + HybridMarker + LowercaseEpithet
}

func headExpr() string {
	return prefixExpr() + `\s?(?:` + BracketedQualifier() + `\p{Lu}|` + InfraspecificRank + `)`
}

// citationExpr is an author citation: optional bracket, up to two short
// particles ("de", "van"), an author token, an optional comma-joined author
// leading into "&", then up to joinDepth "&"/"ex" joins.
func citationExpr(named bool) string {
	author := authorToken
	firstJoin := `(?:\s(?:&|ex)\s` + authorToken + `)?`
	if named {
		author = `(?<author>` + authorToken + `)`
		firstJoin = `(?<join>` + firstJoin + `)`
	}
	var b strings.Builder
	b.WriteString(`\s?`)
	b.WriteString(BracketedQualifier())
	b.WriteString(`(?:\p{L}{1,3}\s){0,2}`)
	b.WriteString(author)
	b.WriteString(`(?:,\s` + authorToken + `(?=\s&))?`)
	b.WriteString(firstJoin)
	for i := 1; i < joinDepth; i++ {
		b.WriteString(`(?:\s(?:&|ex)\s` + authorToken + `)?`)
	}
	return b.String()
}

func fullNameExpr() string {
	return prefixExpr() +
		`(?<citation>` + citationExpr(true) + `)` +
		`(?<infra>\s(?:×|` + InfraspecificRank + `)\s?` + LowercaseEpithet + `(?:` + citationExpr(false) + `)?)?`
}

func elevationExpr(unit UnitMarker, digits string) string {
	number := `[0-9]` + digits
	expr := `(?:\b|(?<=\p{L}))(?<low>` + number + `)(?:\s?-\s?(?<high>` + number + `))?`
	switch unit {
	case Feet:
		return expr + `(?=\s?ft\b)`
	case AnyUnit:
		return expr + `\s?(?<unit>m|ft)\b`
	default:
		return expr + `(?=\s?m\b)`
	}
}

// Set is an immutable collection of compiled head, name and elevation
// patterns. Transforms return a new Set and never touch the receiver.
type Set struct {
	upper  bool
	unit   UnitMarker
	digits string

	head      *regexp2.Regexp
	fullName  *regexp2.Regexp
	elevation *regexp2.Regexp
}

// Base returns the lowercase, meter, any-digit-count pattern set.
func Base() *Set {
	return build(false, Meters, "+")
}

// WithUpperCase matches names printed in capitals. Applying it twice is a no-op.
func (s *Set) WithUpperCase() *Set {
	return build(true, s.unit, s.digits)
}

// WithUnit restricts (or widens) the elevation unit marker.
func (s *Set) WithUnit(unit UnitMarker) *Set {
	return build(s.upper, unit, s.digits)
}

// WithDigitRange only accepts elevation numbers with min..max digits.
func (s *Set) WithDigitRange(min, max int) *Set {
	return build(s.upper, s.unit, fmt.Sprintf("{%d,%d}", min, max))
}

func build(upper bool, unit UnitMarker, digits string) *Set {
	return &Set{
		upper:     upper,
		unit:      unit,
		digits:    digits,
		head:      mustCompile(caseFold(headExpr(), upper)),
		fullName:  mustCompile(caseFold(fullNameExpr(), upper)),
		elevation: mustCompile(elevationExpr(unit, digits)),
	}
}

func caseFold(expr string, upper bool) string {
	if !upper {
		return expr
	}
	return strings.ReplaceAll(expr, lowerClass, upperClass)
}

func (s *Set) Upper() bool { return s.upper }

func (s *Set) Unit() UnitMarker { return s.unit }

func (s *Set) Head() *regexp2.Regexp { return s.head }

func (s *Set) FullName() *regexp2.Regexp { return s.fullName }

func (s *Set) Elevation() *regexp2.Regexp { return s.elevation }

// Expr returns the source of a named pattern: head, name or elevation.
func (s *Set) Expr(name string) string {
	switch name {
	case "head":
		return s.head.String()
	case "name":
		return s.fullName.String()
	case "elevation":
		return s.elevation.String()
	default:
		return ""
	}
}

func mustCompile(expr string) *regexp2.Regexp {
	re := regexp2.MustCompile(expr, regexp2.None)
	re.MatchTimeout = matchTimeout
	return re
}

// Compile builds a caller supplied expression with the same timeout guard.
func Compile(expr string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = matchTimeout
	return re, nil
}

// Matches reports whether re matches anywhere in s.
func Matches(re *regexp2.Regexp, s string) (bool, error) {
	return re.MatchString(s)
}

// Find returns the first match or nil.
func Find(re *regexp2.Regexp, s string) (*regexp2.Match, error) {
	return re.FindStringMatch(s)
}

// FindAll returns every non-overlapping match in order.
func FindAll(re *regexp2.Regexp, s string) ([]*regexp2.Match, error) {
	var out []*regexp2.Match
	m, err := re.FindStringMatch(s)
	for m != nil && err == nil {
		out = append(out, m)
		m, err = re.FindNextMatch(m)
	}
	return out, err
}

// Group returns the text of a named group and whether it took part in the match.
func Group(m *regexp2.Match, name string) (string, bool) {
	if m == nil {
		return "", false
	}
	g := m.GroupByName(name)
	if g == nil || len(g.Captures) == 0 {
		return "", false
	}
	return g.String(), true
}
