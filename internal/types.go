package internal

import (
	"errors"
	"fmt"
	"strings"
)

type Unit string

type NameCase string

const (
	UnitMeter Unit = "meter"
	UnitFeet  Unit = "feet"

	CaseLower NameCase = "lowercase"
	CaseUpper NameCase = "uppercase"
)

var (
	ErrInvalidUnit       = errors.New("invalid unit")
	ErrInvalidCase       = errors.New("invalid case")
	ErrInvalidDigitRange = errors.New("invalid digit range")
)

// ParseUnit accepts the long and abbreviated unit spellings.
func ParseUnit(value string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "m", "meter":
		return UnitMeter, nil
	case "ft", "feet":
		return UnitFeet, nil
	default:
		return "", fmt.Errorf("%w: %q (want m|meter|ft|feet)", ErrInvalidUnit, value)
	}
}

// ParseNameCase accepts L/lowercase and U/uppercase.
func ParseNameCase(value string) (NameCase, error) {
	switch strings.TrimSpace(value) {
	case "", "L", "lowercase":
		return CaseLower, nil
	case "U", "uppercase":
		return CaseUpper, nil
	default:
		return "", fmt.Errorf("%w: %q (want L|lowercase|U|uppercase)", ErrInvalidCase, value)
	}
}

// DigitRange bounds how many digits a number may have to count as an elevation.
type DigitRange struct {
	Min int
	Max int
}

// NewDigitRange validates exactly two values, as given on the command line.
func NewDigitRange(values []int) (*DigitRange, error) {
	if len(values) == 0 {
		return nil, nil
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("%w: takes 2 values, %d given", ErrInvalidDigitRange, len(values))
	}
	r := DigitRange{Min: values[0], Max: values[1]}
	if r.Min < 1 || r.Max < r.Min {
		return nil, fmt.Errorf("%w: %d,%d", ErrInvalidDigitRange, r.Min, r.Max)
	}
	return &r, nil
}

// Options is the immutable extraction intent for one document.
type Options struct {
	Start          string
	End            string
	Unit           Unit
	Case           NameCase
	Digits         *DigitRange
	ParseElevation bool
}

// EffectiveUnit is empty when elevations are parsed per value.
func (o Options) EffectiveUnit() Unit {
	if o.ParseElevation {
		return ""
	}
	if o.Unit == "" {
		return UnitMeter
	}
	return o.Unit
}

// Record is one logical taxon entry assembled from canonical lines.
type Record struct {
	Index int
	Text  string
}

// Row is one extracted taxon; elevations are in meters.
type Row struct {
	ScientificName string
	ElevationMin   int
	ElevationMax   int
}

type DocumentSource string

const (
	SourceFile  DocumentSource = "file"
	SourceEmail DocumentSource = "email"
)

// Document statuses: fetched documents wait for processing, the rest are final
// until the document is reset.
const (
	StatusFetched   = "fetched"
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
	StatusExported  = "exported"
)

type DocumentRow struct {
	ID         int
	Source     DocumentSource
	Provider   string
	ExternalID string
	Name       string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type RunRow struct {
	ID         int
	TraceID    string
	DocumentID int
	Name       string
	Options    string
	Records    int
	Rows       int
	Skipped    int
	CreatedAt  string
}

type InboundMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
