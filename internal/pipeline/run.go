package pipeline

import (
	"context"
	"log/slog"

	"taxelev/internal"
	"taxelev/internal/pattern"
)

// Patterns derives the pattern set for one configuration.
func Patterns(opts internal.Options) *pattern.Set {
	set := pattern.Base()
	if opts.Case == internal.CaseUpper {
		set = set.WithUpperCase()
	}
	switch {
	case opts.ParseElevation:
		set = set.WithUnit(pattern.AnyUnit)
	case opts.EffectiveUnit() == internal.UnitFeet:
		set = set.WithUnit(pattern.Feet)
	}
	if opts.Digits != nil {
		set = set.WithDigitRange(opts.Digits.Min, opts.Digits.Max)
	}
	return set
}

// Result is the output of one document run.
type Result struct {
	Text    string
	Rows    []internal.Row
	Lines   int
	Records int
	Skipped int
	Halted  bool
}

// Parser wires sanitizer, assembler and extractor for one configuration.
type Parser struct {
	opts      internal.Options
	set       *pattern.Set
	sanitizer *Sanitizer
	assembler *Assembler
	extractor *Extractor
}

// NewParser fails only on configuration problems (bad correction rules).
func NewParser(opts internal.Options, rules []pattern.Rule) (*Parser, error) {
	sanitizer, err := NewSanitizer(rules)
	if err != nil {
		return nil, err
	}
	set := Patterns(opts)
	return &Parser{
		opts:      opts,
		set:       set,
		sanitizer: sanitizer,
		assembler: NewAssembler(set, opts),
		extractor: NewExtractor(set, opts),
	}, nil
}

func (p *Parser) Patterns() *pattern.Set { return p.set }

func (p *Parser) Sanitize(raw string) string {
	return p.sanitizer.Sanitize(raw)
}

// Parse runs the whole pipeline over raw text.
func (p *Parser) Parse(ctx context.Context, raw string) (Result, error) {
	text := p.sanitizer.Sanitize(raw)
	return p.ParseSanitized(ctx, text)
}

// ParseSanitized skips the sanitizer, for text that already went through it.
func (p *Parser) ParseSanitized(ctx context.Context, text string) (Result, error) {
	records, stats := p.assembler.Assemble(text)
	extractions, err := p.extractor.ExtractAll(ctx, records)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Text:    text,
		Rows:    make([]internal.Row, 0, len(extractions)),
		Lines:   stats.Lines,
		Records: len(records),
		Halted:  stats.Halted,
	}
	for _, ex := range extractions {
		if !ex.OK() {
			res.Skipped++
			slog.Debug("record skipped", "index", ex.Record.Index, "reason", ex.Skip, "text", ex.Record.Text)
			continue
		}
		res.Rows = append(res.Rows, ex.Row)
	}
	return res, nil
}
