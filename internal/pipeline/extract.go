package pipeline

import (
	"context"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"taxelev/internal"
	"taxelev/internal/pattern"
	"taxelev/internal/util"
)

// SkipReason says why a record produced no row.
type SkipReason string

const (
	SkipNone      SkipReason = ""
	SkipElevation SkipReason = "no_elevation"
	SkipName      SkipReason = "no_name"
)

// Extraction is the outcome of one record: a row, or the reason there is none.
type Extraction struct {
	Record internal.Record
	Row    internal.Row
	Skip   SkipReason
}

func (e Extraction) OK() bool { return e.Skip == SkipNone }

// Extractor pulls the scientific name and elevation bounds out of records.
// It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	set     *pattern.Set
	feet    bool
	deferEl bool
	workers int
}

func NewExtractor(set *pattern.Set, opts internal.Options) *Extractor {
	return &Extractor{
		set:     set,
		feet:    opts.EffectiveUnit() == internal.UnitFeet,
		deferEl: opts.ParseElevation,
		workers: runtime.GOMAXPROCS(0),
	}
}

// Extract handles one record. Elevation is tried first, as a record without
// one is never reported.
func (x *Extractor) Extract(rec internal.Record) Extraction {
	out := Extraction{Record: rec}

	var (
		min, max int
		ok       bool
	)
	if x.deferEl {
		min, max, ok = x.allElevations(rec.Text)
	} else {
		min, max, ok = x.anchoredElevation(rec.Text)
	}
	if !ok {
		out.Skip = SkipElevation
		return out
	}

	name, ok := x.name(rec.Text)
	if !ok {
		out.Skip = SkipName
		return out
	}

	out.Row = internal.Row{ScientificName: name, ElevationMin: min, ElevationMax: max}
	return out
}

// ExtractAll runs Extract over records with bounded parallelism and returns
// results in record order.
func (x *Extractor) ExtractAll(ctx context.Context, records []internal.Record) ([]Extraction, error) {
	results := make([]Extraction, len(records))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(x.workers, 1))
	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = x.Extract(rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (x *Extractor) anchoredElevation(text string) (int, int, bool) {
	m, err := pattern.Find(x.set.Elevation(), text)
	if err != nil || m == nil {
		return 0, 0, false
	}
	low, _ := pattern.Group(m, "low")
	high, _ := pattern.Group(m, "high")
	min, max, err := util.ParseElevation(low, high, x.feet)
	if err != nil {
		slog.Debug("elevation not parsed", "match", m.String(), "err", err)
		return 0, 0, false
	}
	return min, max, true
}

func (x *Extractor) allElevations(text string) (int, int, bool) {
	matches, err := pattern.FindAll(x.set.Elevation(), text)
	if err != nil {
		slog.Debug("elevation scan stopped", "err", err)
	}
	values := make([]int, 0, 2*len(matches))
	for _, m := range matches {
		low, _ := pattern.Group(m, "low")
		high, _ := pattern.Group(m, "high")
		unit, _ := pattern.Group(m, "unit")
		min, max, err := util.ParseElevation(low, high, unit == "ft")
		if err != nil {
			continue
		}
		values = append(values, min, max)
	}
	return util.Bounds(values)
}
