package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxelev/internal"
	"taxelev/internal/pattern"
)

func TestParseEndToEnd(t *testing.T) {
	raw := "Genus alpha Author1 & Author2\n1200-1500 m\nGenus beta (Sect.) Author3\n800 m"
	p, err := NewParser(internal.Options{}, nil)
	require.NoError(t, err)

	res, err := p.Parse(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, []internal.Row{
		{ScientificName: "Genus alpha Author1 & Author2", ElevationMin: 1200, ElevationMax: 1500},
		{ScientificName: "Genus beta (Sect.) Author3", ElevationMin: 800, ElevationMax: 800},
	}, res.Rows)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 4, res.Lines)
	assert.Zero(t, res.Skipped)
}

func TestParseSurveyFixture(t *testing.T) {
	doc, err := ReadDocument(filepath.Join("testdata", "survey.txt"))
	require.NoError(t, err)
	assert.Equal(t, "survey", doc.Key)

	p, err := NewParser(internal.Options{}, nil)
	require.NoError(t, err)
	res, err := p.Parse(context.Background(), doc.Text)
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, "Genus alpha Author1 & Author2", res.Rows[0].ScientificName)
	assert.Equal(t, "Genus beta (Sect.) Author3", res.Rows[1].ScientificName)
	assert.Equal(t, 3, res.Records)
	assert.Equal(t, 1, res.Skipped)
}

func TestParseWithCorrectionRules(t *testing.T) {
	raw := "Genus alpha Author1\nca. 1200 msm\n"
	p, err := NewParser(internal.Options{}, []pattern.Rule{{Pattern: `msm\b`, Replacement: "m"}})
	require.NoError(t, err)

	res, err := p.Parse(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 1200, res.Rows[0].ElevationMin)
}

func TestNewParserRejectsBadRules(t *testing.T) {
	_, err := NewParser(internal.Options{}, []pattern.Rule{{Pattern: "(x"}})
	require.Error(t, err)
}

func TestPatternsFollowOptions(t *testing.T) {
	assert.Equal(t, pattern.Meters, Patterns(internal.Options{}).Unit())
	assert.Equal(t, pattern.Feet, Patterns(internal.Options{Unit: internal.UnitFeet}).Unit())
	assert.Equal(t, pattern.AnyUnit, Patterns(internal.Options{Unit: internal.UnitFeet, ParseElevation: true}).Unit())
	assert.True(t, Patterns(internal.Options{Case: internal.CaseUpper}).Upper())
}

func TestNewRunRow(t *testing.T) {
	opts := internal.Options{Unit: internal.UnitFeet, Digits: &internal.DigitRange{Min: 3, Max: 4}}
	run := NewRunRow("", "alps", opts, 5, 1)

	assert.NotEmpty(t, run.TraceID)
	assert.Equal(t, "alps", run.Name)
	assert.Equal(t, 5, run.Records)
	assert.Equal(t, 1, run.Skipped)
	assert.JSONEq(t, `{"unit":"feet","case":"lowercase","digits":[3,4],"parseElevations":false}`, run.Options)
}
