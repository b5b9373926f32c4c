package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxelev/internal"
)

func assemble(opts internal.Options, text string) ([]internal.Record, AssembleStats) {
	return NewAssembler(Patterns(opts), opts).Assemble(text)
}

func texts(records []internal.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Text)
	}
	return out
}

func TestAssembleImmediateMode(t *testing.T) {
	text := "Genus alpha Author1 & Author2\n1200-1500 m\nGenus beta (Sect.) Author3\n800 m"
	records, stats := assemble(internal.Options{}, text)

	assert.Equal(t, []string{
		"Genus alpha Author1 & Author2; 1200-1500 m",
		"Genus beta (Sect.) Author3; 800 m",
	}, texts(records))
	assert.Equal(t, 0, records[0].Index)
	assert.Equal(t, 1, records[1].Index)
	assert.Equal(t, 4, stats.Lines)
	assert.Zero(t, stats.Discarded)
	assert.False(t, stats.Halted)
}

func TestAssembleSingleLineRecordAndDiscards(t *testing.T) {
	text := "Checklist of the valley\nGenus alpha Author 1200 m\nsee map\nGenus beta Author\nrocky slopes\n900 m"
	records, stats := assemble(internal.Options{}, text)

	assert.Equal(t, []string{
		"Genus alpha Author 1200 m",
		"Genus beta Author; rocky slopes 900 m",
	}, texts(records))
	assert.Equal(t, 2, stats.Discarded)
}

func TestAssembleOpenRecordClosedAtEOF(t *testing.T) {
	records, _ := assemble(internal.Options{}, "Genus alpha Author\nno elevation given")
	assert.Equal(t, []string{"Genus alpha Author; no elevation given"}, texts(records))
}

func TestAssembleNewHeadClosesOpenRecord(t *testing.T) {
	records, _ := assemble(internal.Options{}, "Genus alpha Author\nGenus beta Author\n800 m")
	assert.Equal(t, []string{"Genus alpha Author;", "Genus beta Author; 800 m"}, texts(records))
}

func TestAssembleStartAndEndDelimiters(t *testing.T) {
	text := "Genus gamma Author9\n900 m\nSPECIES LIST\nGenus alpha Author1\n1200 m\nINDEX\nGenus beta Author2\n800 m"
	opts := internal.Options{Start: "SPECIES LIST", End: "INDEX"}
	records, stats := assemble(opts, text)

	assert.Equal(t, []string{"Genus alpha Author1; 1200 m"}, texts(records))
	assert.True(t, stats.Halted)
	assert.Equal(t, 3, stats.Discarded)
	assert.Equal(t, 6, stats.Lines)
}

func TestAssembleStartNeverFound(t *testing.T) {
	records, stats := assemble(internal.Options{Start: "NOPE"}, "Genus alpha Author1\n1200 m")
	assert.Empty(t, records)
	assert.Equal(t, 2, stats.Discarded)
}

func TestAssembleDeferredModeMergesUntilNextHead(t *testing.T) {
	text := "Genus alpha Author1\n1200 m\nalso at 1500 m\nGenus beta Author2\n800 m"
	records, _ := assemble(internal.Options{ParseElevation: true}, text)

	require.Len(t, records, 2)
	assert.Equal(t, "Genus alpha Author1; 1200 m also at 1500 m", records[0].Text)
	assert.Equal(t, "Genus beta Author2; 800 m", records[1].Text)
}

func TestAssembleFeetTail(t *testing.T) {
	opts := internal.Options{Unit: internal.UnitFeet}
	records, _ := assemble(opts, "Genus alpha Author\n1200 m\n4000 ft")
	assert.Equal(t, []string{"Genus alpha Author; 1200 m 4000 ft"}, texts(records))
}
