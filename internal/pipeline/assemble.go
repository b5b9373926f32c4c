package pipeline

import (
	"log/slog"
	"strings"

	"github.com/dlclark/regexp2"

	"taxelev/internal"
	"taxelev/internal/pattern"
)

// RecordSeparator ends the head line of a record so the name grammar cannot
// run into the continuation lines.
const RecordSeparator = ";"

type assemblerState int

const (
	stateSkipping assemblerState = iota
	stateIdle
	stateOpen
)

func (s assemblerState) String() string {
	switch s {
	case stateSkipping:
		return "skipping"
	case stateOpen:
		return "open"
	default:
		return "idle"
	}
}

// Assembler groups canonical lines into logical taxon records.
type Assembler struct {
	head      *regexp2.Regexp
	tail      *regexp2.Regexp
	start     string
	end       string
	deferTail bool
}

func NewAssembler(set *pattern.Set, opts internal.Options) *Assembler {
	return &Assembler{
		head:      set.Head(),
		tail:      set.Elevation(),
		start:     opts.Start,
		end:       opts.End,
		deferTail: opts.ParseElevation,
	}
}

// AssembleStats counts what the state machine did with its input.
type AssembleStats struct {
	Lines     int
	Discarded int
	Halted    bool
}

// Assemble consumes canonical text line by line and returns records in
// source order.
func (a *Assembler) Assemble(text string) ([]internal.Record, AssembleStats) {
	state := stateIdle
	if a.start != "" {
		state = stateSkipping
	}

	var (
		records []internal.Record
		current *strings.Builder
		stats   AssembleStats
	)
	closeCurrent := func() {
		if current != nil {
			records = append(records, internal.Record{Index: len(records), Text: current.String()})
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		stats.Lines++

		if a.end != "" && strings.HasPrefix(line, a.end) {
			stats.Halted = true
			break
		}
		if state == stateSkipping {
			if strings.HasPrefix(line, a.start) {
				state = stateIdle
			}
			stats.Discarded++
			continue
		}

		isHead := a.matches(a.head, line)
		switch {
		case !a.deferTail && isHead && a.matches(a.tail, line):
			closeCurrent()
			records = append(records, internal.Record{Index: len(records), Text: line})
			state = stateIdle
		case isHead:
			closeCurrent()
			current = &strings.Builder{}
			current.WriteString(line)
			current.WriteString(RecordSeparator)
			state = stateOpen
		case !a.deferTail && state == stateOpen && a.matches(a.tail, line):
			current.WriteString(" ")
			current.WriteString(line)
			closeCurrent()
			state = stateIdle
		case state == stateOpen:
			current.WriteString(" ")
			current.WriteString(line)
		default:
			stats.Discarded++
		}
	}
	closeCurrent()

	slog.Debug("records assembled", "lines", stats.Lines, "records", len(records), "discarded", stats.Discarded, "halted", stats.Halted, "state", state)
	return records, stats
}

func (a *Assembler) matches(re *regexp2.Regexp, line string) bool {
	ok, err := pattern.Matches(re, line)
	if err != nil {
		slog.Debug("line match failed", "line", line, "err", err)
		return false
	}
	return ok
}
