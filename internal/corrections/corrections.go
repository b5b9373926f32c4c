// Package corrections holds the per-document find/replace rules applied
// after the standard sanitizer rules. Rules come from a YAML file and from
// the sqlite store; both are keyed by document key (the input file stem).
package corrections

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"taxelev/internal/pattern"
)

// Table maps a document key to its ordered correction rules.
//
// A file looks like:
//
//	flora_2019:
//	  - pattern: 'Carex\n'
//	    replacement: 'Carex '
type Table map[string][]pattern.Rule

// Lookup returns the rules for key, or an empty slice.
func (t Table) Lookup(key string) []pattern.Rule {
	rules := t[key]
	if rules == nil {
		return []pattern.Rule{}
	}
	out := make([]pattern.Rule, len(rules))
	copy(out, rules)
	return out
}

// Keys returns the document keys in sorted order.
func (t Table) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge returns a new table with the rules of other appended after the
// rules of t for each key.
func (t Table) Merge(other Table) Table {
	out := make(Table, len(t)+len(other))
	for k, rules := range t {
		out[k] = append([]pattern.Rule(nil), rules...)
	}
	for k, rules := range other {
		out[k] = append(out[k], rules...)
	}
	return out
}

// Validate compiles every rule and reports the first bad one.
func (t Table) Validate() error {
	for _, key := range t.Keys() {
		if _, err := pattern.CompileRules(t[key]); err != nil {
			return fmt.Errorf("corrections for %q: %w", key, err)
		}
	}
	return nil
}

// Parse decodes a YAML rules document.
func Parse(data []byte) (Table, error) {
	t := Table{}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse corrections: %w", err)
	}
	for key, rules := range t {
		for i, r := range rules {
			if r.Pattern == "" {
				return nil, fmt.Errorf("corrections for %q: rule %d has an empty pattern", key, i+1)
			}
		}
	}
	return t, nil
}

// LoadFile reads a YAML rules file. A missing file is an empty table.
func LoadFile(path string) (Table, error) {
	if path == "" {
		return Table{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Table{}, nil
	}
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Store is the part of the sqlite store corrections are read from.
type Store interface {
	ListCorrections() (map[string][]pattern.Rule, error)
}

// Load merges the file rules with the stored ones; stored rules run last.
func Load(path string, store Store) (Table, error) {
	t, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return t, nil
	}
	stored, err := store.ListCorrections()
	if err != nil {
		return nil, fmt.Errorf("load stored corrections: %w", err)
	}
	return t.Merge(Table(stored)), nil
}
