package corrections

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxelev/internal/pattern"
)

type stubStore struct {
	rules map[string][]pattern.Rule
	err   error
}

func (s stubStore) ListCorrections() (map[string][]pattern.Rule, error) {
	return s.rules, s.err
}

const sample = `
flora_2019:
  - pattern: 'Carex\n'
    replacement: 'Carex '
  - pattern: 'ca\. '
    replacement: ''
alpine:
  - pattern: 'msm'
    replacement: 'm'
`

func TestParseKeepsRuleOrder(t *testing.T) {
	table, err := Parse([]byte(sample))
	require.NoError(t, err)

	rules := table.Lookup("flora_2019")
	require.Len(t, rules, 2)
	assert.Equal(t, `Carex\n`, rules[0].Pattern)
	assert.Equal(t, "Carex ", rules[0].Replacement)
	assert.Equal(t, `ca\. `, rules[1].Pattern)
	assert.Equal(t, []string{"alpine", "flora_2019"}, table.Keys())
}

func TestLookupUnknownKeyIsEmpty(t *testing.T) {
	table, err := Parse([]byte(sample))
	require.NoError(t, err)

	rules := table.Lookup("missing")
	require.NotNil(t, rules)
	assert.Empty(t, rules)
}

func TestLookupReturnsCopy(t *testing.T) {
	table := Table{"doc": {{Pattern: "a", Replacement: "b"}}}
	rules := table.Lookup("doc")
	rules[0].Replacement = "changed"
	assert.Equal(t, "b", table["doc"][0].Replacement)
}

func TestParseRejectsEmptyPattern(t *testing.T) {
	_, err := Parse([]byte("doc:\n  - replacement: x\n"))
	require.Error(t, err)
}

func TestValidateReportsBadExpression(t *testing.T) {
	table := Table{"doc": {{Pattern: "(unclosed", Replacement: ""}}}
	err := table.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"doc"`)
}

func TestLoadFileMissingIsEmpty(t *testing.T) {
	table, err := LoadFile(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Empty(t, table)
}

func TestLoadMergesStoredRulesAfterFileRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrections.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	store := stubStore{rules: map[string][]pattern.Rule{
		"flora_2019": {{Pattern: "x", Replacement: "y"}},
		"new_doc":    {{Pattern: "p", Replacement: "q"}},
	}}
	table, err := Load(path, store)
	require.NoError(t, err)

	flora := table.Lookup("flora_2019")
	require.Len(t, flora, 3)
	assert.Equal(t, "x", flora[2].Pattern)
	assert.Len(t, table.Lookup("new_doc"), 1)
	assert.Len(t, table.Lookup("alpine"), 1)
}

func TestLoadPropagatesStoreError(t *testing.T) {
	_, err := Load("", stubStore{err: errors.New("db closed")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db closed")
}
