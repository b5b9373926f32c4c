package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxelev/internal"
	"taxelev/internal/config"
	"taxelev/internal/pipeline"
)

const surveyText = "Genus alpha Author1 & Author2\n1200-1500 m\nGenus beta (Sect.) Author3\n800 m\n"

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		DBPath:       filepath.Join(dir, "taxelev.db"),
		RawDocDir:    filepath.Join(dir, "raw"),
		OutputDir:    filepath.Join(dir, "out"),
		CSVSeparator: ";",
	}
}

func writeSurvey(t *testing.T, name, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func execute(t *testing.T, cfg config.Config, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(cfg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(blob)), "\n")
}

func TestExtractWritesCSV(t *testing.T) {
	cfg := testConfig(t)
	input := writeSurvey(t, "alps.txt", surveyText)

	out, err := execute(t, cfg, input, "-i")
	require.NoError(t, err)
	assert.Contains(t, out, "records=2 rows=2 skipped=0")
	assert.Contains(t, out, "run 1 written to")

	lines := readLines(t, filepath.Join(cfg.OutputDir, "alps.csv"))
	assert.Equal(t, []string{
		"id;scientificName;elev_min;elev_max",
		"1;Genus alpha Author1 & Author2;1200;1500",
		"2;Genus beta (Sect.) Author3;800;800",
	}, lines)
}

func TestExtractOutputNameAndXLSX(t *testing.T) {
	cfg := testConfig(t)
	input := writeSurvey(t, "alps.txt", surveyText)

	_, err := execute(t, cfg, input, "-n", "flora", "--format", "xlsx")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "flora.xlsx"))
}

func TestViewPrintsSanitizedText(t *testing.T) {
	cfg := testConfig(t)
	input := writeSurvey(t, "alps.txt", surveyText)

	out, err := execute(t, cfg, input, "-v")
	require.NoError(t, err)
	assert.Contains(t, out, "Genus alpha Author1 & Author2")
	assert.NotContains(t, out, "written to")
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, "alps.csv"))
	assert.NoFileExists(t, cfg.DBPath)
}

func TestViewUsesStoredRules(t *testing.T) {
	cfg := testConfig(t)
	input := writeSurvey(t, "alps.txt", surveyText)

	_, err := execute(t, cfg, "rules", "add", "alps", "Author3", "Smith")
	require.NoError(t, err)

	out, err := execute(t, cfg, input, "-v")
	require.NoError(t, err)
	assert.Contains(t, out, "Genus beta (Sect.) Smith")
}

func TestDigitRangeSyntaxes(t *testing.T) {
	cases := map[string][]string{
		"comma":          {"-d", "3,4"},
		"repeated":       {"-d", "3", "-d", "4"},
		"space":          {"-d", "3", "4"},
		"space_in_front": {"-d", "3", "4", "FILE"},
	}
	for name, flags := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			input := writeSurvey(t, "alps.txt", surveyText)

			args := []string{input}
			if flags[len(flags)-1] == "FILE" {
				args = append([]string{}, flags[:len(flags)-1]...)
				args = append(args, input)
			} else {
				args = append(args, flags...)
			}
			_, err := execute(t, cfg, args...)
			require.NoError(t, err)

			runs, err := execute(t, cfg, "runs", "list")
			require.NoError(t, err)
			assert.Contains(t, runs, `"digits":[3,4]`)
		})
	}
}

func TestExtractRejectsBadInput(t *testing.T) {
	cfg := testConfig(t)
	input := writeSurvey(t, "alps.txt", surveyText)

	_, err := execute(t, cfg, input, "-d", "3")
	require.ErrorIs(t, err, internal.ErrInvalidDigitRange)

	_, err = execute(t, cfg, input, "-d", "4,2")
	require.ErrorIs(t, err, internal.ErrInvalidDigitRange)

	_, err = execute(t, cfg, input, "-u", "yards")
	require.ErrorIs(t, err, internal.ErrInvalidUnit)

	_, err = execute(t, cfg, input, "-c", "title")
	require.ErrorIs(t, err, internal.ErrInvalidCase)

	_, err = execute(t, cfg, input, "--format", "ods")
	require.ErrorIs(t, err, pipeline.ErrUnsupportedFormat)

	_, err = execute(t, cfg, writeSurvey(t, "alps.docx", surveyText))
	require.ErrorIs(t, err, pipeline.ErrUnsupportedFormat)

	_, err = execute(t, cfg, input, "-d", "3", "x")
	require.Error(t, err)

	_, err = execute(t, cfg, input, "other.txt")
	require.Error(t, err)

	_, err = execute(t, cfg)
	require.Error(t, err)
}

func TestRulesAreAppliedToExtraction(t *testing.T) {
	cfg := testConfig(t)
	input := writeSurvey(t, "alps.txt", surveyText)

	out, err := execute(t, cfg, "rules", "add", "alps", "Author3", "Smith")
	require.NoError(t, err)
	assert.Contains(t, out, "rule added for alps")

	_, err = execute(t, cfg, "rules", "add", "alps", "(", "x")
	require.Error(t, err)

	out, err = execute(t, cfg, "rules", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "alps:")
	assert.Contains(t, out, `1. "Author3" -> "Smith"`)

	_, err = execute(t, cfg, input)
	require.NoError(t, err)
	lines := readLines(t, filepath.Join(cfg.OutputDir, "alps.csv"))
	require.Len(t, lines, 3)
	assert.Equal(t, "Genus beta (Sect.) Smith;800;800", lines[2])

	out, err = execute(t, cfg, "rules", "clear", "alps")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 1 rules for alps")
}

func TestRunsListAndExport(t *testing.T) {
	cfg := testConfig(t)
	input := writeSurvey(t, "alps.txt", surveyText)

	_, err := execute(t, cfg, input)
	require.NoError(t, err)

	out, err := execute(t, cfg, "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "alps")
	assert.Contains(t, out, "records=2 rows=2 skipped=0")

	out, err = execute(t, cfg, "runs", "export", "--run", "1", "-i")
	require.NoError(t, err)
	assert.Contains(t, out, "exported 2 rows")
	lines := readLines(t, filepath.Join(cfg.OutputDir, "alps_run1.csv"))
	assert.Equal(t, "id;scientificName;elev_min;elev_max", lines[0])
	assert.Len(t, lines, 3)

	_, err = execute(t, cfg, "runs", "export", "--run", "9")
	require.Error(t, err)

	_, err = execute(t, cfg, "runs", "export")
	require.Error(t, err)
}
