package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"taxelev/internal"
)

var exportHeaders = []string{"scientificName", "elev_min", "elev_max"}

// ExportOptions control the table layout shared by CSV and XLSX output.
type ExportOptions struct {
	Separator string
	Index     bool
}

func (o ExportOptions) headers() []string {
	if o.Index {
		return append([]string{"id"}, exportHeaders...)
	}
	return exportHeaders
}

func (o ExportOptions) record(i int, row internal.Row) []string {
	rec := []string{row.ScientificName, strconv.Itoa(row.ElevationMin), strconv.Itoa(row.ElevationMax)}
	if o.Index {
		rec = append([]string{strconv.Itoa(i + 1)}, rec...)
	}
	return rec
}

// ExportRowsToCSV writes rows in order; the id column is 1-based.
func ExportRowsToCSV(rows []internal.Row, outputPath string, opts ExportOptions) error {
	sep := ';'
	if opts.Separator != "" {
		r, size := utf8.DecodeRuneInString(opts.Separator)
		if size != len(opts.Separator) || r == utf8.RuneError {
			return fmt.Errorf("csv separator must be a single character, got %q", opts.Separator)
		}
		sep = r
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = sep
	if err := w.Write(opts.headers()); err != nil {
		return err
	}
	for i, row := range rows {
		if err := w.Write(opts.record(i, row)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func ExportRowsToXLSX(rows []internal.Row, outputPath string, opts ExportOptions) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i, h := range opts.headers() {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		col := 1
		set := func(value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
			col++
		}

		if opts.Index {
			set(i + 1)
		}
		set(row.ScientificName)
		set(row.ElevationMin)
		set(row.ElevationMax)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

// ExportRows picks the writer from the file extension (.csv or .xlsx).
func ExportRows(rows []internal.Row, outputPath string, opts ExportOptions) error {
	switch filepath.Ext(outputPath) {
	case ".xlsx":
		return ExportRowsToXLSX(rows, outputPath, opts)
	case ".csv":
		return ExportRowsToCSV(rows, outputPath, opts)
	default:
		return fmt.Errorf("%w: output %q (want .csv or .xlsx)", ErrUnsupportedFormat, filepath.Base(outputPath))
	}
}
