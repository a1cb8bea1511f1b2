package tabular

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"dofollow-checker/pkg/types"
)

// Output formats understood by Write.
const (
	FormatCSV   = "csv"
	FormatXLSX  = "xlsx"
	FormatJSONL = "jsonl"
)

const resultsSheet = "results"

// FormatFromPath infers the output format from a file name.
func FormatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", "":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".jsonl", ".json", ".ndjson":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("%w: output %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Write serialises results in the given format.
func Write(w io.Writer, format string, results []types.CheckResult) error {
	switch format {
	case FormatCSV, "":
		return WriteCSV(w, results)
	case FormatXLSX:
		return WriteXLSX(w, results)
	case FormatJSONL:
		return WriteJSONL(w, results)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// WriteCSV writes a header row followed by one row per result.
func WriteCSV(w io.Writer, results []types.CheckResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(types.ResultColumns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range results {
		if err := cw.Write(r.Record()); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSONL writes one JSON object per line.
func WriteJSONL(w io.Writer, results []types.CheckResult) error {
	enc := json.NewEncoder(w)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}
	return nil
}

// WriteXLSX writes a single-sheet workbook with typed cells.
func WriteXLSX(w io.Writer, results []types.CheckResult) error {
	book := excelize.NewFile()
	defer book.Close()

	if err := book.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(types.ResultColumns))
	for i, c := range types.ResultColumns {
		header[i] = c
	}
	if err := book.SetSheetRow(resultsSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if style, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = book.SetRowStyle(resultsSheet, 1, 1, style)
	}

	for i, r := range results {
		row := xlsxRow(r)
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := book.SetSheetRow(resultsSheet, cellName, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	_ = book.SetColWidth(resultsSheet, "A", "B", 48)
	_ = book.SetColWidth(resultsSheet, "G", "G", 64)
	_ = book.SetColWidth(resultsSheet, "J", "J", 48)

	if err := book.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func xlsxRow(r types.CheckResult) []any {
	var status, pageNofollow, xRobots any = "", "", ""
	if !r.Failed() {
		status, pageNofollow, xRobots = r.StatusCode, r.PageNofollow, r.XRobotsNofollow
	}
	return []any{
		r.PageURL,
		r.FinalURL,
		status,
		r.HasLink,
		r.MatchedLinksCount,
		r.DofollowLinksCount,
		r.LinkExamples,
		pageNofollow,
		xRobots,
		r.Notes,
	}
}
