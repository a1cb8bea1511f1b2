// Package tabular reads check requests from uploaded tables and writes results.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"dofollow-checker/pkg/types"
)

const (
	ColumnPageURL = "page_url"
	ColumnTarget  = "target"
)

var (
	// ErrMissingColumns is returned when no header row has both required columns.
	ErrMissingColumns = errors.New("input must have columns: page_url, target")
	// ErrUnsupportedFormat is returned for file types the reader cannot parse.
	ErrUnsupportedFormat = errors.New("unsupported input format")
)

// DefaultSeparators are tried in order when reading CSV input.
var DefaultSeparators = []string{",", ";", "\t", "|"}

// SampleCSV is a template users can fill in.
const SampleCSV = "page_url,target\n" +
	"https://example.com/blog/post-1,mydomain.pl\n" +
	"https://another-site.net/resources,https://mydomain.pl/oferta\n"

// Reader parses CSV or XLSX tables into check requests.
type Reader struct {
	separators []rune
}

// NewReader builds a reader trying the given single-character separators.
func NewReader(separators []string) *Reader {
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	runes := make([]rune, 0, len(separators))
	for _, s := range separators {
		if r := []rune(s); len(r) == 1 {
			runes = append(runes, r[0])
		}
	}
	return &Reader{separators: runes}
}

// ReadFile opens path and parses it according to its extension.
func (r *Reader) ReadFile(path string) ([]types.CheckRequest, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer fh.Close()
	return r.Read(filepath.Base(path), fh)
}

// Read parses src, using name's extension to pick XLSX or CSV. Unknown
// extensions are read as CSV.
func (r *Reader) Read(name string, src io.Reader) ([]types.CheckRequest, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(src)
	case ".xls":
		return nil, fmt.Errorf("%w: legacy .xls, save the sheet as .xlsx or .csv", ErrUnsupportedFormat)
	default:
		return r.ReadCSV(src)
	}
}

// ReadCSV decodes src as UTF-8 (honouring a byte order mark, dropping invalid
// bytes) and tries each separator until one yields both required columns.
func (r *Reader) ReadCSV(src io.Reader) ([]types.CheckRequest, error) {
	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	decoded, _, err := transform.Bytes(unicode.BOMOverride(encoding.Nop.NewDecoder()), raw)
	if err != nil {
		return nil, fmt.Errorf("decode csv: %w", err)
	}
	text := strings.ToValidUTF8(string(decoded), "")

	for _, sep := range r.separators {
		cr := csv.NewReader(strings.NewReader(text))
		cr.Comma = sep
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = true
		records, err := cr.ReadAll()
		if err != nil || len(records) == 0 {
			continue
		}
		rows, err := toRequests(records)
		if errors.Is(err, ErrMissingColumns) {
			continue
		}
		return rows, err
	}
	return nil, ErrMissingColumns
}

// ReadXLSX reads the first worksheet of an XLSX workbook.
func ReadXLSX(src io.Reader) ([]types.CheckRequest, error) {
	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read xlsx: %w", err)
	}
	book, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrMissingColumns
	}
	records, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return toRequests(records)
}

func toRequests(records [][]string) ([]types.CheckRequest, error) {
	if len(records) == 0 {
		return nil, ErrMissingColumns
	}
	pageIdx, targetIdx := -1, -1
	for i, name := range records[0] {
		switch strings.TrimSpace(name) {
		case ColumnPageURL:
			if pageIdx < 0 {
				pageIdx = i
			}
		case ColumnTarget:
			if targetIdx < 0 {
				targetIdx = i
			}
		}
	}
	if pageIdx < 0 || targetIdx < 0 {
		return nil, ErrMissingColumns
	}

	rows := make([]types.CheckRequest, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		rows = append(rows, types.CheckRequest{
			PageURL: cell(rec, pageIdx),
			Target:  cell(rec, targetIdx),
		})
	}
	return rows, nil
}

func cell(rec []string, idx int) string {
	if idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
