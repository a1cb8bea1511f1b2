package tabular

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"dofollow-checker/pkg/types"
)

func TestReadCSVSeparators(t *testing.T) {
	want := []types.CheckRequest{
		{PageURL: "https://example.com/blog/post-1", Target: "mydomain.pl"},
		{PageURL: "https://another-site.net/resources", Target: "https://mydomain.pl/oferta"},
	}
	inputs := map[string]string{
		"comma":     SampleCSV,
		"semicolon": "page_url;target\nhttps://example.com/blog/post-1;mydomain.pl\nhttps://another-site.net/resources;https://mydomain.pl/oferta\n",
		"tab":       "page_url\ttarget\nhttps://example.com/blog/post-1\tmydomain.pl\nhttps://another-site.net/resources\thttps://mydomain.pl/oferta\n",
		"pipe":      "page_url|target\nhttps://example.com/blog/post-1|mydomain.pl\nhttps://another-site.net/resources|https://mydomain.pl/oferta\n",
		"bom and padded headers": "\ufeff page_url , target \r\n https://example.com/blog/post-1 ,mydomain.pl\r\n\r\n,\r\nhttps://another-site.net/resources,https://mydomain.pl/oferta\r\n",
		"extra columns":          "id,target,note,page_url\n1,mydomain.pl,x,https://example.com/blog/post-1\n2,https://mydomain.pl/oferta,y,https://another-site.net/resources\n",
	}
	r := NewReader(nil)
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			got, err := r.Read("input.csv", strings.NewReader(in))
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("got %+v\nwant %+v", got, want)
			}
		})
	}
}

func TestReadCSVUTF16WithBOM(t *testing.T) {
	text := "page_url,target\nhttps://a.test/,mydomain.pl\n"
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFE})
	for _, r := range text {
		buf.WriteByte(byte(r))
		buf.WriteByte(0)
	}
	got, err := NewReader(nil).ReadCSV(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 || got[0].PageURL != "https://a.test/" || got[0].Target != "mydomain.pl" {
		t.Fatalf("unexpected rows %+v", got)
	}
}

func TestReadCSVMissingColumns(t *testing.T) {
	cases := []string{
		"url,target\nhttps://a.test/,x.pl\n",
		"Page_URL,Target\nhttps://a.test/,x.pl\n",
		"",
	}
	for _, in := range cases {
		if _, err := NewReader(nil).ReadCSV(strings.NewReader(in)); !errors.Is(err, ErrMissingColumns) {
			t.Fatalf("%q: expected ErrMissingColumns, got %v", in, err)
		}
	}
}

func TestReadCSVHeaderOnly(t *testing.T) {
	got, err := NewReader(nil).ReadCSV(strings.NewReader("page_url,target\n"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no rows, got %+v", got)
	}
}

func TestReadXLSX(t *testing.T) {
	book := excelize.NewFile()
	rows := [][]any{
		{"page_url", "target"},
		{"https://a.test/post", "mydomain.pl"},
		{"", ""},
		{" https://b.test/ ", "https://mydomain.pl/offer"},
	}
	for i, row := range rows {
		cellName, _ := excelize.CoordinatesToCellName(1, i+1)
		row := row
		if err := book.SetSheetRow("Sheet1", cellName, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := book.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	got, err := NewReader(nil).Read("links.XLSX", &buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []types.CheckRequest{
		{PageURL: "https://a.test/post", Target: "mydomain.pl"},
		{PageURL: "https://b.test/", Target: "https://mydomain.pl/offer"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v\nwant %+v", got, want)
	}
}

func TestReadLegacyXLS(t *testing.T) {
	_, err := NewReader(nil).Read("old.xls", strings.NewReader("x"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func sampleResults() []types.CheckResult {
	return []types.CheckResult{
		{
			PageURL:            "https://a.test/post",
			FinalURL:           "https://a.test/post",
			StatusCode:         200,
			HasLink:            true,
			MatchedLinksCount:  2,
			DofollowLinksCount: 1,
			LinkExamples:       "https://mydomain.pl/offer",
		},
		{
			PageURL: "https://down.test/",
			Notes:   "error: dns_error: lookup down.test: no such host",
			Err:     errors.New("lookup down.test: no such host"),
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatCSV, sampleResults()); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "page_url,final_url,status_code,has_link,matched_links_count,dofollow_links_count,link_examples,page_nofollow,x_robots_nofollow,notes\n" +
		"https://a.test/post,https://a.test/post,200,true,2,1,https://mydomain.pl/offer,false,false,\n" +
		"https://down.test/,,,false,0,0,,,,error: dns_error: lookup down.test: no such host\n"
	if buf.String() != want {
		t.Fatalf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestWriteJSONL(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatJSONL, sampleResults()); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var failed map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &failed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if failed["status_code"] != nil || failed["page_nofollow"] != nil {
		t.Fatalf("failed row must carry nulls, got %v", failed)
	}
	if !strings.Contains(lines[0], `"status_code":200`) {
		t.Fatalf("unexpected first line %s", lines[0])
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatXLSX, sampleResults()); err != nil {
		t.Fatalf("write: %v", err)
	}
	book, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer book.Close()

	rows, err := book.GetRows(resultsSheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if !reflect.DeepEqual(rows[0], types.ResultColumns) {
		t.Fatalf("header = %q", rows[0])
	}
	if rows[1][2] != "200" || rows[1][3] != "TRUE" {
		t.Fatalf("typed cells not written: %q", rows[1])
	}
}

func TestFormatFromPath(t *testing.T) {
	cases := map[string]string{
		"out/results_dofollow.csv": FormatCSV,
		"results.XLSX":             FormatXLSX,
		"results.jsonl":            FormatJSONL,
	}
	for path, want := range cases {
		got, err := FormatFromPath(path)
		if err != nil || got != want {
			t.Fatalf("%s: got %q, %v", path, got, err)
		}
	}
	if _, err := FormatFromPath("results.parquet"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
