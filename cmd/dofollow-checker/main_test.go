package main

import (
	"errors"
	"testing"

	"dofollow-checker/internal/tabular"
)

func TestResolveFormat(t *testing.T) {
	cases := []struct {
		name       string
		flag       string
		configured string
		output     string
		want       string
	}{
		{"flag wins", "jsonl", "xlsx", "out.csv", tabular.FormatJSONL},
		{"flag is case-insensitive", " XLSX ", "", "out.csv", tabular.FormatXLSX},
		{"config before extension", "", "xlsx", "out.csv", tabular.FormatXLSX},
		{"extension", "", "", "results.jsonl", tabular.FormatJSONL},
		{"default csv", "", "", "results_dofollow", tabular.FormatCSV},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := resolveFormat(c.flag, c.configured, c.output)
			if err != nil || got != c.want {
				t.Fatalf("resolveFormat(%q, %q, %q) = %q, %v; want %q", c.flag, c.configured, c.output, got, err, c.want)
			}
		})
	}
}

func TestResolveFormatRejectsUnknown(t *testing.T) {
	if _, err := resolveFormat("pdf", "", "out.csv"); err == nil {
		t.Fatal("expected error for unknown flag format")
	}
	if _, err := resolveFormat("", "", "out.parquet"); !errors.Is(err, tabular.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
