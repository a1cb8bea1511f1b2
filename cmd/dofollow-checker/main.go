package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"dofollow-checker/internal/batch"
	"dofollow-checker/internal/config"
	"dofollow-checker/internal/tabular"
	"dofollow-checker/pkg/types"
)

func main() {
	cfgPath := flag.String("config", "", "Path to checker configuration file (defaults are used when empty)")
	inputPath := flag.String("input", "", "CSV or XLSX file with page_url and target columns")
	outputPath := flag.String("output", "results_dofollow.csv", "Where to write the results")
	format := flag.String("format", "", "Output format: csv, xlsx or jsonl (inferred from -output when empty)")
	template := flag.Bool("template", false, "Print a sample input CSV and exit")
	flag.Parse()

	if *template {
		fmt.Print(tabular.SampleCSV)
		return
	}
	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "missing -input; run with -template for a sample file")
		os.Exit(2)
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := batch.BuildLogger(cfg.Logging, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}

	outFormat, err := resolveFormat(*format, cfg.Output.Format, *outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	reqs, err := tabular.NewReader(cfg.Input.Separators).ReadFile(*inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read input: %v\n", err)
		os.Exit(1)
	}

	out, err := os.Create(*outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create output: %v\n", err)
		os.Exit(1)
	}

	runner, err := batch.NewRunnerFromConfig(*cfg, logger)
	if err != nil {
		out.Close()
		fmt.Fprintf(os.Stderr, "failed to initialise runner: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	results := runner.Run(ctx, reqs, func(p types.Progress) {
		logger.Info("checked", "row", fmt.Sprintf("%d/%d", p.Done, p.Total), "url", p.PageURL)
	})

	if err := writeResults(out, outFormat, results); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write results: %v\n", err)
		os.Exit(1)
	}
	logger.Info("results written", "path", *outputPath, "format", outFormat, "rows", len(results), "with_link", countWithLink(results))
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return &cfg, cfg.Validate()
	}
	return config.Load(path)
}

// resolveFormat picks the output format from the flag, the config, or the
// output file extension, in that order.
func resolveFormat(flagValue, configured, outputPath string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(flagValue))
	if format == "" {
		format = configured
	}
	if format == "" {
		return tabular.FormatFromPath(outputPath)
	}
	switch format {
	case tabular.FormatCSV, tabular.FormatXLSX, tabular.FormatJSONL:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want csv, xlsx or jsonl)", format)
	}
}

func writeResults(fh *os.File, format string, results []types.CheckResult) error {
	w := bufio.NewWriter(fh)
	if err := tabular.Write(w, format, results); err != nil {
		fh.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

func countWithLink(results []types.CheckResult) int {
	n := 0
	for _, r := range results {
		if r.HasLink {
			n++
		}
	}
	return n
}
