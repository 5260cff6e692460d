package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mht-extract/filter"
	"github.com/dhcgn/mht-extract/mht"
	"github.com/dhcgn/mht-extract/output"
	"github.com/dhcgn/mht-extract/stats"
)

// Report tallies the parts of one archive.
type Report struct {
	mu        sync.Mutex
	collector *stats.Collector
	counters  map[string]map[string]int
}

var reportCategories = []string{"Kind", "Content-Type", "Content-Location", "Encoding"}

func NewReport() *Report {
	counters := make(map[string]map[string]int, len(reportCategories))
	for _, c := range reportCategories {
		counters[c] = make(map[string]int)
	}
	return &Report{collector: stats.NewCollector(), counters: counters}
}

// EmitEvent implements mht.EventSink.
func (r *Report) EmitEvent(evt stats.Event) {
	r.collector.Apply(evt)
	if evt.Type == stats.EventTypeError {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters["Kind"][evt.Part.Kind.String()]++
	if evt.Part.ContentType != "" {
		r.counters["Content-Type"][evt.Part.ContentType]++
	}
	if evt.Part.Location != "" {
		r.counters["Content-Location"][evt.Part.Location]++
	}
	encoding := evt.Part.Encoding
	if encoding == "" {
		encoding = "(none)"
	}
	r.counters["Encoding"][encoding]++
}

// Counts returns a copy of the counters of one category.
func (r *Report) Counts(category string) map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.counters[category]))
	for k, v := range r.counters[category] {
		out[k] = v
	}
	return out
}

func (r *Report) Summary() stats.Summary {
	return r.collector.Snapshot()
}

// NewStatsCommand returns the mht-stats subcommand.
func NewStatsCommand() *cobra.Command {
	var (
		reportDir string
		topN      int
		include   []string
		exclude   []string
	)

	cmd := &cobra.Command{
		Use:   "mht-stats [mht file]",
		Short: "Analyse the mht archive and show statistics about its parts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Analyzing mht file:", args[0])

			f, err := filter.New(filter.Options{Include: include, Exclude: exclude})
			if err != nil {
				return fmt.Errorf("create filter: %w", err)
			}

			report := NewReport()
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			extractor, err := mht.NewExtractor(&output.Discard{}, report, logger, mht.Options{Filter: f})
			if err != nil {
				return err
			}

			res, err := extractor.ExtractFile(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("error reading mht file: %w", err)
			}

			printReport(out, res, report, f, topN)

			if reportDir != "" {
				if err := saveCSVReports(report, reportDir, 1000); err != nil {
					return fmt.Errorf("error saving CSV reports: %w", err)
				}
				fmt.Fprintf(out, "\nReports saved to directory: %s\n", reportDir)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&reportDir, "output", "o", "", "Output directory for CSV reports (no reports when empty)")
	cmd.Flags().IntVarP(&topN, "top", "t", 10, "Number of top items to display in statistics")
	cmd.Flags().StringArrayVar(&include, "include", nil, "Regex allow-list applied to Content-Location (mutually exclusive with --exclude)")
	cmd.Flags().StringArrayVar(&exclude, "exclude", nil, "Regex block-list applied to Content-Location (mutually exclusive with --include)")
	return cmd
}

func printReport(out io.Writer, res mht.Result, report *Report, f *filter.Filter, topN int) {
	summary := report.Summary()
	fmt.Fprintf(out, "Boundary: %s\n", res.Boundary)
	fmt.Fprintf(out, "Parts: %d (html %d, images %d, skipped %d, filtered %d, warnings %d)\n\n",
		res.Parts, res.HTML, res.Images, res.Skipped, res.Filtered, res.Warnings)
	fmt.Fprintf(out, "Decoded bytes: %d\n\n", summary.Bytes)

	if f.Active() {
		filterStats := f.GetStats()
		fmt.Fprintln(out, "Filters:")
		for _, p := range append(filterStats.IncludePatterns, filterStats.ExcludePatterns...) {
			fmt.Fprintf(out, "  %s: %d hits\n", p, filterStats.Hits[p])
		}
		fmt.Fprintln(out)
	}

	for _, category := range reportCategories {
		fmt.Fprintf(out, "Top %d %s:\n", topN, category)
		for i, p := range stats.Top(report.Counts(category), topN) {
			fmt.Fprintf(out, "%d. %s (%d)\n", i+1, p.Key, p.Value)
		}
		fmt.Fprintln(out)
	}

	if summary.LastError != nil {
		fmt.Fprintf(out, "Last warning: %v\n", summary.LastError)
	}
}

func saveCSVReports(report *Report, dir string, limit int) error {
	if err := output.PrepareDir(dir); err != nil {
		return err
	}

	for _, category := range reportCategories {
		filename := fmt.Sprintf("report_%s.csv", normalizeCategory(category))
		if err := writeCSV(filepath.Join(dir, filename), stats.Top(report.Counts(category), limit)); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(path string, pairs []stats.Pair) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Value", "Count"}); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := writer.Write([]string{p.Key, strconv.Itoa(p.Value)}); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

func normalizeCategory(category string) string {
	name := strings.ToLower(category)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}
