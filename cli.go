package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"

	"labelproof/internal/compare"
	"labelproof/internal/constants"
	"labelproof/internal/record"
)

const compareUsage = "usage: labelproof compare <reference.json> <observed.json>"

// runCompare implements the compare sub-command. It returns the process
// exit code: 0 when the records agree, 1 when differences were found and
// 2 on usage or input errors.
func runCompare(args []string, out io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(out, compareUsage)
		return 2
	}

	reference, err := readRecordFile(args[0])
	if err != nil {
		fmt.Fprintln(out, err)
		return 2
	}
	observed, err := readRecordFile(args[1])
	if err != nil {
		fmt.Fprintln(out, err)
		return 2
	}

	report := compare.New(constants.TraditionalChinese.NumericKeys).Compare(reference, observed)
	printReport(out, report)
	if report.Clean() {
		return 0
	}
	return 1
}

func readRecordFile(path string) (*record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	rec, err := record.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return rec, nil
}

func printReport(out io.Writer, report *compare.Report) {
	header := color.New(color.Bold)
	source := color.New(color.FgGreen)
	observed := color.New(color.FgRed)
	warn := color.New(color.FgYellow)

	if report.Clean() {
		source.Fprintln(out, "No differences found")
		return
	}

	if len(report.InvalidTitles) > 0 {
		header.Fprintln(out, "Invalid titles:")
		for _, title := range report.InvalidTitles {
			warn.Fprintf(out, "  %s\n", title)
		}
	}

	if len(report.Differences) > 0 {
		paths := make([]string, 0, len(report.Differences))
		for path := range report.Differences {
			paths = append(paths, path)
		}
		sort.Strings(paths)

		header.Fprintf(out, "Differences (%d):\n", len(paths))
		for _, path := range paths {
			diff := report.Differences[path]
			fmt.Fprintf(out, "  %s\n", path)
			source.Fprintf(out, "    - %s\n", displayValue(diff.SourceValue))
			observed.Fprintf(out, "    + %s\n", displayValue(diff.ObservedValue))
		}
	}
}

func displayValue(n record.Node) string {
	if n == nil {
		return "(missing)"
	}
	return record.Text(n)
}
