package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/models"
)

var loadCmd = &cobra.Command{
	Use:   "load <file.csv>",
	Short: "Load cppcheck findings from a CSV file",
	Long: `Load cppcheck findings exported as CSV into the review database.

Expected columns: File,Line,Severity,Id,Summary. A header row is
required. Summaries containing unquoted commas are absorbed into the
Summary column; rows with a non-numeric line number are skipped with a
warning. Loaded issues start in status pending_llm.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return loadRun(args[0])
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func loadRun(file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer func() { _ = f.Close() }()

	issues, warnings, err := parseFindingsCSV(f)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		ui.Warning("%s", w)
	}
	if len(issues) == 0 {
		ui.Info("No findings in %s.", file)
		return nil
	}

	if dryRun {
		ui.DryRunMsg("Would load %d findings from %s", len(issues), file)
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	ids, err := s.AddIssues(context.Background(), issues)
	if err != nil {
		return fmt.Errorf("load findings: %w", err)
	}

	ui.Success("Loaded %d findings from %s (ids %d..%d)", len(ids), file, ids[0], ids[len(ids)-1])
	return nil
}

// findingColumns is the expected cppcheck CSV header.
var findingColumns = []string{"File", "Line", "Severity", "Id", "Summary"}

// parseFindingsCSV reads cppcheck CSV output. Records with more fields than
// the header keep the extra text in Summary (cppcheck does not quote commas
// in messages); records with a bad line number are reported as warnings and
// skipped, matching cppcheck's own tolerance for malformed rows.
func parseFindingsCSV(r io.Reader) ([]*models.Issue, []string, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	if !isFindingsHeader(header) {
		return nil, nil, fmt.Errorf("unexpected csv header %v (want %v)", header, findingColumns)
	}

	var issues []*models.Issue
	var warnings []string
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv row %d: %w", row+1, err)
		}
		row++

		if len(record) < len(findingColumns) {
			warnings = append(warnings, fmt.Sprintf("row %d: expected %d columns, got %d, skipping", row, len(findingColumns), len(record)))
			continue
		}

		summary := record[4]
		if len(record) > len(findingColumns) {
			summary = strings.Join(record[4:], ",")
		}

		line, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil || line < 0 {
			warnings = append(warnings, fmt.Sprintf("row %d: bad line number %q, skipping", row, record[1]))
			continue
		}

		issues = append(issues, &models.Issue{
			File:     strings.TrimSpace(record[0]),
			Line:     line,
			Severity: strings.TrimSpace(record[2]),
			RuleID:   strings.TrimSpace(record[3]),
			Summary:  summary,
		})
	}

	return issues, warnings, nil
}

func isFindingsHeader(header []string) bool {
	if len(header) < len(findingColumns) {
		return false
	}
	for i, want := range findingColumns {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return false
		}
	}
	return true
}
