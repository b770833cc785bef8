package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/models"
	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/store"
)

var (
	exportFormat string
	exportType   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export data as JSON, CSV, or Markdown",
	Long:  "Export issues, classification attempts, or raw model responses in various formats.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun()
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().StringVar(&exportType, "type", "issues", "Data type: issues, classifications, responses")
	rootCmd.AddCommand(exportCmd)
}

func exportRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	switch exportType {
	case "issues":
		return exportIssues(ctx, s)
	case "classifications":
		return exportClassifications(ctx, s)
	case "responses":
		return exportResponses(ctx, s)
	default:
		return fmt.Errorf("unknown export type: %s (use: issues, classifications, responses)", exportType)
	}
}

func exportIssues(ctx context.Context, s store.Store) error {
	issues, err := s.ListIssues(ctx, store.IssueFilter{})
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(issues)
	case "csv":
		w := csv.NewWriter(ui.Out)
		w.Write([]string{"ID", "File", "Line", "Severity", "Rule", "Summary", "Status", "Verdict", "Created"})
		for _, i := range issues {
			verdict := ""
			if i.TrueClassification != nil {
				verdict = string(*i.TrueClassification)
			}
			w.Write([]string{
				strconv.FormatInt(i.ID, 10), i.File, strconv.Itoa(i.Line),
				i.Severity, i.RuleID, i.Summary, string(i.Status), verdict,
				i.CreatedAt.Format("2006-01-02"),
			})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Issues")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| ID | Location | Severity | Rule | Status | Verdict |")
		fmt.Fprintln(ui.Out, "|----|----------|----------|------|--------|---------|")
		for _, i := range issues {
			verdict := ""
			if i.TrueClassification != nil {
				verdict = string(*i.TrueClassification)
			}
			fmt.Fprintf(ui.Out, "| %d | %s:%d | %s | %s | %s | %s |\n",
				i.ID, i.File, i.Line, i.Severity, i.RuleID, i.Status, verdict)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", exportFormat)
	}
}

func exportClassifications(ctx context.Context, s store.Store) error {
	issues, err := s.ListIssues(ctx, store.IssueFilter{})
	if err != nil {
		return err
	}

	var attempts []*models.ClassificationAttempt
	for _, i := range issues {
		list, err := s.ListAttempts(ctx, i.ID)
		if err != nil {
			return err
		}
		attempts = append(attempts, list...)
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(attempts)
	case "csv":
		w := csv.NewWriter(ui.Out)
		w.Write([]string{"AttemptID", "IssueID", "Model", "Strategy", "Template", "Classification", "RunID", "Processed"})
		for _, a := range attempts {
			w.Write([]string{
				strconv.FormatInt(a.ID, 10), strconv.FormatInt(a.IssueID, 10),
				a.Model, a.ContextStrategy, a.PromptTemplate,
				string(a.Classification), a.RunID,
				a.ProcessedAt.Format(time.RFC3339),
			})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Classification Attempts")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| Attempt | Issue | Model | Strategy | Classification |")
		fmt.Fprintln(ui.Out, "|---------|-------|-------|----------|----------------|")
		for _, a := range attempts {
			fmt.Fprintf(ui.Out, "| %d | %d | %s | %s | %s |\n",
				a.ID, a.IssueID, a.Model, a.ContextStrategy, a.Classification)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", exportFormat)
	}
}

func exportResponses(ctx context.Context, s store.Store) error {
	logs, err := s.ListResponses(ctx, store.ResponseFilter{})
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(logs)
	case "csv":
		w := csv.NewWriter(ui.Out)
		w.Write([]string{"ID", "AttemptID", "IssueID", "Model", "PromptTokens", "CompletionTokens", "TotalTokens", "LatencyMS", "Timestamp"})
		for _, l := range logs {
			w.Write([]string{
				strconv.FormatInt(l.ID, 10), strconv.FormatInt(l.AttemptID, 10),
				strconv.FormatInt(l.IssueID, 10), l.Model,
				intPtrString(l.PromptTokens), intPtrString(l.CompletionTokens),
				intPtrString(l.TotalTokens), int64PtrString(l.LatencyMS),
				l.Timestamp.Format(time.RFC3339),
			})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Model Responses")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| ID | Attempt | Issue | Model | Total Tokens |")
		fmt.Fprintln(ui.Out, "|----|---------|-------|-------|--------------|")
		for _, l := range logs {
			fmt.Fprintf(ui.Out, "| %d | %d | %d | %s | %s |\n",
				l.ID, l.AttemptID, l.IssueID, l.Model, intPtrString(l.TotalTokens))
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", exportFormat)
	}
}

func intPtrString(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func int64PtrString(p *int64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatInt(*p, 10)
}
