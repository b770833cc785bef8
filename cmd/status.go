package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/models"
	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show triage progress overview",
	Long: `Show how far triage has progressed: issue counts per lifecycle
status, and the severities and rules present in the database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusRun()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	counts, err := s.CountIssuesByStatus(ctx)
	if err != nil {
		return err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		ui.Info("No issues loaded. Use 'reviewhelper load <file.csv>' to get started.")
		return nil
	}

	table := ui.Table([]string{"Status", "Issues"})
	for _, st := range []models.IssueStatus{
		models.IssueStatusPendingLLM,
		models.IssueStatusPendingReview,
		models.IssueStatusReviewed,
	} {
		_ = table.Append([]string{output.StatusColor(string(st)), strconv.Itoa(counts[st])})
	}
	_ = table.Append([]string{"total", strconv.Itoa(total)})
	_ = table.Render()

	severities, err := s.Severities(ctx)
	if err != nil {
		return err
	}
	rules, err := s.RuleIDs(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "  Severities: %s\n", strings.Join(severities, ", "))
	fmt.Fprintf(ui.Out, "  Rules:      %s\n", strings.Join(rules, ", "))
	return nil
}
