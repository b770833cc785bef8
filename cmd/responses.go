package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/output"
	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/store"
)

var (
	respIssue     int64
	respAttempt   int64
	respModel     string
	respMinTokens int
	respMaxTokens int
)

var responsesCmd = &cobra.Command{
	Use:   "responses",
	Short: "Browse raw model request/response logs",
	Long: `List the raw prompt/response records captured for each classification
attempt. Use --verbose to print the full prompt and response bodies.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return responsesRun()
	},
}

func init() {
	responsesCmd.Flags().Int64Var(&respIssue, "issue", 0, "Only logs for this issue")
	responsesCmd.Flags().Int64Var(&respAttempt, "attempt", 0, "Only the log for this attempt")
	responsesCmd.Flags().StringVar(&respModel, "model", "", "Only logs from this model")
	responsesCmd.Flags().IntVar(&respMinTokens, "min-tokens", 0, "Only logs with at least this many total tokens")
	responsesCmd.Flags().IntVar(&respMaxTokens, "max-tokens", 0, "Only logs with at most this many total tokens")
	rootCmd.AddCommand(responsesCmd)
}

func responsesRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	logs, err := s.ListResponses(context.Background(), store.ResponseFilter{
		IssueID:        respIssue,
		AttemptID:      respAttempt,
		Model:          respModel,
		MinTotalTokens: respMinTokens,
		MaxTotalTokens: respMaxTokens,
	})
	if err != nil {
		return err
	}

	if len(logs) == 0 {
		ui.Info("No model interactions recorded.")
		return nil
	}

	table := ui.Table([]string{"ID", "Attempt", "Issue", "Model", "Tokens", "Latency", "Timestamp"})
	for _, l := range logs {
		tokens := ""
		if l.TotalTokens != nil {
			tokens = strconv.Itoa(*l.TotalTokens)
		}
		latency := ""
		if l.LatencyMS != nil {
			latency = fmt.Sprintf("%dms", *l.LatencyMS)
		}
		_ = table.Append([]string{
			strconv.FormatInt(l.ID, 10),
			strconv.FormatInt(l.AttemptID, 10),
			strconv.FormatInt(l.IssueID, 10),
			l.Model,
			tokens,
			latency,
			l.Timestamp.Format(time.RFC3339),
		})
	}
	_ = table.Render()

	if verbose {
		for _, l := range logs {
			fmt.Fprintln(ui.Out)
			fmt.Fprintf(ui.Out, "%s log %d (attempt %d, issue %d, %s)\n",
				output.Cyan(">"), l.ID, l.AttemptID, l.IssueID, l.Model)
			fmt.Fprintln(ui.Out, "--- prompt ---")
			fmt.Fprintln(ui.Out, l.Prompt)
			fmt.Fprintln(ui.Out, "--- response ---")
			fmt.Fprintln(ui.Out, l.Response)
		}
	}
	return nil
}
