package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/models"
	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/output"
	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/store"
)

var (
	issueStatuses      []string
	issueSeverities    []string
	issueRules         []string
	issueContradictory bool

	reviewLabel   string
	reviewComment string

	feedbackAgree    bool
	feedbackDisagree bool
	feedbackComment  string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Browse and review analyzed findings",
	Long:  "List findings, inspect model verdicts, and record human review decisions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show an issue with its classification history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIssueID(args[0])
		if err != nil {
			return err
		}
		return issueShowRun(id)
	},
}

var issueReviewCmd = &cobra.Command{
	Use:   "review <issue-id>",
	Short: "Record the true classification for an issue",
	Long: `Record the human verdict for an issue and mark it reviewed.

The label must be exactly one of: "false positive", "need fixing",
"very serious". Reviewing again overwrites the previous verdict.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIssueID(args[0])
		if err != nil {
			return err
		}
		return issueReviewRun(id)
	},
}

var issueFeedbackCmd = &cobra.Command{
	Use:   "feedback <attempt-id>",
	Short: "Record agreement or disagreement with one model verdict",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid attempt id %q", args[0])
		}
		return issueFeedbackRun(id)
	},
}

func init() {
	issueListCmd.Flags().StringSliceVar(&issueStatuses, "status", nil, "Filter by status: pending_llm, pending_review, reviewed (repeatable)")
	issueListCmd.Flags().StringSliceVar(&issueSeverities, "severity", nil, "Filter by analyzer severity (repeatable)")
	issueListCmd.Flags().StringSliceVar(&issueRules, "rule", nil, "Filter by analyzer rule id (repeatable)")
	issueListCmd.Flags().BoolVar(&issueContradictory, "contradictory", false, "Only issues whose model verdicts disagree")

	issueReviewCmd.Flags().StringVar(&reviewLabel, "label", "", `True classification: "false positive", "need fixing", "very serious"`)
	issueReviewCmd.Flags().StringVar(&reviewComment, "comment", "", "Review comment")
	_ = issueReviewCmd.MarkFlagRequired("label")

	issueFeedbackCmd.Flags().BoolVar(&feedbackAgree, "agree", false, "Agree with the model verdict")
	issueFeedbackCmd.Flags().BoolVar(&feedbackDisagree, "disagree", false, "Disagree with the model verdict")
	issueFeedbackCmd.Flags().StringVar(&feedbackComment, "comment", "", "Feedback comment")

	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueReviewCmd)
	issueCmd.AddCommand(issueFeedbackCmd)
	rootCmd.AddCommand(issueCmd)
}

func parseIssueID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid issue id %q", arg)
	}
	return id, nil
}

func issueListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	filter := store.IssueFilter{
		Severities:        issueSeverities,
		RuleIDs:           issueRules,
		ContradictoryOnly: issueContradictory,
	}
	for _, st := range issueStatuses {
		filter.Statuses = append(filter.Statuses, models.IssueStatus(st))
	}

	issues, err := s.ListIssues(ctx, filter)
	if err != nil {
		return err
	}

	if len(issues) == 0 {
		ui.Info("No issues found.")
		return nil
	}

	table := ui.Table([]string{"ID", "File", "Line", "Severity", "Rule", "Status", "Verdict"})
	for _, issue := range issues {
		verdict := ""
		if issue.TrueClassification != nil {
			verdict = output.LabelColor(string(*issue.TrueClassification))
		}
		_ = table.Append([]string{
			strconv.FormatInt(issue.ID, 10),
			issue.File,
			strconv.Itoa(issue.Line),
			issue.Severity,
			issue.RuleID,
			output.StatusColor(string(issue.Status)),
			verdict,
		})
	}
	_ = table.Render()
	return nil
}

func issueShowRun(id int64) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	issue, err := s.GetIssue(context.Background(), id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s:%d\n", output.Cyan(fmt.Sprintf("#%d", issue.ID)), issue.File, issue.Line)
	fmt.Fprintf(ui.Out, "  Severity:   %s\n", issue.Severity)
	fmt.Fprintf(ui.Out, "  Rule:       %s\n", issue.RuleID)
	fmt.Fprintf(ui.Out, "  Summary:    %s\n", issue.Summary)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(issue.Status)))
	if issue.TrueClassification != nil {
		fmt.Fprintf(ui.Out, "  Verdict:    %s\n", output.LabelColor(string(*issue.TrueClassification)))
	}
	if issue.TrueComment != "" {
		fmt.Fprintf(ui.Out, "  Comment:    %s\n", issue.TrueComment)
	}
	fmt.Fprintf(ui.Out, "  Created:    %s\n", issue.CreatedAt.Format(time.RFC3339))

	if len(issue.Attempts) == 0 {
		fmt.Fprintln(ui.Out)
		ui.Info("No classification attempts yet.")
		return nil
	}

	fmt.Fprintln(ui.Out)
	table := ui.Table([]string{"Attempt", "Model", "Strategy", "Template", "Classification", "Agrees", "When"})
	for _, a := range issue.Attempts {
		agrees := ""
		if a.UserAgrees != nil {
			if *a.UserAgrees {
				agrees = output.Green("yes")
			} else {
				agrees = output.Red("no")
			}
		}
		_ = table.Append([]string{
			strconv.FormatInt(a.ID, 10),
			a.Model,
			a.ContextStrategy,
			a.PromptTemplate,
			output.LabelColor(string(a.Classification)),
			agrees,
			a.ProcessedAt.Format("2006-01-02 15:04"),
		})
	}
	_ = table.Render()

	if verbose {
		for _, a := range issue.Attempts {
			fmt.Fprintln(ui.Out)
			fmt.Fprintf(ui.Out, "%s attempt %d explanation:\n", output.Cyan(">"), a.ID)
			fmt.Fprintln(ui.Out, a.Explanation)
		}
	}
	return nil
}

func issueReviewRun(id int64) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	label := models.Classification(reviewLabel)
	if !label.Valid() {
		return fmt.Errorf("invalid label %q (use: %q, %q, %q)", reviewLabel,
			models.ClassificationFalsePositive, models.ClassificationNeedFixing, models.ClassificationVerySerious)
	}

	if dryRun {
		ui.DryRunMsg("Would mark issue %d as %s", id, label)
		return nil
	}

	ok, err := s.SetTrueClassification(context.Background(), id, label, reviewComment)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("issue %d not found", id)
	}

	ui.Success("Issue %d reviewed: %s", id, output.LabelColor(string(label)))
	return nil
}

func issueFeedbackRun(attemptID int64) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	if feedbackAgree == feedbackDisagree {
		return fmt.Errorf("specify exactly one of --agree or --disagree")
	}

	if dryRun {
		ui.DryRunMsg("Would record feedback on attempt %d (agree=%t)", attemptID, feedbackAgree)
		return nil
	}

	ok, err := s.UpdateReviewFeedback(context.Background(), attemptID, feedbackAgree, feedbackComment)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("attempt %d not found", attemptID)
	}

	if feedbackAgree {
		ui.Success("Recorded agreement with attempt %d", attemptID)
	} else {
		ui.Success("Recorded disagreement with attempt %d", attemptID)
	}
	return nil
}
