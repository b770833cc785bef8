package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/contextbuilder"
	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/llm"
	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/models"
	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/output"
	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/runner"
	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/store"
)

var (
	classifyModel    string
	classifyStrategy string
	classifyTemplate string
	classifyLimit    int
	classifyAll      bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify [issue-id...]",
	Short: "Classify pending issues with an LLM",
	Long: `Ask an LLM to classify findings as false positive, need fixing, or
very serious.

Without arguments, classifies issues in status pending_llm. With issue
ids, classifies exactly those issues (re-runs are allowed and recorded
as additional attempts). Ctrl-C stops cleanly between issues; verdicts
already written stay in the database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return classifyRun(args)
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyModel, "model", "", "Model name from the registry (default: config/registry default)")
	classifyCmd.Flags().StringVar(&classifyStrategy, "strategy", "", "Context strategy: fixed_lines, function_scope, file_scope")
	classifyCmd.Flags().StringVar(&classifyTemplate, "template", "", "Prompt template name")
	classifyCmd.Flags().IntVar(&classifyLimit, "limit", 0, "Classify at most this many issues (0 = no limit)")
	classifyCmd.Flags().BoolVar(&classifyAll, "all", false, "Re-run classification over every issue, not just pending_llm")
	rootCmd.AddCommand(classifyCmd)
}

func classifyRun(args []string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	reg, err := getRegistry()
	if err != nil {
		return err
	}
	modelName := classifyModel
	if modelName == "" {
		modelName = viper.GetString("model")
	}
	cfg, err := reg.Get(modelName)
	if err != nil {
		return err
	}

	strategyName := classifyStrategy
	if strategyName == "" {
		strategyName = viper.GetString("context.strategy")
	}
	strategy, err := contextbuilder.ParseStrategy(strategyName)
	if err != nil {
		return err
	}

	templateName := classifyTemplate
	if templateName == "" {
		templateName = viper.GetString("prompt_template")
	}
	templateText, err := llm.LoadTemplate(viper.GetString("prompts_dir"), templateName)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	issues, err := selectIssues(ctx, s, args)
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		ui.Info("Nothing to classify.")
		return nil
	}
	if classifyLimit > 0 && len(issues) > classifyLimit {
		issues = issues[:classifyLimit]
	}

	if dryRun {
		ui.DryRunMsg("Would classify %d issues with %s (%s, template %s)",
			len(issues), cfg.Name, strategy, templateName)
		return nil
	}

	classifier, err := llm.NewClassifier(cfg)
	if err != nil {
		return err
	}

	r := runner.New(s, viper.GetString("project_root"), classifier)
	opts := runner.Options{
		Model:        cfg,
		Strategy:     strategy,
		Template:     templateName,
		TemplateText: templateText,
		Context: contextbuilder.Options{
			LinesBefore:  viper.GetInt("context.lines_before"),
			LinesAfter:   viper.GetInt("context.lines_after"),
			MaxFileLines: viper.GetInt("context.max_file_lines"),
		},
		Progress: func(i, total int, issue *models.Issue) {
			ui.Info("[%d/%d] issue %d  %s:%d  %s", i+1, total, issue.ID, issue.File, issue.Line, issue.RuleID)
		},
	}

	res, runErr := r.Run(ctx, issues, opts)

	for _, item := range res.Items {
		switch item.Outcome {
		case runner.OutcomeClassified:
			ui.VerboseLog("issue %d: %s", item.IssueID, output.LabelColor(string(item.Classification)))
		case runner.OutcomeSkippedUnsafe:
			ui.Warning("issue %d: skipped, file path refused", item.IssueID)
		case runner.OutcomeFailed:
			ui.Warning("issue %d: %v", item.IssueID, item.Err)
		}
	}

	if runErr != nil && errors.Is(runErr, context.Canceled) {
		ui.Warning("Interrupted after %d of %d issues.", len(res.Items), len(issues))
	} else if runErr != nil {
		return runErr
	}

	ui.Success("Run %s: %d classified, %d skipped, %d failed",
		output.Cyan(res.RunID), res.Processed, res.Skipped, res.Failed)
	return nil
}

// selectIssues picks the issues to classify: explicit ids when given,
// otherwise pending_llm (or everything with --all).
func selectIssues(ctx context.Context, s store.Store, args []string) ([]*models.Issue, error) {
	if len(args) > 0 {
		issues := make([]*models.Issue, 0, len(args))
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid issue id %q", arg)
			}
			issue, err := s.GetIssue(ctx, id)
			if err != nil {
				return nil, err
			}
			issues = append(issues, issue)
		}
		return issues, nil
	}

	filter := store.IssueFilter{}
	if !classifyAll {
		filter.Statuses = []models.IssueStatus{models.IssueStatusPendingLLM}
	}
	return s.ListIssues(ctx, filter)
}
