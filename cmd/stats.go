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
	statsModel    string
	statsStrategy string
	statsTemplate string
	statsFrom     string
	statsTo       string
	statsTokens   bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Accuracy and token usage statistics",
	Long: `Compare model verdicts against human review.

Accuracy covers only attempts on issues a human has reviewed. Filters
narrow the population; --from/--to take calendar dates (YYYY-MM-DD),
--to exclusive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return statsRun()
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsModel, "model", "", "Only attempts by this model")
	statsCmd.Flags().StringVar(&statsStrategy, "strategy", "", "Only attempts using this context strategy")
	statsCmd.Flags().StringVar(&statsTemplate, "template", "", "Only attempts using this prompt template")
	statsCmd.Flags().StringVar(&statsFrom, "from", "", "Only attempts on or after this date (YYYY-MM-DD)")
	statsCmd.Flags().StringVar(&statsTo, "to", "", "Only attempts before this date (YYYY-MM-DD)")
	statsCmd.Flags().BoolVar(&statsTokens, "tokens", false, "Show token usage instead of accuracy")
	rootCmd.AddCommand(statsCmd)
}

func statsFilter() (store.StatsFilter, error) {
	filter := store.StatsFilter{
		Model:    statsModel,
		Strategy: statsStrategy,
		Template: statsTemplate,
	}
	if statsFrom != "" {
		t, err := time.Parse("2006-01-02", statsFrom)
		if err != nil {
			return filter, fmt.Errorf("invalid --from date %q: %w", statsFrom, err)
		}
		filter.From = &t
	}
	if statsTo != "" {
		t, err := time.Parse("2006-01-02", statsTo)
		if err != nil {
			return filter, fmt.Errorf("invalid --to date %q: %w", statsTo, err)
		}
		filter.To = &t
	}
	return filter, nil
}

func statsRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	filter, err := statsFilter()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if statsTokens {
		usage, err := s.TokenUsage(ctx, filter)
		if err != nil {
			return err
		}
		return renderTokenUsage(usage)
	}

	stats, err := s.ComputeStatistics(ctx, filter)
	if err != nil {
		return err
	}
	return renderStatistics(stats)
}

func renderStatistics(stats *store.Statistics) error {
	if stats.Overall.Total == 0 {
		ui.Info("No classification attempts on reviewed issues yet.")
		return nil
	}

	fmt.Fprintf(ui.Out, "%s  %d attempts, %d correct, accuracy %s\n\n",
		output.Cyan("Overall"), stats.Overall.Total, stats.Overall.Correct,
		output.AccuracyColor(stats.Overall.Accuracy))

	renderSliceTable("Model", stats.ByModel)
	renderSliceTable("Strategy", stats.ByStrategy)
	renderSliceTable("Template", stats.ByTemplate)

	if len(stats.TrueLabels) > 0 {
		table := ui.Table([]string{"Human Verdict", "Issues"})
		for _, label := range []models.Classification{
			models.ClassificationFalsePositive,
			models.ClassificationNeedFixing,
			models.ClassificationVerySerious,
		} {
			if n, ok := stats.TrueLabels[label]; ok {
				_ = table.Append([]string{output.LabelColor(string(label)), strconv.Itoa(n)})
			}
		}
		_ = table.Render()
	}
	return nil
}

func renderSliceTable(name string, slices []store.SliceStats) {
	if len(slices) == 0 {
		return
	}
	table := ui.Table([]string{name, "Attempts", "Correct", "Accuracy", "False Positive", "Need Fixing", "Very Serious"})
	for _, sl := range slices {
		_ = table.Append([]string{
			sl.Key,
			strconv.Itoa(sl.Total),
			strconv.Itoa(sl.Correct),
			output.AccuracyColor(sl.Accuracy),
			strconv.Itoa(sl.Labels[models.ClassificationFalsePositive]),
			strconv.Itoa(sl.Labels[models.ClassificationNeedFixing]),
			strconv.Itoa(sl.Labels[models.ClassificationVerySerious]),
		})
	}
	_ = table.Render()
	fmt.Fprintln(ui.Out)
}

func renderTokenUsage(usage *store.TokenUsage) error {
	if usage.Interactions == 0 {
		ui.Info("No model interactions recorded yet.")
		return nil
	}

	fmt.Fprintf(ui.Out, "%s  %d interactions\n", output.Cyan("Token usage"), usage.Interactions)
	fmt.Fprintf(ui.Out, "  Prompt:     %d total, %.1f mean\n", usage.TotalPromptTokens, usage.MeanPromptTokens)
	fmt.Fprintf(ui.Out, "  Completion: %d total, %.1f mean\n", usage.TotalCompletionTokens, usage.MeanCompletionTokens)
	fmt.Fprintf(ui.Out, "  Total:      %d total, %.1f mean\n", usage.TotalTokens, usage.MeanTotalTokens)
	fmt.Fprintf(ui.Out, "  Latency:    %.0f ms mean\n\n", usage.MeanLatencyMS)

	renderTokenSlice("Model", usage.ByModel)
	renderTokenSlice("Template", usage.ByTemplate)
	return nil
}

func renderTokenSlice(name string, slices []store.ModelTokenUsage) {
	if len(slices) == 0 {
		return
	}
	table := ui.Table([]string{name, "Interactions", "Total Tokens", "Mean Tokens"})
	for _, sl := range slices {
		_ = table.Append([]string{
			sl.Key,
			strconv.Itoa(sl.Count),
			strconv.FormatInt(sl.TotalTokens, 10),
			fmt.Sprintf("%.1f", sl.MeanTokens),
		})
	}
	_ = table.Render()
	fmt.Fprintln(ui.Out)
}
