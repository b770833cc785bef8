package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/models"
)

// statsWhere builds the shared WHERE fragment over the attempt/issue join.
// Time bounds are half-open: From inclusive, To exclusive.
func statsWhere(filter StatsFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.Model != "" {
		conditions = append(conditions, "c.llm_model_name = ?")
		args = append(args, filter.Model)
	}
	if filter.Strategy != "" {
		conditions = append(conditions, "c.context_strategy = ?")
		args = append(args, filter.Strategy)
	}
	if filter.Template != "" {
		conditions = append(conditions, "c.prompt_template = ?")
		args = append(args, filter.Template)
	}
	if filter.From != nil {
		conditions = append(conditions, "c.processing_timestamp >= ?")
		args = append(args, fmtTime(*filter.From))
	}
	if filter.To != nil {
		conditions = append(conditions, "c.processing_timestamp < ?")
		args = append(args, fmtTime(*filter.To))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(conditions, " AND "), args
}

// ComputeStatistics reports LLM accuracy against human verdicts, overall and
// sliced by model, context strategy and prompt template. Only attempts whose
// issue has a true classification participate; everything is recomputed from
// the live tables on each call.
func (s *SQLiteStore) ComputeStatistics(ctx context.Context, filter StatsFilter) (*Statistics, error) {
	where, args := statsWhere(filter)

	stats := &Statistics{
		TrueLabels: make(map[models.Classification]int),
	}

	overall, err := s.sliceStats(ctx, "''", where, args)
	if err != nil {
		return nil, err
	}
	if len(overall) > 0 {
		stats.Overall = overall[0]
		stats.Overall.Key = "overall"
	} else {
		stats.Overall = SliceStats{Key: "overall", Labels: make(map[models.Classification]int)}
	}

	if stats.ByModel, err = s.sliceStats(ctx, "c.llm_model_name", where, args); err != nil {
		return nil, err
	}
	if stats.ByStrategy, err = s.sliceStats(ctx, "c.context_strategy", where, args); err != nil {
		return nil, err
	}
	if stats.ByTemplate, err = s.sliceStats(ctx, "c.prompt_template", where, args); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT true_classification, COUNT(*) FROM issues
		WHERE true_classification IS NOT NULL GROUP BY true_classification`)
	if err != nil {
		return nil, fmt.Errorf("count true labels: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan true label: %w", err)
		}
		stats.TrueLabels[models.Classification(label)] = n
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) sliceStats(ctx context.Context, keyExpr, where string, args []any) ([]SliceStats, error) {
	query := fmt.Sprintf(`SELECT %s AS grp,
		COUNT(*) AS total,
		SUM(CASE WHEN c.classification = i.true_classification THEN 1 ELSE 0 END) AS correct,
		SUM(CASE WHEN c.classification = ? THEN 1 ELSE 0 END),
		SUM(CASE WHEN c.classification = ? THEN 1 ELSE 0 END),
		SUM(CASE WHEN c.classification = ? THEN 1 ELSE 0 END)
	FROM llm_classifications c
	JOIN issues i ON c.issue_id = i.id
	WHERE i.true_classification IS NOT NULL%s
	GROUP BY grp ORDER BY grp`, keyExpr, where)

	queryArgs := []any{
		string(models.ClassificationFalsePositive),
		string(models.ClassificationNeedFixing),
		string(models.ClassificationVerySerious),
	}
	queryArgs = append(queryArgs, args...)

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("compute slice stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var slices []SliceStats
	for rows.Next() {
		var ss SliceStats
		var fp, nf, vs int
		if err := rows.Scan(&ss.Key, &ss.Total, &ss.Correct, &fp, &nf, &vs); err != nil {
			return nil, fmt.Errorf("scan slice stats: %w", err)
		}
		ss.Labels = map[models.Classification]int{
			models.ClassificationFalsePositive: fp,
			models.ClassificationNeedFixing:    nf,
			models.ClassificationVerySerious:   vs,
		}
		if ss.Total > 0 {
			ss.Accuracy = float64(ss.Correct) / float64(ss.Total)
		}
		slices = append(slices, ss)
	}
	return slices, rows.Err()
}

// TokenUsage aggregates interaction log token counts and latency. SQL AVG
// skips NULLs, so records without usage data are left out of the means
// rather than dragging them toward zero.
func (s *SQLiteStore) TokenUsage(ctx context.Context, filter StatsFilter) (*TokenUsage, error) {
	where, args := statsWhere(filter)

	query := `SELECT COUNT(*),
		COALESCE(SUM(r.prompt_tokens), 0),
		COALESCE(SUM(r.completion_tokens), 0),
		COALESCE(SUM(r.total_tokens), 0),
		AVG(r.prompt_tokens),
		AVG(r.completion_tokens),
		AVG(r.total_tokens),
		AVG(r.response_time_ms)
	FROM llm_responses r
	JOIN llm_classifications c ON r.classification_id = c.id
	WHERE 1=1` + where

	usage := &TokenUsage{}
	var meanPrompt, meanCompletion, meanTotal, meanLatency sql.NullFloat64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&usage.Interactions,
		&usage.TotalPromptTokens, &usage.TotalCompletionTokens, &usage.TotalTokens,
		&meanPrompt, &meanCompletion, &meanTotal, &meanLatency,
	)
	if err != nil {
		return nil, fmt.Errorf("compute token usage: %w", err)
	}
	usage.MeanPromptTokens = meanPrompt.Float64
	usage.MeanCompletionTokens = meanCompletion.Float64
	usage.MeanTotalTokens = meanTotal.Float64
	usage.MeanLatencyMS = meanLatency.Float64

	if usage.ByModel, err = s.tokenSlices(ctx, "c.llm_model_name", where, args); err != nil {
		return nil, err
	}
	if usage.ByTemplate, err = s.tokenSlices(ctx, "c.prompt_template", where, args); err != nil {
		return nil, err
	}
	return usage, nil
}

func (s *SQLiteStore) tokenSlices(ctx context.Context, keyExpr, where string, args []any) ([]ModelTokenUsage, error) {
	query := fmt.Sprintf(`SELECT %s AS grp, COUNT(*),
		COALESCE(SUM(r.total_tokens), 0),
		AVG(r.total_tokens)
	FROM llm_responses r
	JOIN llm_classifications c ON r.classification_id = c.id
	WHERE 1=1%s
	GROUP BY grp ORDER BY grp`, keyExpr, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compute token slices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var slices []ModelTokenUsage
	for rows.Next() {
		var mu ModelTokenUsage
		var mean sql.NullFloat64
		if err := rows.Scan(&mu.Key, &mu.Count, &mu.TotalTokens, &mean); err != nil {
			return nil, fmt.Errorf("scan token slice: %w", err)
		}
		mu.MeanTokens = mean.Float64
		slices = append(slices, mu)
	}
	return slices, rows.Err()
}
