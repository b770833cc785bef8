package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/models"
)

func addAttempt(t *testing.T, s *SQLiteStore, issueID int64, label models.Classification, model, strategy, template string, totalTokens *int) {
	t.Helper()
	attempt := &models.ClassificationAttempt{
		IssueID:         issueID,
		Model:           model,
		ContextStrategy: strategy,
		PromptTemplate:  template,
		Classification:  label,
	}
	var log *models.InteractionLog
	if totalTokens != nil {
		log = &models.InteractionLog{Prompt: "p", Response: "r", TotalTokens: totalTokens}
	} else {
		log = &models.InteractionLog{Prompt: "p", Response: "r"}
	}
	require.NoError(t, s.AddClassification(context.Background(), attempt, log))
}

func sliceByKey(slices []SliceStats, key string) *SliceStats {
	for i := range slices {
		if slices[i].Key == key {
			return &slices[i]
		}
	}
	return nil
}

func TestComputeStatistics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// three reviewed issues, one still unreviewed
	a := seedIssue(t, s, "error", "nullPointer")
	b := seedIssue(t, s, "error", "memleak")
	c := seedIssue(t, s, "style", "unusedVariable")
	unreviewed := seedIssue(t, s, "style", "shadowVariable")

	// sonnet gets a and b right, c wrong; haiku only attempts a, wrongly
	addAttempt(t, s, a.ID, models.ClassificationNeedFixing, "sonnet", "fixed_lines", "default", nil)
	addAttempt(t, s, b.ID, models.ClassificationVerySerious, "sonnet", "function_scope", "default", nil)
	addAttempt(t, s, c.ID, models.ClassificationNeedFixing, "sonnet", "fixed_lines", "strict", nil)
	addAttempt(t, s, a.ID, models.ClassificationFalsePositive, "haiku", "fixed_lines", "default", nil)
	addAttempt(t, s, unreviewed.ID, models.ClassificationFalsePositive, "sonnet", "fixed_lines", "default", nil)

	_, err := s.SetTrueClassification(ctx, a.ID, models.ClassificationNeedFixing, "")
	require.NoError(t, err)
	_, err = s.SetTrueClassification(ctx, b.ID, models.ClassificationVerySerious, "")
	require.NoError(t, err)
	_, err = s.SetTrueClassification(ctx, c.ID, models.ClassificationFalsePositive, "")
	require.NoError(t, err)

	t.Run("overall excludes unreviewed attempts", func(t *testing.T) {
		stats, err := s.ComputeStatistics(ctx, StatsFilter{})
		require.NoError(t, err)

		// 4 attempts on reviewed issues; the attempt on the unreviewed
		// issue does not count at all
		assert.Equal(t, 4, stats.Overall.Total)
		assert.Equal(t, 2, stats.Overall.Correct)
		assert.InDelta(t, 0.5, stats.Overall.Accuracy, 1e-9)
	})

	t.Run("by model", func(t *testing.T) {
		stats, err := s.ComputeStatistics(ctx, StatsFilter{})
		require.NoError(t, err)

		sonnet := sliceByKey(stats.ByModel, "sonnet")
		require.NotNil(t, sonnet)
		assert.Equal(t, 3, sonnet.Total)
		assert.Equal(t, 2, sonnet.Correct)
		assert.InDelta(t, 2.0/3.0, sonnet.Accuracy, 1e-9)
		assert.Equal(t, 2, sonnet.Labels[models.ClassificationNeedFixing])
		assert.Equal(t, 1, sonnet.Labels[models.ClassificationVerySerious])
		assert.Equal(t, 0, sonnet.Labels[models.ClassificationFalsePositive])

		haiku := sliceByKey(stats.ByModel, "haiku")
		require.NotNil(t, haiku)
		assert.Equal(t, 1, haiku.Total)
		assert.Equal(t, 0, haiku.Correct)
		assert.Equal(t, 0.0, haiku.Accuracy)
	})

	t.Run("by strategy and template", func(t *testing.T) {
		stats, err := s.ComputeStatistics(ctx, StatsFilter{})
		require.NoError(t, err)

		fixed := sliceByKey(stats.ByStrategy, "fixed_lines")
		require.NotNil(t, fixed)
		assert.Equal(t, 3, fixed.Total)

		fn := sliceByKey(stats.ByStrategy, "function_scope")
		require.NotNil(t, fn)
		assert.Equal(t, 1, fn.Total)
		assert.Equal(t, 1, fn.Correct)

		strict := sliceByKey(stats.ByTemplate, "strict")
		require.NotNil(t, strict)
		assert.Equal(t, 1, strict.Total)
		assert.Equal(t, 0, strict.Correct)
	})

	t.Run("model filter narrows population", func(t *testing.T) {
		stats, err := s.ComputeStatistics(ctx, StatsFilter{Model: "sonnet"})
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Overall.Total)
		assert.Equal(t, 2, stats.Overall.Correct)
	})

	t.Run("true label distribution", func(t *testing.T) {
		stats, err := s.ComputeStatistics(ctx, StatsFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.TrueLabels[models.ClassificationNeedFixing])
		assert.Equal(t, 1, stats.TrueLabels[models.ClassificationVerySerious])
		assert.Equal(t, 1, stats.TrueLabels[models.ClassificationFalsePositive])
	})

	t.Run("empty population", func(t *testing.T) {
		stats, err := s.ComputeStatistics(ctx, StatsFilter{Model: "nonexistent"})
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Overall.Total)
		assert.Equal(t, 0.0, stats.Overall.Accuracy)
	})
}

func TestTokenUsage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := seedIssue(t, s, "error", "nullPointer")
	b := seedIssue(t, s, "error", "memleak")

	hundred := 100
	twoHundred := 200
	addAttempt(t, s, a.ID, models.ClassificationNeedFixing, "sonnet", "fixed_lines", "default", &hundred)
	addAttempt(t, s, b.ID, models.ClassificationFalsePositive, "sonnet", "fixed_lines", "default", &twoHundred)
	// a record without token data must not drag the mean toward zero
	addAttempt(t, s, a.ID, models.ClassificationNeedFixing, "haiku", "fixed_lines", "default", nil)

	t.Run("absent counts excluded from mean", func(t *testing.T) {
		usage, err := s.TokenUsage(ctx, StatsFilter{})
		require.NoError(t, err)

		assert.Equal(t, 3, usage.Interactions)
		assert.Equal(t, int64(300), usage.TotalTokens)
		assert.InDelta(t, 150.0, usage.MeanTotalTokens, 1e-9)
	})

	t.Run("by model", func(t *testing.T) {
		usage, err := s.TokenUsage(ctx, StatsFilter{})
		require.NoError(t, err)

		require.Len(t, usage.ByModel, 2)
		var sonnet, haiku *ModelTokenUsage
		for i := range usage.ByModel {
			switch usage.ByModel[i].Key {
			case "sonnet":
				sonnet = &usage.ByModel[i]
			case "haiku":
				haiku = &usage.ByModel[i]
			}
		}
		require.NotNil(t, sonnet)
		assert.Equal(t, 2, sonnet.Count)
		assert.Equal(t, int64(300), sonnet.TotalTokens)
		assert.InDelta(t, 150.0, sonnet.MeanTokens, 1e-9)

		require.NotNil(t, haiku)
		assert.Equal(t, 1, haiku.Count)
		assert.Equal(t, int64(0), haiku.TotalTokens)
		assert.Equal(t, 0.0, haiku.MeanTokens)
	})

	t.Run("model filter", func(t *testing.T) {
		usage, err := s.TokenUsage(ctx, StatsFilter{Model: "sonnet"})
		require.NoError(t, err)
		assert.Equal(t, 2, usage.Interactions)
		assert.Equal(t, int64(300), usage.TotalTokens)
	})

	t.Run("empty population", func(t *testing.T) {
		usage, err := s.TokenUsage(ctx, StatsFilter{Model: "nonexistent"})
		require.NoError(t, err)
		assert.Equal(t, 0, usage.Interactions)
		assert.Equal(t, 0.0, usage.MeanTotalTokens)
	})
}
