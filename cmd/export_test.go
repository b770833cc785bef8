package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/models"
	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/output"
	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/store"
)

// cmdTestStore wires the package-level ui and dataStore to a fresh
// database so run functions can be exercised directly.
func cmdTestStore(t *testing.T) (store.Store, *bytes.Buffer) {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	buf := new(bytes.Buffer)
	ui = output.New()
	ui.Out = buf
	ui.ErrOut = new(bytes.Buffer)

	dataStore = s
	t.Cleanup(func() { dataStore = nil })

	return s, buf
}

func seedExportIssue(t *testing.T, s store.Store) *models.Issue {
	t.Helper()
	issue := &models.Issue{
		File:     "src/parse.c",
		Line:     42,
		Severity: "error",
		RuleID:   "nullPointer",
		Summary:  "Null pointer dereference: p",
	}
	_, err := s.AddIssues(context.Background(), []*models.Issue{issue})
	require.NoError(t, err)
	return issue
}

func TestExportIssues(t *testing.T) {
	t.Run("csv", func(t *testing.T) {
		s, buf := cmdTestStore(t)
		seedExportIssue(t, s)

		exportType = "issues"
		exportFormat = "csv"
		require.NoError(t, exportRun())

		records, err := csv.NewReader(buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "File", records[0][1])
		assert.Equal(t, "src/parse.c", records[1][1])
		assert.Equal(t, "nullPointer", records[1][4])
		assert.Equal(t, "pending_llm", records[1][6])
	})

	t.Run("json", func(t *testing.T) {
		s, buf := cmdTestStore(t)
		seedExportIssue(t, s)

		exportType = "issues"
		exportFormat = "json"
		require.NoError(t, exportRun())
		assert.Contains(t, buf.String(), `"src/parse.c"`)
	})

	t.Run("markdown", func(t *testing.T) {
		s, buf := cmdTestStore(t)
		seedExportIssue(t, s)

		exportType = "issues"
		exportFormat = "markdown"
		require.NoError(t, exportRun())
		assert.Contains(t, buf.String(), "# Issues")
		assert.Contains(t, buf.String(), "| src/parse.c:42 |")
	})

	t.Run("unknown format", func(t *testing.T) {
		cmdTestStore(t)
		exportType = "issues"
		exportFormat = "xml"
		assert.Error(t, exportRun())
	})

	t.Run("unknown type", func(t *testing.T) {
		cmdTestStore(t)
		exportType = "everything"
		exportFormat = "json"
		assert.Error(t, exportRun())
	})
}

func TestExportClassifications(t *testing.T) {
	s, buf := cmdTestStore(t)
	issue := seedExportIssue(t, s)

	attempt := &models.ClassificationAttempt{
		IssueID:         issue.ID,
		Model:           "sonnet",
		ContextStrategy: "fixed_lines",
		PromptTemplate:  "default",
		RunID:           "01RUN",
		Classification:  models.ClassificationNeedFixing,
		Explanation:     "pointer may be nil",
	}
	require.NoError(t, s.AddClassification(context.Background(), attempt, nil))

	exportType = "classifications"
	exportFormat = "csv"
	require.NoError(t, exportRun())

	records, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "sonnet", records[1][2])
	assert.Equal(t, "need fixing", records[1][5])
	assert.Equal(t, "01RUN", records[1][6])
}

func TestIssueReviewRun(t *testing.T) {
	t.Run("records verdict", func(t *testing.T) {
		s, _ := cmdTestStore(t)
		issue := seedExportIssue(t, s)

		reviewLabel = "false positive"
		reviewComment = "guarded upstream"
		require.NoError(t, issueReviewRun(issue.ID))

		got, err := s.GetIssue(context.Background(), issue.ID)
		require.NoError(t, err)
		require.NotNil(t, got.TrueClassification)
		assert.Equal(t, models.ClassificationFalsePositive, *got.TrueClassification)
		assert.Equal(t, models.IssueStatusReviewed, got.Status)
	})

	t.Run("invalid label", func(t *testing.T) {
		s, _ := cmdTestStore(t)
		issue := seedExportIssue(t, s)

		reviewLabel = "looks fine"
		err := issueReviewRun(issue.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid label")
	})

	t.Run("unknown issue", func(t *testing.T) {
		cmdTestStore(t)
		reviewLabel = "need fixing"
		err := issueReviewRun(9999)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestIssueListRun(t *testing.T) {
	s, buf := cmdTestStore(t)
	seedExportIssue(t, s)

	issueStatuses = nil
	issueSeverities = nil
	issueRules = nil
	issueContradictory = false

	require.NoError(t, issueListRun())
	out := buf.String()
	assert.Contains(t, out, "src/parse.c")
	assert.Contains(t, out, "nullPointer")
}

func TestStatsRun_Empty(t *testing.T) {
	_, buf := cmdTestStore(t)

	statsTokens = false
	require.NoError(t, statsRun())
	assert.Contains(t, buf.String(), "No classification attempts")
}

func TestStatsRun_BadDate(t *testing.T) {
	cmdTestStore(t)

	statsFrom = "last tuesday"
	t.Cleanup(func() { statsFrom = "" })
	err := statsRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --from date")
}

func TestStatusRun(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, buf := cmdTestStore(t)
		require.NoError(t, statusRun())
		assert.Contains(t, buf.String(), "No issues loaded")
	})

	t.Run("with issues", func(t *testing.T) {
		s, buf := cmdTestStore(t)
		seedExportIssue(t, s)

		require.NoError(t, statusRun())
		out := buf.String()
		assert.Contains(t, out, "pending_llm")
		assert.Contains(t, out, "error")
		assert.Contains(t, out, "nullPointer")
	})
}

func TestResponsesRun_Empty(t *testing.T) {
	_, buf := cmdTestStore(t)

	require.NoError(t, responsesRun())
	assert.Contains(t, buf.String(), "No model interactions")
}
