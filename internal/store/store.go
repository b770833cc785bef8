package store

import (
	"context"
	"errors"
	"time"

	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/models"
)

// ErrValidation marks rejected input: a bad classification label, a missing
// required field, or a whole batch rejected because one record is invalid.
var ErrValidation = errors.New("validation error")

// ErrNotFound is returned when a referenced record does not exist. Operations
// where callers routinely probe for existence (SetTrueClassification,
// UpdateReviewFeedback) report not-found through a bool instead.
var ErrNotFound = errors.New("not found")

// IssueFilter selects issues by intersecting the given sets. Empty slices
// match everything. ContradictoryOnly keeps only issues whose attempts carry
// two or more distinct classification labels; this is recomputed from current
// data on every query, never stored.
type IssueFilter struct {
	Statuses          []models.IssueStatus
	Severities        []string
	RuleIDs           []string
	ContradictoryOnly bool

	// LoadAttempts also populates Issue.Attempts for each result.
	LoadAttempts bool
}

// StatsFilter narrows the attempt population for statistics queries.
// From/To form a half-open interval [From, To).
type StatsFilter struct {
	Model    string
	Strategy string
	Template string
	From     *time.Time
	To       *time.Time
}

// ResponseFilter selects interaction log records.
type ResponseFilter struct {
	AttemptID      int64
	IssueID        int64
	Model          string
	From           *time.Time
	To             *time.Time
	MinTotalTokens int
	MaxTotalTokens int
}

// SliceStats is the accuracy summary for one grouping slice. Accuracy is
// defined only over attempts whose parent issue has a human verdict;
// unreviewed attempts never appear in Total.
type SliceStats struct {
	Key      string
	Total    int
	Correct  int
	Accuracy float64
	Labels   map[models.Classification]int
}

// Statistics is the full accuracy breakdown for a filtered population.
type Statistics struct {
	Overall    SliceStats
	ByModel    []SliceStats
	ByStrategy []SliceStats
	ByTemplate []SliceStats

	// TrueLabels counts reviewed issues per human verdict.
	TrueLabels map[models.Classification]int
}

// ModelTokenUsage aggregates token spend for one model or template.
type ModelTokenUsage struct {
	Key         string
	Count       int
	TotalTokens int64
	MeanTokens  float64
}

// TokenUsage aggregates interaction log metrics. Records with absent token
// counts are excluded from means, not counted as zero.
type TokenUsage struct {
	Interactions         int
	TotalPromptTokens    int64
	TotalCompletionTokens int64
	TotalTokens          int64
	MeanPromptTokens     float64
	MeanCompletionTokens float64
	MeanTotalTokens      float64
	MeanLatencyMS        float64

	ByModel    []ModelTokenUsage
	ByTemplate []ModelTokenUsage
}

// Store defines the persistence interface for the review helper.
type Store interface {
	// Issues
	AddIssues(ctx context.Context, issues []*models.Issue) ([]int64, error)
	GetIssue(ctx context.Context, id int64) (*models.Issue, error)
	ListIssues(ctx context.Context, filter IssueFilter) ([]*models.Issue, error)
	CountIssuesByStatus(ctx context.Context) (map[models.IssueStatus]int, error)
	Severities(ctx context.Context) ([]string, error)
	RuleIDs(ctx context.Context) ([]string, error)
	SetTrueClassification(ctx context.Context, issueID int64, label models.Classification, comment string) (bool, error)

	// Classification attempts
	AddClassification(ctx context.Context, attempt *models.ClassificationAttempt, log *models.InteractionLog) error
	ListAttempts(ctx context.Context, issueID int64) ([]*models.ClassificationAttempt, error)
	UpdateReviewFeedback(ctx context.Context, attemptID int64, agrees bool, comment string) (bool, error)

	// Interaction logs
	ListResponses(ctx context.Context, filter ResponseFilter) ([]*models.InteractionLog, error)

	// Statistics
	ComputeStatistics(ctx context.Context, filter StatsFilter) (*Statistics, error)
	TokenUsage(ctx context.Context, filter StatsFilter) (*TokenUsage, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
