package models

import "time"

// ClassificationAttempt is one model-produced triage verdict for an issue.
// An attempt is immutable once written, except for the two user feedback
// fields set by UpdateReviewFeedback.
type ClassificationAttempt struct {
	ID              int64
	IssueID         int64
	Model           string
	ContextStrategy string
	PromptTemplate  string
	RunID           string // ULID of the batch run that produced this attempt
	Context         string // exact code context supplied to the model
	Classification  Classification
	Explanation     string
	ProcessedAt     time.Time

	// User feedback on this specific attempt (distinct from the issue's
	// true classification).
	UserAgrees  *bool
	UserComment string
}

// ModelParameters records the sampling parameters used for a model call.
// Serialized to JSON in the interaction log.
type ModelParameters struct {
	Provider    string  `json:"provider,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// InteractionLog is the raw request/response record tied 1:1 to a
// classification attempt. Token counts are nil when the provider did not
// report them; they stay nil through storage and are excluded from means.
type InteractionLog struct {
	ID        int64
	AttemptID int64
	Prompt    string
	Response  string

	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
	LatencyMS        *int64

	Params    *ModelParameters
	Timestamp time.Time

	// Joined display fields, populated by list queries.
	IssueID int64
	Model   string
}
