package models

import "time"

// IssueStatus represents where an issue sits in the triage lifecycle.
// It only advances forward: pending_llm -> pending_review -> reviewed.
type IssueStatus string

const (
	IssueStatusPendingLLM    IssueStatus = "pending_llm"
	IssueStatusPendingReview IssueStatus = "pending_review"
	IssueStatusReviewed      IssueStatus = "reviewed"
)

// Classification is the 3-way triage verdict for a finding.
type Classification string

const (
	ClassificationFalsePositive Classification = "false positive"
	ClassificationNeedFixing    Classification = "need fixing"
	ClassificationVerySerious   Classification = "very serious"
)

// Classifications lists the closed set of valid labels.
func Classifications() []Classification {
	return []Classification{
		ClassificationFalsePositive,
		ClassificationNeedFixing,
		ClassificationVerySerious,
	}
}

// Valid reports whether c is one of the three accepted labels.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationFalsePositive, ClassificationNeedFixing, ClassificationVerySerious:
		return true
	}
	return false
}

// Issue represents a single cppcheck finding.
// File and Line are analyzer-reported and not trusted: the line may be 0 or
// past the end of the file, and the path is validated against the project
// root before any read.
type Issue struct {
	ID       int64
	File     string
	Line     int
	Severity string
	RuleID   string
	Summary  string

	// TrueClassification is the human-verified verdict, nil until reviewed.
	TrueClassification *Classification
	TrueComment        string

	Status    IssueStatus
	CreatedAt time.Time
	UpdatedAt time.Time

	// Attempts is populated by queries that join classification history.
	Attempts []*ClassificationAttempt
}
