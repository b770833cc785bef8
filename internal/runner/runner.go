package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/contextbuilder"
	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/llm"
	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/models"
	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/store"
)

// Outcome describes what happened to one issue in a batch run.
type Outcome string

const (
	OutcomeClassified    Outcome = "classified"
	OutcomeSkippedUnsafe Outcome = "skipped_unsafe"
	OutcomeFailed        Outcome = "failed"
)

// ItemResult is the per-issue record of a batch run.
type ItemResult struct {
	IssueID        int64
	Outcome        Outcome
	Classification models.Classification
	Err            error
}

// Result summarizes one classification run.
type Result struct {
	RunID     string
	Items     []ItemResult
	Processed int
	Skipped   int
	Failed    int
}

// Options configures one classification run.
type Options struct {
	Model    llm.ModelConfig
	Strategy contextbuilder.Strategy
	Template string

	// TemplateText is the loaded prompt template body.
	TemplateText string

	Context contextbuilder.Options

	// Progress, when set, is called before each issue is sent to the model.
	Progress func(index, total int, issue *models.Issue)
}

// Runner drives classification of stored issues through an LLM.
type Runner struct {
	store      store.Store
	builder    *contextbuilder.Builder
	classifier llm.Classifier
}

// New creates a Runner over the given store and project root.
func New(st store.Store, projectRoot string, classifier llm.Classifier) *Runner {
	return &Runner{
		store:      st,
		builder:    contextbuilder.New(projectRoot),
		classifier: classifier,
	}
}

// newRunID generates a ULID to stamp every attempt of one batch.
func newRunID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Run classifies the given issues one at a time. Cancellation is checked
// between issues, so a run stops cleanly at an item boundary with everything
// already classified still persisted. A failed item never aborts the batch.
func (r *Runner) Run(ctx context.Context, issues []*models.Issue, opts Options) (*Result, error) {
	res := &Result{RunID: newRunID()}

	for i, issue := range issues {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if opts.Progress != nil {
			opts.Progress(i, len(issues), issue)
		}

		item := r.runOne(ctx, issue, opts, res.RunID)
		res.Items = append(res.Items, item)
		switch item.Outcome {
		case OutcomeClassified:
			res.Processed++
		case OutcomeSkippedUnsafe:
			res.Skipped++
		case OutcomeFailed:
			res.Failed++
		}
	}
	return res, nil
}

func (r *Runner) runOne(ctx context.Context, issue *models.Issue, opts Options, runID string) ItemResult {
	item := ItemResult{IssueID: issue.ID}

	// Cancellation is honored only at item boundaries in Run. An item that
	// has started runs to completion and its verdict is persisted.
	ctx = context.WithoutCancel(ctx)

	codeContext, err := r.builder.Build(issue.File, issue.Line, opts.Strategy, opts.Context)
	if err != nil {
		if errors.Is(err, contextbuilder.ErrUnsafePath) {
			item.Outcome = OutcomeSkippedUnsafe
			item.Err = err
			return item
		}
		item.Outcome = OutcomeFailed
		item.Err = fmt.Errorf("build context: %w", err)
		return item
	}

	prompt := llm.RenderPrompt(opts.TemplateText, issue, codeContext)

	verdict, err := r.classifier.Classify(ctx, prompt)
	if err != nil {
		item.Outcome = OutcomeFailed
		item.Err = fmt.Errorf("classify: %w", err)
		return item
	}

	// A label outside the closed set fails the item. The verdict is never
	// coerced and nothing is persisted for it.
	if !verdict.Classification.Valid() {
		item.Outcome = OutcomeFailed
		item.Err = fmt.Errorf("model returned invalid classification %q", verdict.Classification)
		return item
	}

	attempt := &models.ClassificationAttempt{
		IssueID:         issue.ID,
		Model:           opts.Model.Name,
		ContextStrategy: string(opts.Strategy),
		PromptTemplate:  opts.Template,
		RunID:           runID,
		Context:         codeContext,
		Classification:  verdict.Classification,
		Explanation:     verdict.Explanation,
	}
	log := &models.InteractionLog{
		Prompt:           prompt,
		Response:         verdict.RawResponse,
		PromptTokens:     verdict.PromptTokens,
		CompletionTokens: verdict.CompletionTokens,
		TotalTokens:      verdict.TotalTokens,
		LatencyMS:        &verdict.LatencyMS,
		Params:           modelParams(opts.Model),
	}

	if err := r.store.AddClassification(ctx, attempt, log); err != nil {
		item.Outcome = OutcomeFailed
		item.Err = fmt.Errorf("persist classification: %w", err)
		return item
	}

	item.Outcome = OutcomeClassified
	item.Classification = verdict.Classification
	return item
}

func modelParams(cfg llm.ModelConfig) *models.ModelParameters {
	p := &models.ModelParameters{Provider: cfg.Provider}
	if cfg.Temperature != nil {
		p.Temperature = *cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		p.MaxTokens = cfg.MaxTokens
	}
	return p
}
