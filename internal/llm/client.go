package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/models"
)

// Result is one model verdict plus the transport metadata worth persisting.
// The Classification carries whatever label the model produced; callers
// validate it against the closed set and reject the item on a mismatch.
type Result struct {
	Classification models.Classification
	Explanation    string

	RawResponse      string
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
	LatencyMS        int64
}

// Classifier produces a verdict for one rendered issue prompt.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (*Result, error)
}

// NewClassifier builds a Classifier for the given registry entry.
func NewClassifier(cfg ModelConfig) (Classifier, error) {
	switch cfg.Provider {
	case "anthropic":
		return newAnthropicClassifier(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q for model %q", cfg.Provider, cfg.Name)
	}
}

const classifySystemPrompt = `You review static analysis findings in C and C++ code. Given a finding and the surrounding source, decide how a maintainer should treat it. Return ONLY a JSON object with these fields:
- "classification": exactly one of "false positive", "need fixing", "very serious"
- "explanation": a short justification for the verdict

Rules:
- "false positive": the analyzer is wrong or the flagged pattern is safe in this code
- "need fixing": a real defect or code smell that should be fixed in normal course
- "very serious": a defect with security or crash impact that needs urgent attention
- Base the verdict on the code shown, not on what similar code usually does
- Return valid JSON only, no markdown fencing or explanation outside the object`

type verdict struct {
	Classification string `json:"classification"`
	Explanation    string `json:"explanation"`
}

// anthropicClassifier calls the Anthropic Messages API.
type anthropicClassifier struct {
	api         *anthropic.Client
	model       anthropic.Model
	temperature *float64
	maxTokens   int64
}

func newAnthropicClassifier(cfg ModelConfig) *anthropicClassifier {
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &anthropicClassifier{
		api:         &client,
		model:       anthropic.Model(cfg.Model),
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}
}

// Classify sends the prompt and parses the model's JSON verdict.
func (c *anthropicClassifier) Classify(ctx context.Context, prompt string) (*Result, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: classifySystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if c.temperature != nil {
		params.Temperature = anthropic.Float(*c.temperature)
	}

	start := time.Now()
	msg, err := c.api.Messages.New(ctx, params)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	v, err := parseVerdict(text)
	if err != nil {
		return nil, err
	}

	promptTokens := int(msg.Usage.InputTokens)
	completionTokens := int(msg.Usage.OutputTokens)
	totalTokens := promptTokens + completionTokens

	return &Result{
		Classification:   models.Classification(strings.ToLower(strings.TrimSpace(v.Classification))),
		Explanation:      v.Explanation,
		RawResponse:      text,
		PromptTokens:     &promptTokens,
		CompletionTokens: &completionTokens,
		TotalTokens:      &totalTokens,
		LatencyMS:        latency,
	}, nil
}

// parseVerdict decodes the model's JSON object, stripping markdown fencing
// if present.
func parseVerdict(text string) (*verdict, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var v verdict
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	if v.Classification == "" {
		return nil, fmt.Errorf("LLM response missing classification field\nraw response: %s", text)
	}
	return &v, nil
}
