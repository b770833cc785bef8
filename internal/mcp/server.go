package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/models"
	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/store"
)

// Server exposes the triage database as MCP tools so an agent can browse
// findings, read model verdicts, and record human review decisions.
type Server struct {
	store store.Store
}

// NewServer creates the MCP server wrapper over the record store.
func NewServer(s store.Store) *Server {
	return &Server{store: s}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("reviewhelper", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.getIssueTool())
	srv.AddTool(s.getStatisticsTool())
	srv.AddTool(s.reviewIssueTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

type issueOut struct {
	ID                 int64  `json:"id"`
	File               string `json:"file"`
	Line               int    `json:"line"`
	Severity           string `json:"severity"`
	RuleID             string `json:"rule_id"`
	Summary            string `json:"summary"`
	Status             string `json:"status"`
	TrueClassification string `json:"true_classification,omitempty"`
	TrueComment        string `json:"true_classification_comment,omitempty"`
}

type attemptOut struct {
	ID             int64  `json:"id"`
	Model          string `json:"model"`
	Strategy       string `json:"context_strategy"`
	Template       string `json:"prompt_template"`
	RunID          string `json:"run_id,omitempty"`
	Classification string `json:"classification"`
	Explanation    string `json:"explanation,omitempty"`
	ProcessedAt    string `json:"processed_at"`
	UserAgrees     *bool  `json:"user_agrees,omitempty"`
	UserComment    string `json:"user_comment,omitempty"`
}

func issueToOut(i *models.Issue) issueOut {
	out := issueOut{
		ID:          i.ID,
		File:        i.File,
		Line:        i.Line,
		Severity:    i.Severity,
		RuleID:      i.RuleID,
		Summary:     i.Summary,
		Status:      string(i.Status),
		TrueComment: i.TrueComment,
	}
	if i.TrueClassification != nil {
		out.TrueClassification = string(*i.TrueClassification)
	}
	return out
}

func attemptToOut(a *models.ClassificationAttempt) attemptOut {
	return attemptOut{
		ID:             a.ID,
		Model:          a.Model,
		Strategy:       a.ContextStrategy,
		Template:       a.PromptTemplate,
		RunID:          a.RunID,
		Classification: string(a.Classification),
		Explanation:    a.Explanation,
		ProcessedAt:    a.ProcessedAt.UTC().Format(time.RFC3339),
		UserAgrees:     a.UserAgrees,
		UserComment:    a.UserComment,
	}
}

// rh_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rh_list_issues",
		mcp.WithDescription("List static analysis issues, optionally filtered. Returns a JSON array with id, file, line, severity, rule_id, summary, status (pending_llm/pending_review/reviewed), and any recorded human verdict."),
		mcp.WithString("status", mcp.Description("Status filter: pending_llm, pending_review, reviewed")),
		mcp.WithString("severity", mcp.Description("Analyzer severity filter, e.g. error, warning, style")),
		mcp.WithString("rule_id", mcp.Description("Analyzer rule id filter, e.g. nullPointer")),
		mcp.WithBoolean("contradictory", mcp.Description("Only issues whose model verdicts disagree with each other")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.IssueFilter{
		ContradictoryOnly: request.GetBool("contradictory", false),
	}
	if st := request.GetString("status", ""); st != "" {
		filter.Statuses = []models.IssueStatus{models.IssueStatus(st)}
	}
	if sev := request.GetString("severity", ""); sev != "" {
		filter.Severities = []string{sev}
	}
	if rule := request.GetString("rule_id", ""); rule != "" {
		filter.RuleIDs = []string{rule}
	}

	issues, err := s.store.ListIssues(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}

	out := make([]issueOut, len(issues))
	for i, issue := range issues {
		out[i] = issueToOut(issue)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal issues: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// rh_get_issue
func (s *Server) getIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rh_get_issue",
		mcp.WithDescription("Get one issue with its full model classification history. Returns the issue plus an attempts array (model, strategy, template, classification, explanation, user feedback)."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Issue id")),
	)
	return tool, s.handleGetIssue
}

func (s *Server) handleGetIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	issue, err := s.store.GetIssue(ctx, int64(id))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("issue not found: %d", id)), nil
	}

	out := struct {
		issueOut
		Attempts []attemptOut `json:"attempts"`
	}{issueOut: issueToOut(issue)}
	for _, a := range issue.Attempts {
		out.Attempts = append(out.Attempts, attemptToOut(a))
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal issue: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// rh_get_statistics
func (s *Server) getStatisticsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rh_get_statistics",
		mcp.WithDescription("Get LLM classification accuracy statistics against human verdicts, overall and broken down by model, context strategy, and prompt template."),
		mcp.WithString("model", mcp.Description("Only attempts by this model")),
		mcp.WithString("strategy", mcp.Description("Only attempts using this context strategy")),
		mcp.WithString("template", mcp.Description("Only attempts using this prompt template")),
	)
	return tool, s.handleGetStatistics
}

func (s *Server) handleGetStatistics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.StatsFilter{
		Model:    request.GetString("model", ""),
		Strategy: request.GetString("strategy", ""),
		Template: request.GetString("template", ""),
	}

	stats, err := s.store.ComputeStatistics(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to compute statistics: %v", err)), nil
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal statistics: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// rh_review_issue
func (s *Server) reviewIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rh_review_issue",
		mcp.WithDescription("Record the human verdict for an issue and mark it reviewed. classification must be exactly one of: false positive, need fixing, very serious."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Issue id")),
		mcp.WithString("classification", mcp.Required(), mcp.Description("True classification: false positive, need fixing, very serious")),
		mcp.WithString("comment", mcp.Description("Optional review comment")),
	)
	return tool, s.handleReviewIssue
}

func (s *Server) handleReviewIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	label, err := request.RequireString("classification")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: classification"), nil
	}
	comment := request.GetString("comment", "")

	ok, err := s.store.SetTrueClassification(ctx, int64(id), models.Classification(label), comment)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to set classification: %v", err)), nil
	}
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("issue not found: %d", id)), nil
	}

	issue, err := s.store.GetIssue(ctx, int64(id))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to reload issue: %v", err)), nil
	}

	data, err := json.Marshal(issueToOut(issue))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal issue: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
