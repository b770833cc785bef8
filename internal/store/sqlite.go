package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors from overlapping readers
	// and writers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Timestamps are stored as RFC 3339 UTC strings so they stay lexicographically
// ordered and readable by other tooling against the same database.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	// Rows written by sqlite's CURRENT_TIMESTAMP (older databases).
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// --- Issues ---

// AddIssues bulk-inserts issues with status pending_llm. The whole batch is
// validated before anything is written: one invalid record rejects the lot.
// Returned ids are in input order; the issues' ID/Status/timestamps are also
// filled in place.
func (s *SQLiteStore) AddIssues(ctx context.Context, issues []*models.Issue) ([]int64, error) {
	for i, issue := range issues {
		if err := validateIssue(issue); err != nil {
			return nil, fmt.Errorf("issue %d of %d: %w", i+1, len(issues), err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	ids := make([]int64, 0, len(issues))
	for _, issue := range issues {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO issues (cppcheck_file, cppcheck_line, cppcheck_severity, cppcheck_id, cppcheck_summary, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			issue.File, issue.Line, issue.Severity, issue.RuleID, issue.Summary,
			string(models.IssueStatusPendingLLM), fmtTime(now), fmtTime(now),
		)
		if err != nil {
			return nil, fmt.Errorf("insert issue: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("insert issue id: %w", err)
		}
		issue.ID = id
		issue.Status = models.IssueStatusPendingLLM
		issue.CreatedAt = now
		issue.UpdatedAt = now
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return ids, nil
}

func validateIssue(issue *models.Issue) error {
	switch {
	case issue.File == "":
		return fmt.Errorf("%w: missing file", ErrValidation)
	case issue.Line < 0:
		return fmt.Errorf("%w: negative line number", ErrValidation)
	case issue.Severity == "":
		return fmt.Errorf("%w: missing severity", ErrValidation)
	case issue.RuleID == "":
		return fmt.Errorf("%w: missing rule id", ErrValidation)
	case issue.Summary == "":
		return fmt.Errorf("%w: missing summary", ErrValidation)
	}
	return nil
}

const issueColumns = `id, cppcheck_file, cppcheck_line, cppcheck_severity, cppcheck_id, cppcheck_summary,
	true_classification, true_classification_comment, status, created_at, updated_at`

func scanIssue(row interface{ Scan(...any) error }) (*models.Issue, error) {
	issue := &models.Issue{}
	var trueClass, trueComment sql.NullString
	var createdAt, updatedAt, status string

	err := row.Scan(&issue.ID, &issue.File, &issue.Line, &issue.Severity, &issue.RuleID, &issue.Summary,
		&trueClass, &trueComment, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	issue.Status = models.IssueStatus(status)
	if trueClass.Valid {
		c := models.Classification(trueClass.String)
		issue.TrueClassification = &c
	}
	issue.TrueComment = trueComment.String
	issue.CreatedAt = parseTime(createdAt)
	issue.UpdatedAt = parseTime(updatedAt)
	return issue, nil
}

// GetIssue returns the issue with its classification attempts, newest first.
func (s *SQLiteStore) GetIssue(ctx context.Context, id int64) (*models.Issue, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)

	issue, err := scanIssue(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("issue %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}

	attempts, err := s.ListAttempts(ctx, id)
	if err != nil {
		return nil, err
	}
	issue.Attempts = attempts
	return issue, nil
}

// ListIssues returns issues matching the intersection of all filter sets,
// newest first. The contradictory-only predicate is evaluated against the
// current attempt data on every call.
func (s *SQLiteStore) ListIssues(ctx context.Context, filter IssueFilter) ([]*models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues`
	var conditions []string
	var args []any

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(filter.Severities) > 0 {
		placeholders := make([]string, len(filter.Severities))
		for i, sev := range filter.Severities {
			placeholders[i] = "?"
			args = append(args, sev)
		}
		conditions = append(conditions, "cppcheck_severity IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(filter.RuleIDs) > 0 {
		placeholders := make([]string, len(filter.RuleIDs))
		for i, rid := range filter.RuleIDs {
			placeholders[i] = "?"
			args = append(args, rid)
		}
		conditions = append(conditions, "cppcheck_id IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.ContradictoryOnly {
		conditions = append(conditions,
			`id IN (SELECT issue_id FROM llm_classifications GROUP BY issue_id HAVING COUNT(DISTINCT classification) > 1)`)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if filter.LoadAttempts {
		for _, issue := range issues {
			attempts, err := s.ListAttempts(ctx, issue.ID)
			if err != nil {
				return nil, err
			}
			issue.Attempts = attempts
		}
	}
	return issues, nil
}

// CountIssuesByStatus returns issue counts grouped by lifecycle status.
func (s *SQLiteStore) CountIssuesByStatus(ctx context.Context) (map[models.IssueStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM issues GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count issues by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[models.IssueStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[models.IssueStatus(status)] = n
	}
	return counts, rows.Err()
}

// Severities returns the distinct severity labels present in the database.
func (s *SQLiteStore) Severities(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "cppcheck_severity")
}

// RuleIDs returns the distinct analyzer rule ids present in the database.
func (s *SQLiteStore) RuleIDs(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "cppcheck_id")
}

func (s *SQLiteStore) distinct(ctx context.Context, column string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT "+column+" FROM issues ORDER BY 1")
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", column, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// SetTrueClassification records the human verdict and advances the issue to
// reviewed. Idempotent: a second call overwrites the verdict and leaves the
// status at reviewed. Returns false when the issue id is unknown.
func (s *SQLiteStore) SetTrueClassification(ctx context.Context, issueID int64, label models.Classification, comment string) (bool, error) {
	if !label.Valid() {
		return false, fmt.Errorf("%w: invalid classification %q", ErrValidation, label)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE issues SET true_classification = ?, true_classification_comment = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		string(label), nullString(comment), string(models.IssueStatusReviewed), fmtTime(time.Now()), issueID,
	)
	if err != nil {
		return false, fmt.Errorf("set true classification: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// --- Classification attempts ---

// AddClassification validates and inserts an attempt, advancing the parent
// issue from pending_llm to pending_review if this is its first attempt.
// The insert and the status transition commit as one transaction, together
// with the interaction log when one is supplied. The attempt's (and log's)
// ID and timestamps are filled in place.
func (s *SQLiteStore) AddClassification(ctx context.Context, attempt *models.ClassificationAttempt, log *models.InteractionLog) error {
	if !attempt.Classification.Valid() {
		return fmt.Errorf("%w: invalid classification %q", ErrValidation, attempt.Classification)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM issues WHERE id = ?", attempt.IssueID).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("issue %d: %w", attempt.IssueID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check issue: %w", err)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO llm_classifications (issue_id, llm_model_name, context_strategy, prompt_template, run_id, source_code_context, classification, explanation, processing_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.IssueID, attempt.Model, attempt.ContextStrategy, attempt.PromptTemplate,
		nullString(attempt.RunID), attempt.Context, string(attempt.Classification),
		nullString(attempt.Explanation), fmtTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert classification: %w", err)
	}
	attemptID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert classification id: %w", err)
	}

	// First attempt advances the issue out of pending_llm. The WHERE clause
	// keeps the transition monotonic: re-running classification never pulls
	// a reviewed issue back.
	_, err = tx.ExecContext(ctx,
		`UPDATE issues SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(models.IssueStatusPendingReview), fmtTime(now), attempt.IssueID, string(models.IssueStatusPendingLLM),
	)
	if err != nil {
		return fmt.Errorf("advance issue status: %w", err)
	}

	if log != nil {
		var paramsJSON any
		if log.Params != nil {
			data, err := json.Marshal(log.Params)
			if err != nil {
				return fmt.Errorf("marshal model parameters: %w", err)
			}
			paramsJSON = string(data)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO llm_responses (classification_id, full_prompt, full_response, prompt_tokens, completion_tokens, total_tokens, response_time_ms, model_parameters, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			attemptID, log.Prompt, log.Response,
			nullInt(log.PromptTokens), nullInt(log.CompletionTokens), nullInt(log.TotalTokens),
			nullInt64(log.LatencyMS), paramsJSON, fmtTime(now),
		)
		if err != nil {
			return fmt.Errorf("insert llm response: %w", err)
		}
		logID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert llm response id: %w", err)
		}
		log.ID = logID
		log.AttemptID = attemptID
		log.Timestamp = now
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	attempt.ID = attemptID
	attempt.ProcessedAt = now
	return nil
}

// ListAttempts returns an issue's classification attempts, newest first.
func (s *SQLiteStore) ListAttempts(ctx context.Context, issueID int64) ([]*models.ClassificationAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, issue_id, llm_model_name, context_strategy, prompt_template, run_id, source_code_context, classification, explanation, processing_timestamp, user_agrees, user_comment
		FROM llm_classifications WHERE issue_id = ?
		ORDER BY processing_timestamp DESC, id DESC`, issueID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var attempts []*models.ClassificationAttempt
	for rows.Next() {
		a := &models.ClassificationAttempt{}
		var runID, explanation, userComment sql.NullString
		var userAgrees sql.NullBool
		var classification, processedAt string

		if err := rows.Scan(&a.ID, &a.IssueID, &a.Model, &a.ContextStrategy, &a.PromptTemplate,
			&runID, &a.Context, &classification, &explanation, &processedAt,
			&userAgrees, &userComment); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}

		a.RunID = runID.String
		a.Classification = models.Classification(classification)
		a.Explanation = explanation.String
		a.ProcessedAt = parseTime(processedAt)
		if userAgrees.Valid {
			v := userAgrees.Bool
			a.UserAgrees = &v
		}
		a.UserComment = userComment.String
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// UpdateReviewFeedback sets the user's agreement verdict on one attempt.
// Only the two feedback fields change; everything else on the attempt stays
// immutable. Returns false when the attempt id is unknown.
func (s *SQLiteStore) UpdateReviewFeedback(ctx context.Context, attemptID int64, agrees bool, comment string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE llm_classifications SET user_agrees = ?, user_comment = ? WHERE id = ?`,
		agrees, nullString(comment), attemptID,
	)
	if err != nil {
		return false, fmt.Errorf("update review feedback: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// --- Interaction logs ---

// ListResponses returns interaction log records joined with their attempt's
// issue id and model name, newest first.
func (s *SQLiteStore) ListResponses(ctx context.Context, filter ResponseFilter) ([]*models.InteractionLog, error) {
	query := `SELECT r.id, r.classification_id, r.full_prompt, r.full_response,
		r.prompt_tokens, r.completion_tokens, r.total_tokens,
		r.response_time_ms, r.model_parameters, r.timestamp,
		c.issue_id, c.llm_model_name
	FROM llm_responses r
	JOIN llm_classifications c ON r.classification_id = c.id`

	var conditions []string
	var args []any

	if filter.AttemptID > 0 {
		conditions = append(conditions, "r.classification_id = ?")
		args = append(args, filter.AttemptID)
	}
	if filter.IssueID > 0 {
		conditions = append(conditions, "c.issue_id = ?")
		args = append(args, filter.IssueID)
	}
	if filter.Model != "" {
		conditions = append(conditions, "c.llm_model_name = ?")
		args = append(args, filter.Model)
	}
	if filter.From != nil {
		conditions = append(conditions, "r.timestamp >= ?")
		args = append(args, fmtTime(*filter.From))
	}
	if filter.To != nil {
		conditions = append(conditions, "r.timestamp < ?")
		args = append(args, fmtTime(*filter.To))
	}
	if filter.MinTotalTokens > 0 {
		conditions = append(conditions, "r.total_tokens >= ?")
		args = append(args, filter.MinTotalTokens)
	}
	if filter.MaxTotalTokens > 0 {
		conditions = append(conditions, "r.total_tokens <= ?")
		args = append(args, filter.MaxTotalTokens)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY r.timestamp DESC, r.id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []*models.InteractionLog
	for rows.Next() {
		l := &models.InteractionLog{}
		var promptTokens, completionTokens, totalTokens, latency sql.NullInt64
		var paramsJSON sql.NullString
		var timestamp string

		if err := rows.Scan(&l.ID, &l.AttemptID, &l.Prompt, &l.Response,
			&promptTokens, &completionTokens, &totalTokens,
			&latency, &paramsJSON, &timestamp,
			&l.IssueID, &l.Model); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}

		l.PromptTokens = intPtr(promptTokens)
		l.CompletionTokens = intPtr(completionTokens)
		l.TotalTokens = intPtr(totalTokens)
		if latency.Valid {
			v := latency.Int64
			l.LatencyMS = &v
		}
		if paramsJSON.Valid {
			var p models.ModelParameters
			if err := json.Unmarshal([]byte(paramsJSON.String), &p); err == nil {
				l.Params = &p
			}
		}
		l.Timestamp = parseTime(timestamp)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// --- scan/bind helpers ---

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
