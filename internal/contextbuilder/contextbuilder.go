// Package contextbuilder turns an (analyzer file, line) pair into a bounded,
// line-numbered source excerpt for the model prompt. All file access goes
// through the fileutil path guard; an unsafe path fails before any strategy
// logic runs.
package contextbuilder

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/fileutil"
)

// Sentinel errors. ErrUnsafePath and ErrUnreadable are per-file failures and
// skip a single issue; ErrUnknownStrategy is a configuration error and should
// abort the run. Messages deliberately carry no path detail.
var (
	ErrUnsafePath      = errors.New("file path is outside the project root or not a regular file")
	ErrUnreadable      = errors.New("file could not be read")
	ErrUnknownStrategy = errors.New("unknown context strategy")
)

// Strategy names a context extraction algorithm. The set is closed.
type Strategy string

const (
	StrategyFixedLines    Strategy = "fixed_lines"
	StrategyFunctionScope Strategy = "function_scope"
	StrategyFileScope     Strategy = "file_scope"
)

// Strategies lists all supported strategies.
func Strategies() []Strategy {
	return []Strategy{StrategyFixedLines, StrategyFunctionScope, StrategyFileScope}
}

// ParseStrategy validates a strategy name from config or flags.
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(name)
	if _, ok := extractors[s]; !ok {
		return "", fmt.Errorf("%w: %q (valid: fixed_lines, function_scope, file_scope)", ErrUnknownStrategy, name)
	}
	return s, nil
}

// Defaults, matching the original review-helper configuration.
const (
	DefaultLinesBefore  = 5
	DefaultLinesAfter   = 5
	DefaultMaxFileLines = 1000

	// scanWindow bounds the function_scope brace search so pathological
	// files cannot trigger an unbounded scan.
	scanWindow = 500
)

// Options tune the extraction strategies. Zero values fall back to defaults.
type Options struct {
	LinesBefore  int
	LinesAfter   int
	MaxFileLines int
}

func (o Options) withDefaults() Options {
	if o.LinesBefore <= 0 {
		o.LinesBefore = DefaultLinesBefore
	}
	if o.LinesAfter <= 0 {
		o.LinesAfter = DefaultLinesAfter
	}
	if o.MaxFileLines <= 0 {
		o.MaxFileLines = DefaultMaxFileLines
	}
	return o
}

// extractors dispatches strategies through a closed lookup table.
var extractors = map[Strategy]func(b *Builder, path string, line int, opts Options) (string, error){
	StrategyFixedLines:    (*Builder).fixedLines,
	StrategyFunctionScope: (*Builder).functionScope,
	StrategyFileScope:     (*Builder).fileScope,
}

// Builder extracts code context relative to a single project root.
type Builder struct {
	root string
}

// New creates a Builder rooted at projectRoot.
func New(projectRoot string) *Builder {
	return &Builder{root: projectRoot}
}

// Build extracts context for the given analyzer-reported location.
// The path may be relative to the project root. Returns ErrUnsafePath or
// ErrUnreadable for per-file failures, ErrUnknownStrategy for a bad strategy
// name.
func (b *Builder) Build(filePath string, line int, strategy Strategy, opts Options) (string, error) {
	extract, ok := extractors[strategy]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	abs := filePath
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(b.root, abs)
	}
	if !fileutil.IsPathSafe(abs, b.root) {
		return "", ErrUnsafePath
	}

	return extract(b, abs, line, opts.withDefaults())
}

// fixedLines extracts a window of [line-before, line+after], clamped to the
// file. If the window falls entirely past the end of the file the whole
// available overlap from line 1 is returned instead.
func (b *Builder) fixedLines(path string, line int, opts Options) (string, error) {
	total, ok := fileutil.CountLines(path)
	if !ok {
		return "", ErrUnreadable
	}
	if total == 0 {
		return "", nil
	}

	start := line - opts.LinesBefore
	if start < 1 {
		start = 1
	}
	end := line + opts.LinesAfter
	if end > total {
		end = total
	}
	if start > end {
		start = 1
	}

	text, ok := fileutil.ReadLines(path, start, end)
	if !ok {
		return "", ErrUnreadable
	}
	return numberLines(text, start, 0), nil
}

// functionScope locates the enclosing brace-delimited block around line by
// counting braces outward, then extracts the full block. This is a heuristic,
// not a parser: braces inside strings or comments can shift the detected
// boundaries, but never crash the scan. When no block is found within the
// scan window it falls back to fixedLines with the default window.
func (b *Builder) functionScope(path string, line int, opts Options) (string, error) {
	total, ok := fileutil.CountLines(path)
	if !ok {
		return "", ErrUnreadable
	}

	fallback := func() (string, error) {
		return b.fixedLines(path, line, Options{}.withDefaults())
	}

	if line < 1 || line > total {
		return fallback()
	}

	text, ok := fileutil.ReadLines(path, 1, total)
	if !ok {
		return "", ErrUnreadable
	}
	lines := fileutil.SplitLines(text)

	opener, ok := findOpener(lines, line-1)
	if !ok {
		return fallback()
	}
	closer, ok := findCloser(lines, opener)
	if !ok || closer < line-1 {
		return fallback()
	}

	block := strings.Join(lines[opener:closer+1], "\n")
	return numberLines(block, opener+1, 0), nil
}

// fileScope returns the whole file with the issue line marked. Files over
// the MaxFileLines cap fall back to fixedLines with the default window
// rather than truncating silently.
func (b *Builder) fileScope(path string, line int, opts Options) (string, error) {
	total, ok := fileutil.CountLines(path)
	if !ok {
		return "", ErrUnreadable
	}
	if total > opts.MaxFileLines {
		return b.fixedLines(path, line, Options{}.withDefaults())
	}
	if total == 0 {
		return "", nil
	}

	text, ok := fileutil.ReadLines(path, 1, total)
	if !ok {
		return "", ErrUnreadable
	}
	return numberLines(text, 1, line), nil
}

// numberLines renders text as "<n>: <line>" rows starting at startLine.
// When markLine is nonzero, that source line gets a trailing issue marker.
func numberLines(text string, startLine, markLine int) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	var sb strings.Builder
	for i, l := range lines {
		n := startLine + i
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%d: %s", n, l)
		if n == markLine {
			sb.WriteString("  // <-- issue reported here")
		}
	}
	return sb.String()
}

// findOpener scans backward from idx (0-based) for the '{' that opens the
// enclosing block, skipping matched pairs. Bounded by scanWindow lines.
func findOpener(lines []string, idx int) (int, bool) {
	depth := 0
	limit := idx - scanWindow
	if limit < 0 {
		limit = 0
	}
	for i := idx; i >= limit; i-- {
		l := lines[i]
		for j := len(l) - 1; j >= 0; j-- {
			switch l[j] {
			case '}':
				// Ignore a closer on the issue line itself at depth 0;
				// it may terminate the enclosing block ("return x; }").
				if i == idx && depth == 0 {
					continue
				}
				depth++
			case '{':
				if depth == 0 {
					return i, true
				}
				depth--
			}
		}
	}
	return 0, false
}

// findCloser scans forward from the opener line for the matching '}'.
// Bounded by scanWindow lines.
func findCloser(lines []string, opener int) (int, bool) {
	depth := 0
	seen := false
	limit := opener + scanWindow
	if limit > len(lines)-1 {
		limit = len(lines) - 1
	}
	for i := opener; i <= limit; i++ {
		for j := 0; j < len(lines[i]); j++ {
			switch lines[i][j] {
			case '{':
				depth++
				seen = true
			case '}':
				depth--
				if seen && depth == 0 {
					return i, true
				}
			}
		}
	}
	return 0, false
}
