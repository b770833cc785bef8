// Package fileutil provides safe file access helpers for reading analyzer-
// reported source locations. Paths come from untrusted cppcheck output, so
// every read is gated by IsPathSafe.
package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// IsPathSafe reports whether candidate resolves to a regular file inside
// projectRoot. A relative candidate is joined under projectRoot first.
//
// The check is strict: the candidate itself must not be a symlink, and after
// resolving all symlinks and dot segments the result must still sit under the
// resolved root, compared component-wise (so /root2 does not satisfy /root).
// Any OS-level failure is treated as unsafe.
func IsPathSafe(candidate, projectRoot string) bool {
	if candidate == "" || projectRoot == "" {
		return false
	}

	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(projectRoot, candidate)
	}

	// Reject symlinks before resolution; a symlink inside the root can
	// point anywhere.
	fi, err := os.Lstat(candidate)
	if err != nil {
		return false
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return false
	}

	resolvedRoot, err := filepath.EvalSymlinks(projectRoot)
	if err != nil {
		return false
	}
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(resolvedRoot, resolved)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}

	st, err := os.Stat(resolved)
	if err != nil {
		return false
	}
	return st.Mode().IsRegular()
}

// ReadLines returns lines [start, end] of the file at path, 1-based and
// inclusive. start is clamped up to 1 and end down to the last line; a range
// entirely past the end of the file yields ("", true). Analyzer line numbers
// are unreliable, so out-of-range input is never an error. Blank lines are
// preserved. Returns ok=false on I/O failure or non-UTF-8 content.
//
// Callers must validate the path with IsPathSafe first; ReadLines itself does
// no containment check.
func ReadLines(path string, start, end int) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	if !utf8.Valid(data) {
		return "", false
	}

	lines := SplitLines(string(data))

	if start < 1 {
		start = 1
	}
	if end < start {
		end = start
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > len(lines) {
		return "", true
	}

	return strings.Join(lines[start-1:end], "\n"), true
}

// CountLines returns the number of lines in the file, or ok=false on failure.
func CountLines(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	if !utf8.Valid(data) {
		return 0, false
	}
	return len(SplitLines(string(data))), true
}

// SplitLines splits file content into lines without keeping line endings.
// A single trailing newline does not produce an extra empty line.
func SplitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

// sourceExtensions lists the C/C++ extensions cppcheck reports against.
var sourceExtensions = map[string]bool{
	".cpp": true, ".cc": true, ".cxx": true,
	".hpp": true, ".hh": true, ".hxx": true,
	".h": true, ".c": true,
}

// IsSourceFile reports whether the path looks like a C/C++ source file.
func IsSourceFile(path string) bool {
	return sourceExtensions[strings.ToLower(filepath.Ext(path))]
}
