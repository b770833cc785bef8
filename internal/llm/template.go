package llm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/models"
)

// Prompt templates are plain text files in the prompts directory. They use
// single-brace placeholders so templates written for earlier tooling keep
// working: {file} {line} {severity} {id} {summary} {code_context}.

// ListTemplates returns the template names (file basenames without the .txt
// extension) available under dir, sorted.
func ListTemplates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read prompts directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".txt"))
	}
	sort.Strings(names)
	return names, nil
}

// LoadTemplate reads one named template from dir.
func LoadTemplate(dir, name string) (string, error) {
	path := filepath.Join(dir, name+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		names, lerr := ListTemplates(dir)
		if lerr == nil && len(names) > 0 {
			return "", fmt.Errorf("unknown prompt template %q (known: %s)", name, strings.Join(names, ", "))
		}
		return "", fmt.Errorf("read prompt template %q: %w", name, err)
	}
	return string(data), nil
}

// RenderPrompt substitutes the issue's fields and its extracted code context
// into the template. Placeholders absent from the template are simply unused.
func RenderPrompt(template string, issue *models.Issue, codeContext string) string {
	r := strings.NewReplacer(
		"{file}", issue.File,
		"{line}", strconv.Itoa(issue.Line),
		"{severity}", issue.Severity,
		"{id}", issue.RuleID,
		"{summary}", issue.Summary,
		"{code_context}", codeContext,
	)
	return r.Replace(template)
}
