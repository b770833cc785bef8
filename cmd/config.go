package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "reviewhelper"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage reviewhelper configuration.

Running bare 'reviewhelper config' is the same as 'reviewhelper config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# reviewhelper configuration
# See: reviewhelper config show (for effective values and sources)

# Root of the analyzed C/C++ project. Issue file paths resolve against
# this directory and reads outside it are refused.
# project_root: {{ .ProjectRoot }}

# SQLite database path (default: ~/.config/reviewhelper/reviewhelper.db)
# db_path: {{ .DBPath }}

# Model registry file (default: models.yaml)
# models_config: {{ .ModelsConfig }}

# Prompt template directory (default: prompts)
# prompts_dir: {{ .PromptsDir }}

# Default model name from the registry (empty = registry default)
# model: "{{ .Model }}"

# Default prompt template name
# prompt_template: "{{ .PromptTemplate }}"

# Code context extraction
context:
  # Strategy: fixed_lines, function_scope, file_scope
  strategy: "{{ .ContextStrategy }}"

  # Lines either side of the issue for fixed_lines
  lines_before: {{ .LinesBefore }}
  lines_after: {{ .LinesAfter }}

  # file_scope falls back to fixed_lines above this many lines
  max_file_lines: {{ .MaxFileLines }}
`

type configTemplateData struct {
	ProjectRoot     string
	DBPath          string
	ModelsConfig    string
	PromptsDir      string
	Model           string
	PromptTemplate  string
	ContextStrategy string
	LinesBefore     int
	LinesAfter      int
	MaxFileLines    int
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		ProjectRoot:     viper.GetString("project_root"),
		DBPath:          viper.GetString("db_path"),
		ModelsConfig:    viper.GetString("models_config"),
		PromptsDir:      viper.GetString("prompts_dir"),
		Model:           viper.GetString("model"),
		PromptTemplate:  viper.GetString("prompt_template"),
		ContextStrategy: viper.GetString("context.strategy"),
		LinesBefore:     viper.GetInt("context.lines_before"),
		LinesAfter:      viper.GetInt("context.lines_after"),
		MaxFileLines:    viper.GetInt("context.max_file_lines"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "project_root", EnvVar: "REVIEWHELPER_PROJECT_ROOT"},
	{Key: "db_path", EnvVar: "REVIEWHELPER_DB_PATH"},
	{Key: "models_config", EnvVar: "REVIEWHELPER_MODELS_CONFIG"},
	{Key: "prompts_dir", EnvVar: "REVIEWHELPER_PROMPTS_DIR"},
	{Key: "model", EnvVar: "REVIEWHELPER_MODEL"},
	{Key: "prompt_template", EnvVar: "REVIEWHELPER_PROMPT_TEMPLATE"},
	{Key: "context.strategy", EnvVar: "REVIEWHELPER_CONTEXT_STRATEGY"},
	{Key: "context.lines_before", EnvVar: "REVIEWHELPER_CONTEXT_LINES_BEFORE"},
	{Key: "context.lines_after", EnvVar: "REVIEWHELPER_CONTEXT_LINES_AFTER"},
	{Key: "context.max_file_lines", EnvVar: "REVIEWHELPER_CONTEXT_MAX_FILE_LINES"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-24s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set — set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'reviewhelper config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
