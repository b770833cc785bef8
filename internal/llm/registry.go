package llm

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelConfig describes one named model entry from the registry file.
type ModelConfig struct {
	Name        string   `yaml:"-"`
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	APIKey      string   `yaml:"api_key"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// registryFile is the on-disk YAML shape:
//
//	default: sonnet
//	models:
//	  sonnet:
//	    provider: anthropic
//	    model: claude-sonnet-4-20250514
//	    api_key: ${ANTHROPIC_API_KEY}
//	    temperature: 0.0
//	    max_tokens: 1024
type registryFile struct {
	Default string                 `yaml:"default"`
	Models  map[string]ModelConfig `yaml:"models"`
}

// Registry holds the named model configurations loaded from models.yaml.
type Registry struct {
	defaultName string
	models      map[string]ModelConfig
}

// LoadRegistry reads and parses a models.yaml registry file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model registry: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry parses registry YAML. Every entry must name a provider and a
// model id; api_key supports ${ENV_VAR} expansion and may be left empty when
// the provider SDK reads its key from the environment itself.
func ParseRegistry(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse model registry: %w", err)
	}
	if len(file.Models) == 0 {
		return nil, fmt.Errorf("model registry defines no models")
	}

	models := make(map[string]ModelConfig, len(file.Models))
	for name, cfg := range file.Models {
		if cfg.Provider == "" {
			return nil, fmt.Errorf("model %q: missing provider", name)
		}
		if cfg.Model == "" {
			return nil, fmt.Errorf("model %q: missing model id", name)
		}
		cfg.Name = name
		cfg.APIKey = os.ExpandEnv(cfg.APIKey)
		models[name] = cfg
	}

	defaultName := file.Default
	if defaultName == "" && len(models) == 1 {
		for name := range models {
			defaultName = name
		}
	}
	if defaultName != "" {
		if _, ok := models[defaultName]; !ok {
			return nil, fmt.Errorf("default model %q not defined in registry", defaultName)
		}
	}

	return &Registry{defaultName: defaultName, models: models}, nil
}

// Names returns the registered model names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns the registry's default model name, if one is set.
func (r *Registry) Default() string {
	return r.defaultName
}

// Get looks up a model by name. An empty name resolves to the default entry.
func (r *Registry) Get(name string) (ModelConfig, error) {
	if name == "" {
		name = r.defaultName
	}
	if name == "" {
		return ModelConfig{}, fmt.Errorf("no model name given and registry has no default")
	}
	cfg, ok := r.models[name]
	if !ok {
		return ModelConfig{}, fmt.Errorf("unknown model %q (known: %s)", name, strings.Join(r.Names(), ", "))
	}
	return cfg, nil
}
